// Command crowdctl is the operator tool for the campaign ledger database.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"crowdfund/internal/adapter/repo"
	"crowdfund/internal/infra"
	"crowdfund/internal/sqlinline"
)

var (
	timeoutFlag time.Duration
	verboseFlag bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crowdctl",
		Short:         "Operate the crowdfunding ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "database operation timeout")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log SQL statements")

	root.AddCommand(newCampaignsCmd(), newReconcileCmd(), newTokenCmd(), newSchemaCmd())
	return root
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// database bundles what the ledger commands share.
type database struct {
	pool           *pgxpool.Pool
	runner         *infra.SQLRunner
	campaigns      *repo.CampaignRepositoryPG
	reconciliation *repo.ReconciliationRepositoryPG
}

func (d *database) Close() {
	d.pool.Close()
}

func openDatabase(ctx context.Context, cmd *cobra.Command) (*database, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.UsesDatabase() {
		return nil, errors.New("DATABASE_URL is required")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	level := zerolog.WarnLevel
	if verboseFlag {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
	runner := infra.NewSQLRunner(pool, logger)
	return &database{
		pool:           pool,
		runner:         runner,
		campaigns:      repo.NewCampaignRepository(runner),
		reconciliation: repo.NewReconciliationRepository(runner),
	}, nil
}

// withDatabase runs fn with a connected database bounded by --timeout.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, db *database) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()
	db, err := openDatabase(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database) error {
				if err := infra.EnsureSchema(ctx, db.runner, sqlinline.QSchema); err != nil {
					return err
				}
				success(cmd.OutOrStdout()).Println("schema is up to date")
				return nil
			})
		},
	}
}

var printer = message.NewPrinter(language.English)

// count renders n with digit grouping.
func count(n uint64) string {
	return printer.Sprintf("%d", n)
}

func success(w io.Writer) *pterm.PrefixPrinter {
	return pterm.Success.WithWriter(w)
}

func info(w io.Writer) *pterm.PrefixPrinter {
	return pterm.Info.WithWriter(w)
}

func renderTable(w io.Writer, rows pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(rows).Render()
}
