package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"crowdfund/internal/domain"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Review transfers whose ledger write was lost",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List reconciliation entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database) error {
				entries, err := db.reconciliation.List(ctx, all)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					success(cmd.OutOrStdout()).Println("nothing to reconcile")
					return nil
				}
				return renderTable(cmd.OutOrStdout(), reconciliationRows(entries))
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved entries")

	var note string
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Close an entry after the ledger was corrected by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(note) == "" {
				return errors.New("--note is required")
			}
			return withDatabase(cmd, func(ctx context.Context, db *database) error {
				if err := db.reconciliation.Resolve(ctx, args[0], note, time.Now()); err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return errors.New("no open entry with id " + args[0])
					}
					return err
				}
				success(cmd.OutOrStdout()).Printfln("resolved %s", args[0])
				return nil
			})
		},
	}
	resolve.Flags().StringVar(&note, "note", "", "what was done to reconcile the entry")

	cmd.AddCommand(list, resolve)
	return cmd
}

func reconciliationRows(entries []domain.Reconciliation) pterm.TableData {
	rows := pterm.TableData{{"ID", "Campaign", "Kind", "Party", "Amount", "Tx", "Flagged", "Status"}}
	for _, e := range entries {
		status := "open"
		if !e.Open() {
			status = "resolved: " + e.Note
		}
		rows = append(rows, []string{
			e.ID,
			strconv.FormatUint(e.CampaignID, 10),
			string(e.Kind),
			e.Party.Hex(),
			e.Amount.String(),
			e.TxRef,
			e.CreatedAt.UTC().Format(time.RFC3339),
			status,
		})
	}
	return rows
}
