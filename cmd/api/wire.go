package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"crowdfund/internal/adapter/repo"
	"crowdfund/internal/campaign"
	"crowdfund/internal/domain"
	"crowdfund/internal/infra"
	"crowdfund/internal/sqlinline"
	"crowdfund/internal/token"
)

type ledgerBackend struct {
	campaigns domain.CampaignStore
	journal   domain.ReconciliationJournal
	events    domain.EventRepository
	ping      func(ctx context.Context) error
	pool      *pgxpool.Pool
}

func (l *ledgerBackend) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// openLedger picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise. The memory store loses everything on restart.
func openLedger(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*ledgerBackend, error) {
	if !cfg.UsesDatabase() {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory ledger")
		return &ledgerBackend{
			campaigns: campaign.NewMemoryStore(),
			journal:   campaign.NewMemoryJournal(),
		}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, sqlinline.QSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &ledgerBackend{
		campaigns: repo.NewCampaignRepository(runner),
		journal:   repo.NewReconciliationRepository(runner),
		events:    repo.NewEventRepository(runner),
		ping:      pool.Ping,
		pool:      pool,
	}, nil
}

type tokenBackend struct {
	service token.Service
	// memory is set for the in-process backend so dev routes can mint.
	memory *token.Memory
	erc20  *token.ERC20
}

func (t *tokenBackend) Close() {
	if t.erc20 != nil {
		t.erc20.Close()
	}
}

func openTokens(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*tokenBackend, error) {
	switch cfg.TokenBackend {
	case infra.TokenBackendERC20:
		addr := cfg.TokenAddress
		if addr == "" {
			known, ok := token.Networks[cfg.TokenNetwork]
			if !ok {
				return nil, fmt.Errorf("unknown TOKEN_NETWORK %q and no TOKEN_ADDRESS", cfg.TokenNetwork)
			}
			addr = known
		}
		contract, err := domain.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		client, err := token.DialERC20(ctx, token.ERC20Options{
			RPCURL:         cfg.EthRPCURL,
			Token:          contract,
			PrivateKeyHex:  cfg.CustodyPrivateKey,
			ReceiptTimeout: cfg.TokenReceiptTimeout,
			Logger:         &logger,
		})
		if err != nil {
			return nil, err
		}
		return &tokenBackend{service: client, erc20: client}, nil
	default:
		custody, err := domain.ParseAddress(cfg.CustodyAddress)
		if err != nil {
			return nil, err
		}
		mem := token.NewMemory(custody)
		return &tokenBackend{service: mem, memory: mem}, nil
	}
}
