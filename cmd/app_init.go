package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/artifact"
	"github.com/lumenlabs/scopewatch/internal/config"
	"github.com/lumenlabs/scopewatch/internal/dedup"
	"github.com/lumenlabs/scopewatch/internal/pipeline"
	"github.com/lumenlabs/scopewatch/internal/poller"
	"github.com/lumenlabs/scopewatch/internal/scope"
	"github.com/lumenlabs/scopewatch/internal/store"
	"github.com/lumenlabs/scopewatch/pkg/anthropic"
	"github.com/lumenlabs/scopewatch/pkg/billing"
	"github.com/lumenlabs/scopewatch/pkg/gmail"
)

// appEnv holds the wired application components shared by the commands.
type appEnv struct {
	Store     store.Store
	Mail      gmail.Client
	Pipeline  *pipeline.Pipeline
	Generator *artifact.Generator
	Poller    *poller.Poller
}

// initApp builds the store, external clients, and pipeline from config.
func initApp(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	prompts, err := scope.LoadPrompts(cfg.Prompts.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	ai := anthropic.NewClient(cfg.Anthropic.Key)
	classifier := scope.NewClassifier(ai, prompts, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	pipe := pipeline.New(st, classifier)

	bill := billing.NewClient(cfg.Billing.Key)
	gen := artifact.NewGenerator(ai, bill, st, prompts,
		cfg.Anthropic.Model, cfg.Anthropic.MaxTokens,
		cfg.Billing.Currency, cfg.Billing.DaysUntilDue)

	mail := gmail.NewClient(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURL,
		gmail.WithRateLimit(cfg.Gmail.RatePerSec))

	// Single-instance deployments keep the seen set in memory; the durable
	// seen_messages table takes over when the store is shared.
	var ledger dedup.SeenKeyStore
	if cfg.Store.Driver == "postgres" {
		ledger = dedup.AdmitFunc(st.AdmitSeenKey)
	} else {
		ledger = dedup.NewMemoryLedger()
	}

	p := poller.New(mail, ledger, pipe, st, cfg.Gmail.Account,
		time.Duration(cfg.Gmail.PollIntervalSecs)*time.Second, cfg.Gmail.MaxResults)

	return &appEnv{
		Store:     st,
		Mail:      mail,
		Pipeline:  pipe,
		Generator: gen,
		Poller:    p,
	}, nil
}

func openStore(ctx context.Context, storeCfg config.StoreConfig) (store.Store, error) {
	switch storeCfg.Driver {
	case "postgres":
		return store.NewPostgres(ctx, storeCfg.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(storeCfg.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", storeCfg.Driver)
	}
}

// Close releases held resources.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
