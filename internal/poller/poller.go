// Package poller drives Gmail ingestion on a fixed cadence: list recent
// inbox items, admit unseen ids through the dedup ledger, and push admitted
// items through the pipeline.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumenlabs/scopewatch/internal/dedup"
	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/intake"
	"github.com/lumenlabs/scopewatch/internal/pipeline"
	"github.com/lumenlabs/scopewatch/internal/store"
	"github.com/lumenlabs/scopewatch/pkg/gmail"
)

// maxItemConcurrency bounds per-message fan-out within one poll cycle.
const maxItemConcurrency = 3

// Poller owns the poll loop. One cycle never overlaps the next: the timer
// re-arms after a cycle completes, so a slow classification delays but never
// corrupts subsequent cycles.
type Poller struct {
	mail       gmail.Client
	ledger     dedup.SeenKeyStore
	pipe       *pipeline.Pipeline
	store      store.Store
	account    string
	interval   time.Duration
	maxResults int
}

// New constructs a poller for the given mail account.
func New(mail gmail.Client, ledger dedup.SeenKeyStore, pipe *pipeline.Pipeline, st store.Store, account string, interval time.Duration, maxResults int) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Poller{
		mail:       mail,
		ledger:     ledger,
		pipe:       pipe,
		store:      st,
		account:    account,
		interval:   interval,
		maxResults: maxResults,
	}
}

// Run polls until the context is canceled. Cycle failures are logged and the
// next cycle proceeds regardless; the cadence itself is the retry mechanism
// for transient outages.
func (p *Poller) Run(ctx context.Context) {
	zap.L().Info("gmail poller started",
		zap.Duration("interval", p.interval),
		zap.Int("max_results", p.maxResults),
	)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("gmail poller stopped")
			return
		case <-timer.C:
		}

		if err := p.RunOnce(ctx); err != nil {
			zap.L().Error("poll cycle failed", zap.Error(err))
		}

		timer.Reset(p.interval)
	}
}

// RunOnce executes a single poll cycle. Also invoked directly by the
// trigger-gmail-poll route.
func (p *Poller) RunOnce(ctx context.Context) error {
	tok, err := p.store.GetGmailToken(ctx, p.account)
	if err != nil {
		return fault.NewStorage("get gmail token", err)
	}
	if tok == nil {
		zap.L().Debug("no gmail token stored, skipping poll")
		return nil
	}

	refs, err := p.mail.ListInbox(ctx, tok.RefreshToken, p.maxResults)
	if err != nil {
		return fault.NewUpstream("mail service", err)
	}
	if len(refs) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxItemConcurrency)

	for _, ref := range refs {
		g.Go(func() error {
			// Per-item failures are logged, never returned: one bad item
			// must not abort the rest of the batch.
			p.processItem(gCtx, tok.RefreshToken, ref.ID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) processItem(ctx context.Context, refreshToken, externalID string) {
	admitted, err := p.ledger.Admit(ctx, externalID)
	if err != nil {
		zap.L().Error("dedup admission failed",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}
	if !admitted {
		return
	}

	detail, err := p.mail.GetMessage(ctx, refreshToken, externalID)
	if err != nil {
		zap.L().Error("fetch mail item failed",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}

	draft, err := intake.FromMailItem(intake.MailItem{
		Subject: detail.Subject,
		From:    detail.From,
		Snippet: detail.Snippet,
	})
	if err != nil {
		// Empty item: skip and continue the batch.
		zap.L().Warn("mail item skipped",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}

	msg, err := p.pipe.Ingest(ctx, draft)
	if err != nil {
		// Admission is not rolled back on insert failure: the item may be
		// lost to the pipeline for this process lifetime, which is the
		// documented at-least-once (not exactly-once) guarantee.
		zap.L().Error("store poll message failed",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}

	if _, err := p.pipe.Classify(ctx, *msg); err != nil {
		zap.L().Error("classify poll message failed",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
