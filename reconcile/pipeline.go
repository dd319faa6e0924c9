package reconcile

import (
	"context"
	"errors"
	"slices"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/assert"
	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/rs/zerolog/log"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Gateway answers for one order code at a time.
type Gateway interface {
	FetchTransaction(ctx context.Context, orderCode string) (*gateway.Transaction, error)
}

// Seed is one order code to probe. Local is filled when the seed query
// already loaded the ledger row.
type Seed struct {
	OrderCode string
	Local     *models.Payment
	loaded    bool
}

type SeedStrategy interface {
	Seeds(ctx context.Context, l Ledger, cfg Config, now time.Time) ([]Seed, error)
}

// RecentPendingSeeds seeds from open payments created within Window.
type RecentPendingSeeds struct {
	Window time.Duration
}

func (s RecentPendingSeeds) Seeds(ctx context.Context, l Ledger, cfg Config, now time.Time) ([]Seed, error) {
	var since time.Time
	if s.Window > 0 {
		since = now.Add(-s.Window)
	}
	payments, err := l.RecentPending(ctx, since, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	seeds := make([]Seed, 0, len(payments))
	for i := range payments {
		p := &payments[i]
		seeds = append(seeds, Seed{OrderCode: p.Code(), Local: p, loaded: true})
	}
	return seeds, nil
}

// WindowSeeds seeds from every order code known locally in the last Lookback.
// The ledger row is read right before each comparison.
type WindowSeeds struct {
	Lookback time.Duration
}

func (s WindowSeeds) Seeds(ctx context.Context, l Ledger, cfg Config, now time.Time) ([]Seed, error) {
	codes, err := l.OrderCodesInWindow(ctx, now.Add(-s.Lookback), now)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize > 0 && len(codes) > cfg.BatchSize {
		codes = codes[:cfg.BatchSize]
	}
	seeds := make([]Seed, 0, len(codes))
	for _, code := range codes {
		seeds = append(seeds, Seed{OrderCode: code})
	}
	return seeds, nil
}

type Config struct {
	Name         string
	Seeds        SeedStrategy
	StatusFilter []models.PaymentStatus // empty: every status
	BatchSize    int                    // 0: no cap
	// minimum spacing between gateway calls; ignored when a Limiter is set
	InterCallDelay time.Duration
	CreateMissing  bool
}

type ReviewItem struct {
	OrderCode    string `json:"orderCode"`
	LocalStatus  string `json:"localStatus,omitempty"`
	RemoteStatus string `json:"remoteStatus"`
	Reason       string `json:"reason"`
}

// Report is the raw tally of one pipeline run.
type Report struct {
	Job string

	SeedTotal     int
	Checked       int
	Filtered      int
	Skipped       int
	MissingCount  int
	MismatchCount int
	Recovered     int
	Updated       int
	Failed        int

	Review []ReviewItem

	// Err is set when the run stopped early: seed query failure or cancellation.
	Err      error
	Duration time.Duration
}

type Builder struct {
	cfg     Config
	ledger  Ledger
	gateway Gateway
	links   LinkSource
	limiter Limiter
	diag    *kernel.AppDiagnostic
	now     func() time.Time
}

func NewPipeline(l Ledger, gw Gateway, links LinkSource) *Builder {
	return &Builder{
		cfg:     Config{Name: "reconcile"},
		ledger:  l,
		gateway: gw,
		links:   links,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (b *Builder) Named(name string) *Builder {
	b.cfg.Name = name
	return b
}

func (b *Builder) SeedRecentPending(window time.Duration) *Builder {
	b.cfg.Seeds = RecentPendingSeeds{Window: window}
	return b
}

func (b *Builder) SeedWindow(lookback time.Duration) *Builder {
	b.cfg.Seeds = WindowSeeds{Lookback: lookback}
	return b
}

func (b *Builder) SeedWith(s SeedStrategy) *Builder {
	b.cfg.Seeds = s
	return b
}

func (b *Builder) StatusFilter(statuses ...models.PaymentStatus) *Builder {
	b.cfg.StatusFilter = statuses
	return b
}

func (b *Builder) BatchSize(n int) *Builder {
	b.cfg.BatchSize = n
	return b
}

func (b *Builder) InterCallDelay(d time.Duration) *Builder {
	b.cfg.InterCallDelay = d
	return b
}

func (b *Builder) Limiter(l Limiter) *Builder {
	b.limiter = l
	return b
}

func (b *Builder) CreateMissing(enabled bool) *Builder {
	b.cfg.CreateMissing = enabled
	return b
}

func (b *Builder) Diagnostic(diag *kernel.AppDiagnostic) *Builder {
	b.diag = diag
	return b
}

func (b *Builder) Clock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) Build() *Pipeline {
	assert.NotNil(b.ledger, "pipeline %s: ledger != nil", b.cfg.Name)
	assert.NotNil(b.gateway, "pipeline %s: gateway != nil", b.cfg.Name)
	assert.NotNil(b.cfg.Seeds, "pipeline %s: seed strategy != nil", b.cfg.Name)
	assert.True(b.cfg.BatchSize >= 0, "pipeline %s: batch size %d", b.cfg.Name, b.cfg.BatchSize)

	limiter := b.limiter
	if limiter == nil {
		limiter = NewIntervalLimiter(b.cfg.InterCallDelay)
	}
	diag := b.diag
	if diag == nil {
		diag = kernel.TestDiagnostic()
	}

	return &Pipeline{
		cfg:     b.cfg,
		ledger:  b.ledger,
		gateway: b.gateway,
		writer:  NewWriter(b.ledger, NewResolver(b.links)),
		limiter: limiter,
		diag:    diag,
		now:     b.now,
	}
}

// Pipeline probes its seed set one order code at a time and repairs what
// diverges. It keeps no state between runs.
type Pipeline struct {
	cfg     Config
	ledger  Ledger
	gateway Gateway
	writer  *Writer
	limiter Limiter
	diag    *kernel.AppDiagnostic
	now     func() time.Time
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

func (p *Pipeline) Run(ctx context.Context) Report {
	started := time.Now()
	report := Report{Job: p.cfg.Name}

	span, ctx := p.diag.BeginTracing(ctx, "reconcile."+p.cfg.Name)
	defer span.End()

	logger := log.With().Str("job", p.cfg.Name).Logger()

	seeds, err := p.cfg.Seeds.Seeds(ctx, p.ledger, p.cfg, p.now())
	if err != nil {
		report.Err = kernel.SpanErr(span, &StoreError{Op: "seed query", Err: err})
		report.Duration = time.Since(started)
		logger.Error().Err(err).Msg("seed query failed, nothing to reconcile")
		return report
	}
	report.SeedTotal = len(seeds)
	logger.Info().Int("seeds", len(seeds)).Msg("reconciliation started")

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		if err := p.reconcileOne(ctx, seed, &report); err != nil {
			report.Err = err
			break
		}
	}

	if report.Err != nil {
		kernel.SpanErr(span, report.Err)
	}
	span.SetAttributes(
		attribute.KeyValue("recon.seed_total", report.SeedTotal),
		attribute.KeyValue("recon.checked", report.Checked),
		attribute.KeyValue("recon.updated", report.Updated),
		attribute.KeyValue("recon.recovered", report.Recovered),
		attribute.KeyValue("recon.failed", report.Failed),
	)
	report.Duration = time.Since(started)

	logger.Info().
		Int("seeds", report.SeedTotal).
		Int("checked", report.Checked).
		Int("skipped", report.Skipped).
		Int("missing", report.MissingCount).
		Int("mismatch", report.MismatchCount).
		Int("recovered", report.Recovered).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Int("review", len(report.Review)).
		Dur("took", report.Duration).
		Msg("reconciliation finished")

	return report
}

// reconcileOne handles a single order code end to end. Only cancellation is
// returned as an error; every per-record failure is tallied in report.
func (p *Pipeline) reconcileOne(ctx context.Context, seed Seed, report *Report) error {
	span, ctx := p.diag.BeginTracing(ctx, "reconcile.record")
	defer span.End()
	span.SetAttributes(attribute.KeyValue("payment.order_code", seed.OrderCode))

	logger := log.With().Str("job", p.cfg.Name).Str("order_code", seed.OrderCode).Logger()
	jobAttr := metric.WithAttributes(attribute.KeyValue("job", p.cfg.Name))

	local := seed.Local
	if !seed.loaded {
		var err error
		local, err = p.ledger.FindByOrderCode(ctx, seed.OrderCode)
		if err != nil {
			report.Failed++
			p.diag.FailedCounter.Add(ctx, 1, jobAttr)
			kernel.SpanErr(span, err)
			logger.Error().Err(err).Msg("could not read ledger row")
			return nil
		}
	}

	if local != nil && len(p.cfg.StatusFilter) > 0 && !slices.Contains(p.cfg.StatusFilter, local.Status) {
		report.Filtered++
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	remote, err := p.gateway.FetchTransaction(ctx, seed.OrderCode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		report.Skipped++
		p.diag.SkippedCounter.Add(ctx, 1, jobAttr)
		if errors.Is(err, gateway.ErrTransactionNotFound) {
			logger.Info().Msg("gateway has no transaction for order code, skipped")
		} else {
			logger.Warn().Err(err).Bool("logical", gateway.IsLogical(err)).Msg("gateway unavailable, skipped")
		}
		return nil
	}
	report.Checked++
	p.diag.CheckedCounter.Add(ctx, 1, jobAttr)

	div := Detect(local, remote)
	if div == nil {
		return nil
	}
	span.SetAttributes(attribute.KeyValue("recon.divergence", div.Kind.String()))

	var outcome Outcome
	switch div.Kind {
	case MissingLocal:
		report.MissingCount++
		if !p.cfg.CreateMissing {
			p.review(ctx, report, div, "missing locally")
			return nil
		}
		outcome, err = p.writer.CreateFromRemote(ctx, remote)
	case StatusMismatch:
		report.MismatchCount++
		outcome, err = p.writer.ApplyStatusUpdate(ctx, local, remote)
	}

	ev := logger.Info()
	switch outcome {
	case OutcomeUpdated:
		report.Updated++
		p.diag.UpdatedCounter.Add(ctx, 1, jobAttr)
	case OutcomeRecovered:
		report.Recovered++
		p.diag.RecoveredCounter.Add(ctx, 1, jobAttr)
	case OutcomeSuppressed:
		ev = logger.Warn()
		p.review(ctx, report, div, "backward transition suppressed")
	case OutcomeConflict:
		ev = logger.Warn()
		p.review(ctx, report, div, "concurrent write conflict")
	case OutcomeFailed:
		ev = logger.Error().Err(err)
		report.Failed++
		p.diag.FailedCounter.Add(ctx, 1, jobAttr)
		kernel.SpanErr(span, err)
	}
	ev.Str("divergence", div.Kind.String()).
		Str("remote_status", remote.Status).
		Str("outcome", outcome.String()).
		Msg("divergence handled")

	return nil
}

func (p *Pipeline) review(ctx context.Context, report *Report, div *Divergence, reason string) {
	item := ReviewItem{
		OrderCode:    string(div.Remote.OrderCode),
		RemoteStatus: div.Remote.Status,
		Reason:       reason,
	}
	if div.Local != nil {
		item.OrderCode = div.Local.Code()
		item.LocalStatus = string(div.Local.Status)
	}
	report.Review = append(report.Review, item)
	p.diag.ReviewCounter.Add(ctx, 1, metric.WithAttributes(attribute.KeyValue("job", p.cfg.Name)))
}
