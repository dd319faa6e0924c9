package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/rs/zerolog/log"
)

const (
	JobSync     = "sync"
	JobRecovery = "recovery"
	JobPeriodic = "periodic"
)

var ErrRunInProgress = errors.New("run already in progress")

type SyncSummary struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Checked int          `json:"checked"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Review  []ReviewItem `json:"review,omitempty"`
}

type RecoverySummary struct {
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
	Hours         int          `json:"hours"`
	SeedTotal     int          `json:"seedTotal"`
	MissingCount  int          `json:"missingCount"`
	MismatchCount int          `json:"mismatchCount"`
	Recovered     int          `json:"recovered"`
	Updated       int          `json:"updated"`
	Skipped       int          `json:"skipped"`
	Failed        int          `json:"failed"`
	Review        []ReviewItem `json:"review,omitempty"`
	Alerted       bool         `json:"alerted"`
}

// Repairs is the number of ledger rows this run created or moved.
func (s RecoverySummary) Repairs() int {
	return s.Recovered + s.Updated
}

// Alerter is told when a periodic run repaired something.
type Alerter interface {
	NotifyRepairs(ctx context.Context, summary RecoverySummary) error
}

// RunGuard keeps two runs of the same job from overlapping. acquired=false
// with a nil error means another holder has it.
type RunGuard interface {
	Acquire(ctx context.Context, job string) (release func(), acquired bool, err error)
}

type ServiceConfig struct {
	BatchSize      int
	SyncWindow     time.Duration
	InterCallDelay time.Duration
	RecoveryHours  int
}

func ServiceConfigFromRuntime(art *kernel.AppRuntime) ServiceConfig {
	return ServiceConfig{
		BatchSize:      art.BatchSize,
		SyncWindow:     art.SyncWindow,
		InterCallDelay: art.InterCallDelay,
		RecoveryHours:  art.RecoveryHours,
	}
}

type ServiceOption func(*Service)

func WithAlerter(a Alerter) ServiceOption {
	return func(s *Service) { s.alerter = a }
}

func WithRunGuard(g RunGuard) ServiceOption {
	return func(s *Service) { s.guard = g }
}

func WithDiagnostic(d *kernel.AppDiagnostic) ServiceOption {
	return func(s *Service) { s.diag = d }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLimiterFactory replaces the per-run interval limiter.
func WithLimiterFactory(f func(interCallDelay time.Duration) Limiter) ServiceOption {
	return func(s *Service) { s.newLimiter = f }
}

// Service is the inbound surface: the scheduler and admin triggers call it.
// None of its entry points return errors or panic; failures are reported in
// the summaries.
type Service struct {
	ledger  Ledger
	links   LinkSource
	gateway Gateway
	cfg     ServiceConfig

	alerter    Alerter
	guard      RunGuard
	diag       *kernel.AppDiagnostic
	now        func() time.Time
	newLimiter func(time.Duration) Limiter
}

func NewService(l Ledger, links LinkSource, gw Gateway, cfg ServiceConfig, opts ...ServiceOption) *Service {
	s := &Service{
		ledger:     l,
		links:      links,
		gateway:    gw,
		cfg:        cfg,
		diag:       kernel.TestDiagnostic(),
		now:        func() time.Time { return time.Now().UTC() },
		newLimiter: NewIntervalLimiter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) pipeline(name string) *Builder {
	return NewPipeline(s.ledger, s.gateway, s.links).
		Named(name).
		Diagnostic(s.diag).
		Clock(s.now)
}

func (s *Service) RunSync(ctx context.Context) SyncSummary {
	return s.RunSyncWith(ctx, s.cfg.SyncWindow, s.cfg.BatchSize, s.cfg.InterCallDelay)
}

// RunSyncWith re-checks at most batchSize open payments created within
// windowRecent and moves them forward where the gateway has moved on.
func (s *Service) RunSyncWith(ctx context.Context, windowRecent time.Duration, batchSize int, interCallDelay time.Duration) (summary SyncSummary) {
	defer recoverInto(JobSync, &summary.Success, &summary.Error)

	release, err := s.acquire(ctx, JobSync)
	if err != nil {
		return SyncSummary{Error: err.Error()}
	}
	defer release()

	report := s.pipeline(JobSync).
		SeedRecentPending(windowRecent).
		StatusFilter(models.StatusPending, models.StatusProcessing).
		BatchSize(batchSize).
		Limiter(s.newLimiter(interCallDelay)).
		Build().
		Run(ctx)

	summary = SyncSummary{
		Success: report.Err == nil,
		Checked: report.Checked,
		Updated: report.Updated,
		Skipped: report.Skipped,
		Failed:  report.Failed,
		Review:  report.Review,
	}
	if report.Err != nil {
		summary.Error = report.Err.Error()
	}
	return summary
}

func (s *Service) RunRecovery(ctx context.Context, hours int) RecoverySummary {
	return s.RunRecoveryWith(ctx, hours, s.cfg.InterCallDelay)
}

// RunRecoveryWith probes every order code known locally in the last hours,
// creating ledger rows the gateway has but we lost and moving stale ones
// forward.
func (s *Service) RunRecoveryWith(ctx context.Context, hours int, interCallDelay time.Duration) (summary RecoverySummary) {
	defer recoverInto(JobRecovery, &summary.Success, &summary.Error)

	release, err := s.acquire(ctx, JobRecovery)
	if err != nil {
		return RecoverySummary{Hours: hours, Error: err.Error()}
	}
	defer release()

	return s.recover(ctx, JobRecovery, hours, interCallDelay)
}

func (s *Service) recover(ctx context.Context, name string, hours int, interCallDelay time.Duration) RecoverySummary {
	if hours <= 0 {
		hours = s.cfg.RecoveryHours
	}

	// the whole window is probed; BatchSize bounds sync only

	report := s.pipeline(name).
		SeedWindow(time.Duration(hours) * time.Hour).
		CreateMissing(true).
		Limiter(s.newLimiter(interCallDelay)).
		Build().
		Run(ctx)

	summary := RecoverySummary{
		Success:       report.Err == nil,
		Hours:         hours,
		SeedTotal:     report.SeedTotal,
		MissingCount:  report.MissingCount,
		MismatchCount: report.MismatchCount,
		Recovered:     report.Recovered,
		Updated:       report.Updated,
		Skipped:       report.Skipped,
		Failed:        report.Failed,
		Review:        report.Review,
	}
	if report.Err != nil {
		summary.Error = report.Err.Error()
	}
	return summary
}

// RunPeriodic is the scheduled form of recovery: when anything was repaired
// the alerting hook is told about it.
func (s *Service) RunPeriodic(ctx context.Context, hours int) (summary RecoverySummary) {
	defer recoverInto(JobPeriodic, &summary.Success, &summary.Error)

	release, err := s.acquire(ctx, JobPeriodic)
	if err != nil {
		return RecoverySummary{Hours: hours, Error: err.Error()}
	}
	defer release()

	summary = s.recover(ctx, JobPeriodic, hours, s.cfg.InterCallDelay)
	if summary.Repairs() == 0 || s.alerter == nil {
		return summary
	}

	if err := s.alerter.NotifyRepairs(ctx, summary); err != nil {
		log.Error().Err(err).Str("job", JobPeriodic).Int("repairs", summary.Repairs()).Msg("could not deliver repair alert")
		return summary
	}
	summary.Alerted = true
	return summary
}

// acquire fails open: a guard that cannot be reached does not stop the run,
// the conditional writes keep overlapping runs safe.
func (s *Service) acquire(ctx context.Context, job string) (func(), error) {
	noop := func() {}
	if s.guard == nil {
		return noop, nil
	}
	release, acquired, err := s.guard.Acquire(ctx, job)
	if err != nil {
		log.Warn().Err(err).Str("job", job).Msg("run guard unavailable, continuing without it")
		return noop, nil
	}
	if !acquired {
		log.Info().Str("job", job).Msg("another run holds the guard, not starting")
		return noop, ErrRunInProgress
	}
	if release == nil {
		release = noop
	}
	return release, nil
}

func recoverInto(job string, success *bool, msg *string) {
	if r := recover(); r != nil {
		log.Error().Str("job", job).Interface("panic", r).Msg("reconciliation run panicked")
		*success = false
		*msg = fmt.Sprintf("internal error: %v", r)
	}
}
