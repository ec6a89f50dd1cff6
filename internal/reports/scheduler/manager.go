package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
)

// Generator produces the disclosure of one organization for one period
type Generator interface {
	GenerateForPeriod(ctx context.Context, req *disclosure.GenerateRequest) (*disclosure.Generation, error)
}

// OrganizationLister enumerates the organizations with stored activities
type OrganizationLister interface {
	ListOrganizations(ctx context.Context) ([]uuid.UUID, error)
}

// PeriodFunc returns the reporting period a run at now should cover
type PeriodFunc func(now time.Time) (time.Time, time.Time, error)

// ManagerConfig configuration for the schedule manager
type ManagerConfig struct {
	// Cron is a five-field cron expression
	Cron          string        `json:"cron"`
	Timezone      string        `json:"timezone"`
	MaxConcurrent int           `json:"max_concurrent"`
	RunTimeout    time.Duration `json:"run_timeout"`
	Recipients    []string      `json:"recipients"`
	Options       disclosure.BuildOptions
}

// DefaultManagerConfig returns default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Cron:          "0 2 1 * *",
		Timezone:      "UTC",
		MaxConcurrent: 4,
		RunTimeout:    30 * time.Minute,
	}
}

// RunSummary reports the outcome of one scheduled run
type RunSummary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Succeeded   int
	Failed      int
	Failures    map[uuid.UUID]string
}

// Manager generates disclosures for every organization on a cron schedule
type Manager struct {
	cron          *cron.Cron
	entry         cron.EntryID
	generator     Generator
	organizations OrganizationLister
	period        PeriodFunc
	config        ManagerConfig
	logger        *zap.Logger
	mu            sync.Mutex
	running       bool
}

// NewManager creates a new schedule manager
func NewManager(generator Generator, organizations OrganizationLister, period PeriodFunc, config ManagerConfig, logger *zap.Logger) *Manager {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Manager{
		cron:          cron.New(cron.WithLocation(loc)),
		generator:     generator,
		organizations: organizations,
		period:        period,
		config:        config,
		logger:        logger,
	}
}

// Start registers the cron job and starts the scheduler
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("schedule manager already running")
	}

	entry, err := m.cron.AddFunc(m.config.Cron, func() {
		runCtx, cancel := context.WithTimeout(ctx, m.config.RunTimeout)
		defer cancel()
		if _, err := m.RunOnce(runCtx, time.Now()); err != nil {
			m.logger.Error("Scheduled disclosure run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	m.entry = entry
	m.cron.Start()
	m.running = true

	m.logger.Info("Started disclosure scheduler",
		zap.String("cron", m.config.Cron),
		zap.Time("next_run", m.cron.Entry(entry).Next))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.logger.Info("Stopping disclosure scheduler")
	stopped := m.cron.Stop()
	<-stopped.Done()
	m.cron.Remove(m.entry)
	m.running = false
}

// NextRun returns the next scheduled run, or the zero time when stopped
func (m *Manager) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return time.Time{}
	}
	return m.cron.Entry(m.entry).Next
}

// RunOnce generates the disclosure of every organization for the period
// preceding now. One organization failing does not stop the others.
func (m *Manager) RunOnce(ctx context.Context, now time.Time) (*RunSummary, error) {
	start, end, err := m.period(now)
	if err != nil {
		return nil, err
	}
	orgs, err := m.organizations.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	m.logger.Info("Running scheduled disclosures",
		zap.Int("organizations", len(orgs)),
		zap.Time("period_start", start),
		zap.Time("period_end", end))

	summary := &RunSummary{PeriodStart: start, PeriodEnd: end, Failures: map[uuid.UUID]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if m.config.MaxConcurrent > 0 {
		g.SetLimit(m.config.MaxConcurrent)
	}
	for _, org := range orgs {
		g.Go(func() error {
			gen, err := m.generator.GenerateForPeriod(gctx, &disclosure.GenerateRequest{
				OrganizationID: org,
				PeriodStart:    start,
				PeriodEnd:      end,
				Options:        m.config.Options,
				Recipients:     m.config.Recipients,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures[org] = err.Error()
				m.logger.Warn("Scheduled disclosure failed",
					zap.String("organization_id", org.String()),
					zap.Error(err))
				return nil
			}
			summary.Succeeded++
			m.logger.Info("Scheduled disclosure completed",
				zap.String("organization_id", org.String()),
				zap.String("status", gen.Status),
				zap.String("document", gen.DocumentURI))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	m.logger.Info("Scheduled disclosures finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
