// Package scheduler runs the nightly ticker backfill.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	"github.com/dupipcom/morpheus-sub002/internal/ticker"
	"golang.org/x/sync/errgroup"
)

// Config controls when and how wide the backfill runs.
type Config struct {
	// Hour of the day (UTC) at which the daily run starts.
	Hour int
	// Interval between clock checks.
	Interval time.Duration
	// Concurrency bounds how many users are recomputed at once.
	Concurrency int
}

// Result summarises one backfill run.
type Result struct {
	Users   int `json:"users"`
	Entries int `json:"entries"`
	Failed  int `json:"failed"`
}

// Scheduler recomputes the ticker windows of every user's current-year
// period entries once per day.
type Scheduler struct {
	mu      sync.RWMutex
	store   *store.Store
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
	lastRun string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a backfill scheduler. Zero config fields fall back to a one
// minute interval and a concurrency of 4.
func New(s *store.Store, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  s,
		logger: logger.With("component", "scheduler"),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler, waiting for a run in progress.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick starts a run when the configured hour is reached and today has not
// been processed yet.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if now.Hour() != s.cfg.Hour {
		return
	}
	today := now.Format(model.DateLayout)

	s.mu.Lock()
	if s.lastRun == today {
		s.mu.Unlock()
		return
	}
	s.lastRun = today
	s.mu.Unlock()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ticker backfill failed", "error", err)
	}
}

// RunOnce recomputes the ticker windows of every current-year entry
// document. A failing user is logged and counted; it does not stop the run.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	start := s.now()
	year := start.Year()
	docs, err := s.store.Entries.ListByYear(ctx, year)
	if err != nil {
		return Result{}, fmt.Errorf("list entries for %d: %w", year, err)
	}

	var entries, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, doc := range docs {
		userID := doc.UserID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := s.backfillUser(gctx, userID, year)
			if err != nil {
				s.logger.Warn("ticker backfill skipped user", "user_id", userID, "error", err)
				failed.Add(1)
				return nil
			}
			entries.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Users: len(docs), Entries: int(entries.Load()), Failed: int(failed.Load())}
	s.logger.Info("ticker backfill done", "year", year, "users", res.Users,
		"entries", res.Entries, "failed", res.Failed, "duration", time.Since(start))
	return res, nil
}

// backfillUser refreshes the tickers of userID's year document and returns
// how many entries changed.
func (s *Scheduler) backfillUser(ctx context.Context, userID string, year int) (int, error) {
	changed := 0
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		ledger, err := tx.Entries.Ledger(ctx, userID, year, year-1)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		doc := ledger[year]
		changed = Refresh(ledger, doc, s.logger)
		if changed == 0 || doc.Version == 0 {
			return nil
		}
		if err := tx.Entries.Save(ctx, doc); err != nil {
			return fmt.Errorf("save entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Refresh recomputes the ticker of every day and week entry in doc against
// ledger and returns how many entries changed. Legacy single-value tickers
// are replaced by window maps.
func Refresh(ledger model.Ledger, doc *model.YearEntries, logger *slog.Logger) int {
	if doc == nil {
		return 0
	}
	n := 0
	for key, d := range doc.Days {
		if d == nil {
			continue
		}
		date, err := time.Parse(model.DateLayout, d.Date)
		if err != nil {
			if logger != nil {
				logger.Warn("skip day entry with bad date", "user_id", doc.UserID, "key", key, "date", d.Date)
			}
			continue
		}
		if setWindows(&d.Ticker, ticker.DayTickers(ledger, date, d.EarningsValue(), d.BalanceValue())) {
			n++
		}
	}
	for _, w := range doc.Weeks {
		if w == nil {
			continue
		}
		y := w.Year
		if y == 0 {
			y = doc.Year
		}
		if setWindows(&w.Ticker, ticker.WeekTickers(ledger, y, w.Week, w.EarningsValue(), w.BalanceValue())) {
			n++
		}
	}
	return n
}

func setWindows(t *model.Ticker, windows map[string]float64) bool {
	if t.Legacy == nil && t.Windows != nil && maps.Equal(t.Windows, windows) {
		return false
	}
	*t = model.Ticker{Windows: windows}
	return true
}
