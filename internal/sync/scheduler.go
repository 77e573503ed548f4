// ABOUTME: Background triggers for outbox drains in the sync daemon.
// ABOUTME: Combines a cron interval, data directory watching and connectivity probing.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/harperreed/gym/internal/remote"
	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 30 * time.Second
	defaultDebounce = 500 * time.Millisecond
)

// Scheduler triggers drains on a timer, on local writes and when the
// remote becomes reachable again.
type Scheduler struct {
	Processor *Processor
	// Pinger probes the remote while offline. Nil means every tick retries.
	Pinger   remote.Pinger
	Interval time.Duration
	// WatchDir is watched for writes by other processes. Empty disables it.
	WatchDir string
	Debounce time.Duration
	Logger   *log.Logger

	kick chan struct{}
}

// NewScheduler creates a scheduler for p with default settings.
func NewScheduler(p *Processor) *Scheduler {
	return &Scheduler{Processor: p, kick: make(chan struct{}, 1)}
}

// Trigger requests a drain without blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Processor == nil {
		return fmt.Errorf("scheduler has no processor")
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Debounce <= 0 {
		s.Debounce = defaultDebounce
	}
	if s.Logger == nil {
		s.Logger = log.Default().WithPrefix("scheduler")
	}
	if s.kick == nil {
		s.kick = make(chan struct{}, 1)
	}

	c := cron.New()
	if err := c.AddFunc("@every "+s.Interval.String(), s.tick(ctx)); err != nil {
		return fmt.Errorf("schedule interval: %w", err)
	}
	c.Start()
	defer c.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Trigger()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-s.kick:
				s.drain(ctx)
			}
		}
	})
	if s.WatchDir != "" {
		g.Go(func() error { return s.watch(ctx) })
	}

	s.Logger.Info("sync daemon started", "interval", s.Interval, "watch", s.WatchDir)
	err := g.Wait()
	s.Logger.Info("sync daemon stopped")
	return err
}

// tick is the interval job: drain when online, probe when offline.
func (s *Scheduler) tick(ctx context.Context) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		if s.Processor.Online() {
			s.Trigger()
			return
		}
		if s.Pinger != nil {
			if err := s.Pinger.Ping(ctx); err != nil {
				s.Logger.Debug("remote still unreachable", "err", err)
				return
			}
		}
		report, err := s.Processor.SetOnline(ctx, true)
		s.observe(report, err)
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	report, err := s.Processor.Drain(ctx)
	s.observe(report, err)
}

func (s *Scheduler) observe(report *DrainReport, err error) {
	if err != nil {
		s.Logger.Error("drain failed", "err", err)
		return
	}
	if report == nil {
		return
	}
	if report.NetworkStopped {
		s.Logger.Warn("remote unreachable, waiting for connectivity", "err", report.Err)
		_, _ = s.Processor.SetOnline(context.Background(), false)
	}
	if report.Synced > 0 {
		s.Logger.Info("outbox drained", "synced", report.Synced, "failed", report.Failed)
	}
}

// watch triggers a debounced drain when files in WatchDir change.
func (s *Scheduler) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.WatchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.WatchDir, err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(s.Debounce, s.Trigger)
			} else {
				timer.Reset(s.Debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.Logger.Warn("watcher error", "err", err)
		}
	}
}
