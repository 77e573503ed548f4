// ABOUTME: Outbox processor that drains pending mutations through sync passes.
// ABOUTME: Applies the retry ceiling, backoff, auth and network stop rules.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/gym/internal/clock"
	"github.com/harperreed/gym/internal/models"
	"github.com/harperreed/gym/internal/remote"
	"github.com/harperreed/gym/internal/storage"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 30 * time.Second
	MaxBackoff        = 10 * time.Minute
)

// Options configures a Processor.
type Options struct {
	// MaxRetries is the failure count at which an item is frozen as failed.
	MaxRetries int
	// Backoff is the wait after the first failure, doubling per retry.
	// Zero disables backoff.
	Backoff time.Duration
	Clock   clock.Clock
	Logger  *log.Logger
}

// DrainReport summarizes one drain.
type DrainReport struct {
	// Skipped is set when the drain did not run at all.
	Skipped  string
	Synced   int
	Retried  int
	Failed   int
	Deferred int
	// Stopped is set when the drain ended before the last item.
	Stopped        string
	NetworkStopped bool
	Err            error
}

// Status is a point-in-time view of sync state for display.
type Status struct {
	Enabled       bool
	Online        bool
	Authenticated bool
	Draining      bool
	Pending       int
	Failed        int
	LastSync      time.Time
	LastError     string
	LastErrorAt   time.Time
}

// Processor drains the outbox. It is safe for concurrent use; overlapping
// drains collapse into one.
type Processor struct {
	repo    storage.Repository
	syncer  Syncer
	clock   clock.Clock
	logger  *log.Logger
	retries int
	backoff time.Duration

	draining atomic.Bool
	offline  atomic.Bool
	authFail atomic.Bool

	mu          gosync.Mutex
	lastErr     string
	lastErrTime time.Time
}

// NewProcessor creates a processor. A nil syncer makes it inert, as when no
// credentials are configured.
func NewProcessor(repo storage.Repository, syncer Syncer, opts Options) *Processor {
	p := &Processor{
		repo:    repo,
		syncer:  syncer,
		clock:   opts.Clock,
		logger:  opts.Logger,
		retries: opts.MaxRetries,
		backoff: opts.Backoff,
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.logger == nil {
		p.logger = log.Default().WithPrefix("outbox")
	}
	if p.retries <= 0 {
		p.retries = DefaultMaxRetries
	}
	return p
}

// Enabled reports whether a remote is configured.
func (p *Processor) Enabled() bool { return p.syncer != nil }

// Online reports the last known connectivity.
func (p *Processor) Online() bool { return !p.offline.Load() }

// Authenticated reports whether the remote has not rejected our credential.
func (p *Processor) Authenticated() bool { return !p.authFail.Load() }

// ResetAuth clears a previous auth failure, e.g. after a new login.
func (p *Processor) ResetAuth() { p.authFail.Store(false) }

// SetOnline records connectivity. Going from offline to online drains the
// outbox and returns that drain's report; otherwise the report is nil.
func (p *Processor) SetOnline(ctx context.Context, online bool) (*DrainReport, error) {
	wasOffline := p.offline.Swap(!online)
	if !online || !wasOffline {
		return nil, nil
	}
	p.logger.Info("network restored, draining outbox")
	return p.Drain(ctx)
}

func (p *Processor) skipReason() string {
	switch {
	case !p.Enabled():
		return "sync not configured"
	case p.authFail.Load():
		return "not authenticated"
	}
	return ""
}

// Drain processes pending outbox items oldest first. Only local store
// failures are returned as errors; remote failures end up in the report.
func (p *Processor) Drain(ctx context.Context) (*DrainReport, error) {
	report := &DrainReport{}
	if reason := p.skipReason(); reason != "" {
		report.Skipped = reason
		return report, nil
	}
	if !p.Online() {
		report.Skipped = "offline"
		return report, nil
	}
	if !p.draining.CompareAndSwap(false, true) {
		report.Skipped = "drain in progress"
		return report, nil
	}
	defer p.draining.Store(false)

	items, err := p.repo.PendingOutbox()
	if err != nil {
		return report, storeErr("read outbox", err)
	}

	for _, item := range items {
		now := p.clock.Now()

		if item.Retries >= p.retries {
			msg := item.LastError
			if msg == "" {
				msg = "retry limit reached"
			}
			if err := p.repo.MarkOutboxFailed(item.ID, msg); err != nil {
				return report, storeErr("mark outbox item failed", err)
			}
			p.logger.Warn("outbox item exceeded retry limit", "item", item.ID, "retries", item.Retries)
			report.Failed++
			continue
		}
		if p.coolingDown(item, now) {
			report.Deferred++
			continue
		}

		_, err := p.syncer.Sync(ctx)
		if err == nil {
			if err := p.repo.ClearOutbox(item.ID); err != nil {
				return report, storeErr("clear outbox item", err)
			}
			if err := p.repo.SetLastSync(now); err != nil {
				return report, storeErr("record last sync", err)
			}
			p.clearError()
			report.Synced++
			continue
		}

		stop, err := p.handleFailure(item, err, now, report)
		if err != nil {
			return report, err
		}
		if stop {
			break
		}
	}

	if report.Synced+report.Retried+report.Failed > 0 {
		p.logger.Debug("drain finished",
			"synced", report.Synced,
			"retried", report.Retried,
			"failed", report.Failed,
			"deferred", report.Deferred,
			"stopped", report.Stopped)
	}
	return report, nil
}

// handleFailure records a failed pass on item and reports whether the
// drain should stop.
func (p *Processor) handleFailure(item *models.OutboxItem, passErr error, now time.Time, report *DrainReport) (bool, error) {
	report.Err = passErr

	switch {
	case IsStoreError(passErr):
		return true, passErr
	case errors.Is(passErr, remote.ErrUpsertInFlight):
		report.Stopped = "upload already in progress"
		return true, nil
	case remote.IsAuth(passErr):
		p.authFail.Store(true)
		p.recordError(passErr, now)
		report.Stopped = "authentication failed"
		p.logger.Error("remote rejected credentials", "err", passErr)
		return true, nil
	}

	item.Retries++
	item.LastError = passErr.Error()
	item.LastRetry = now.UnixMilli()
	if item.Retries >= p.retries {
		item.Status = models.StatusFailed
		report.Failed++
	} else {
		report.Retried++
	}
	if err := p.repo.UpdateOutboxItem(item); err != nil {
		return true, storeErr("update outbox item", err)
	}
	p.recordError(passErr, now)
	p.logger.Warn("sync pass failed", "item", item.ID, "retries", item.Retries, "err", passErr)

	if remote.IsNetwork(passErr) {
		report.Stopped = "network unavailable"
		report.NetworkStopped = true
		return true, nil
	}
	return false, nil
}

func (p *Processor) coolingDown(item *models.OutboxItem, now time.Time) bool {
	if p.backoff <= 0 || item.Retries == 0 || item.LastRetry == 0 {
		return false
	}
	wait := p.backoff
	for i := 1; i < item.Retries && wait < MaxBackoff; i++ {
		wait *= 2
	}
	if wait > MaxBackoff {
		wait = MaxBackoff
	}
	return now.Before(time.UnixMilli(item.LastRetry).Add(wait))
}

// SyncNow is the manual trigger: it drains when items are pending and
// otherwise runs a single pass. It ignores the offline flag.
func (p *Processor) SyncNow(ctx context.Context) (*DrainReport, error) {
	report := &DrainReport{}
	if reason := p.skipReason(); reason != "" {
		report.Skipped = reason
		return report, nil
	}

	pending, err := p.repo.PendingOutbox()
	if err != nil {
		return report, storeErr("read outbox", err)
	}
	if len(pending) > 0 {
		p.offline.Store(false)
		return p.Drain(ctx)
	}

	if !p.draining.CompareAndSwap(false, true) {
		report.Skipped = "drain in progress"
		return report, nil
	}
	defer p.draining.Store(false)

	now := p.clock.Now()
	if _, err := p.syncer.Sync(ctx); err != nil {
		report.Err = err
		switch {
		case IsStoreError(err):
			return report, err
		case remote.IsAuth(err):
			p.authFail.Store(true)
		case remote.IsNetwork(err):
			report.NetworkStopped = true
		}
		p.recordError(err, now)
		return report, nil
	}
	if err := p.repo.SetLastSync(now); err != nil {
		return report, storeErr("record last sync", err)
	}
	p.clearError()
	report.Synced = 1
	return report, nil
}

// Status reports outbox counts and the most recent outcome.
func (p *Processor) Status() (*Status, error) {
	items, err := p.repo.ListOutbox()
	if err != nil {
		return nil, storeErr("read outbox", err)
	}
	last, err := p.repo.LastSync()
	if err != nil {
		return nil, storeErr("read last sync", err)
	}

	st := &Status{
		Enabled:       p.Enabled(),
		Online:        p.Online(),
		Authenticated: p.Authenticated(),
		Draining:      p.draining.Load(),
		LastSync:      last,
	}
	var newest int64
	for _, item := range items {
		if item.Status == models.StatusFailed {
			st.Failed++
		} else {
			st.Pending++
		}
		if item.LastError != "" && item.LastRetry > newest {
			newest = item.LastRetry
			st.LastError = item.LastError
			st.LastErrorAt = time.UnixMilli(item.LastRetry)
		}
	}

	p.mu.Lock()
	if p.lastErr != "" && !p.lastErrTime.Before(st.LastErrorAt) {
		st.LastError = p.lastErr
		st.LastErrorAt = p.lastErrTime
	}
	p.mu.Unlock()
	return st, nil
}

func (p *Processor) recordError(err error, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err.Error()
	p.lastErrTime = at
}

func (p *Processor) clearError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = ""
	p.lastErrTime = time.Time{}
}
