package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/inbox-sync/internal/service"
)

// SyncState represents the current state of a poll subscription.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
	SyncStopped
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	case SyncStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SyncStatus holds the state of a single poller.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// FetchFunc loads the full, untrusted batch a poller delivers.
type FetchFunc func(ctx context.Context) (any, error)

// Default poller timings.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// PollerOptions configures a Poller. Zero values select the defaults.
type PollerOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Poller turns a fetch function into a push subscription: it delivers the
// fetched batch once on Start, then on every tick and every Refresh. It
// implements service.Subscription.
type Poller struct {
	fetch    FetchFunc
	onBatch  service.BatchHandler
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce gosync.Once
	stopOnce  gosync.Once

	mu     gosync.Mutex
	status SyncStatus
}

// NewPoller creates a stopped poller. Call Start to begin delivering.
func NewPoller(fetch FetchFunc, onBatch service.BatchHandler, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		fetch:     fetch,
		onBatch:   onBatch,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		ctx:       ctx,
		cancelCtx: cancel,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine. Calling it more than once has no
// effect.
func (p *Poller) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Refresh requests an immediate fetch. It never blocks; a refresh already
// pending absorbs the request.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Cancel stops the poller and waits for an in-flight delivery to finish.
// No batch is delivered after Cancel returns. It is safe to call more than
// once.
func (p *Poller) Cancel() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.cancelCtx()
		started := true
		p.startOnce.Do(func() { started = false })
		if started {
			<-p.doneCh
		}
		p.setStatus(SyncStopped, nil)
	})
	return nil
}

// Status returns the current poller status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		case <-p.triggerCh:
			p.poll()
		}
	}
}

// poll performs one fetch and delivers the result unless the poller was
// stopped meanwhile. Fetch errors are logged and skipped; the next tick
// retries.
func (p *Poller) poll() {
	select {
	case <-p.stopCh:
		return
	default:
	}

	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	payload, err := p.fetch(ctx)
	if err != nil {
		p.setStatus(SyncError, err)
		p.logger.Warn("poll fetch failed", "error", err)
		return
	}

	select {
	case <-p.stopCh:
		return
	default:
	}

	p.onBatch(payload)
	p.setStatus(SyncIdle, nil)
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}
