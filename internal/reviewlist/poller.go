package reviewlist

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Poller runs the fetch cycle without a terminal UI. It fetches once on
// Start and then on every tick until Stop; fetches do not wait for each
// other, and a completion older than the applied snapshot is dropped.
type Poller struct {
	fetcher  Fetcher
	opts     Options
	onUpdate func(State)

	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	fetchWg sync.WaitGroup
	cancel  context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
	issued  uint64
	state   State
}

// NewPoller creates a poller. onUpdate, if set, receives the state after
// every settled fetch; calls are serialized.
func NewPoller(fetcher Fetcher, opts Options, onUpdate func(State)) *Poller {
	return &Poller{
		fetcher:  fetcher,
		opts:     opts.withDefaults(),
		onUpdate: onUpdate,
		stopCh:   make(chan struct{}),
		state:    NewState(),
	}
}

// Start issues the first fetch and starts the ticker
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("poller stopped")
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.loopWg.Add(1)
	go p.run(ctx)

	p.opts.Logger.Info().Dur("interval", p.opts.Interval).Msg("Review poller started")
	return nil
}

// Stop cancels the ticker and in-flight fetches and waits for them to
// return. No fetch is issued after Stop returns, and fetches still in
// flight settle without touching the state or calling onUpdate.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.loopWg.Wait()
	p.cancel()
	p.fetchWg.Wait()
	p.opts.Logger.Info().Msg("Review poller stopped")
}

// IsRunning returns whether the poller is running
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Snapshot returns the current state
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run(ctx context.Context) {
	defer p.loopWg.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.issue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.issue(ctx)
		}
	}
}

// issue starts one fetch in the background
func (p *Poller) issue(ctx context.Context) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.issued++
	seq := p.issued
	p.fetchWg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.fetchWg.Done()

		fetchCtx := ctx
		if p.opts.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
			defer cancel()
		}
		reviews, err := p.fetcher.FetchReviews(fetchCtx)
		p.settle(seq, reviews, err)
	}()
}

func (p *Poller) settle(seq uint64, reviews []Review, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	if err != nil {
		p.state.Fail(seq)
		p.opts.Logger.Warn().Err(err).Uint64("seq", seq).Msg("Failed to fetch reviews")
	} else if !p.state.Apply(seq, reviews) {
		p.opts.Logger.Debug().
			Uint64("seq", seq).
			Uint64("applied", p.state.Applied()).
			Msg("Discarded stale reviews response")
	}

	if p.onUpdate != nil {
		p.onUpdate(p.state)
	}
}
