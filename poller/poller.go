// Package poller implements the Reconciliation Loop (spec.md §4.D): a
// single-flight, rate-floored timer that diffs each fetched snapshot of
// sent/received offers against the Poll-Data Store, applies the
// auto-cancel policies, advances the historical cutoff, and persists.
package poller

import (
	"errors"
	"sync"
	"time"

	"github.com/arkmire/steamtrade/autocancel"
	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/event"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/polldata"
	"github.com/arkmire/steamtrade/tradeoffer"
	"github.com/google/uuid"
)

// minInterval is spec.md §4.D's rate floor.
const minInterval = 1000 * time.Millisecond

// sixMonthsAgo approximates spec.md §4.D step 2's "now − 6 months" full
// lookback window.
func sixMonthsAgo(now time.Time) time.Time {
	return now.AddDate(0, -6, 0)
}

// RemoteOffers is the subset of the IEconService adapter the loop
// needs — satisfied by *tradeoffer.APIClient. GetOffersWithRetry is the
// retrying form (spec.md §12) the tick body calls so a single transient
// network blip doesn't fail an entire tick.
type RemoteOffers interface {
	GetOffersWithRetry(opts tradeoffer.GetOffersOptions, retryCount int, retryDelay time.Duration) (*tradeoffer.OffersResult, error)
}

// Canceler issues the decline/cancel verb the loop's auto-cancel steps
// invoke — satisfied by *tradeoffer.Operator.
type Canceler interface {
	Cancel(o *offer.Offer) error
	PendingSendCount() int64
}

// Config mirrors spec.md §6's recognized knobs plus the §9 open-question
// feature flag for quota trim.
type Config struct {
	IntervalMs      int64 // default 30000; negative disables rescheduling
	GetDescriptions bool
	Language        string
	Policy          autocancel.Policy
	EnableQuotaTrim bool

	// RetryCount/RetryDelayMs size the GetOffersWithRetry call each tick
	// makes (spec.md §12); zero takes the defaults below.
	RetryCount   int
	RetryDelayMs int64
}

func (c Config) interval() time.Duration {
	if c.IntervalMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c Config) retryCount() int {
	if c.RetryCount <= 0 {
		return 3
	}
	return c.RetryCount
}

func (c Config) retryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Ready reports whether the loop's two hard preconditions are met:
// a remote-API key is configured and the session is authenticated.
type Ready func() bool

// Poller drives spec.md §4.D's tick on a timer, exposing Start/Stop/Tick
// for host control.
type Poller struct {
	remote   RemoteOffers
	canceler Canceler
	store    *polldata.Store
	bus      *event.Bus
	cfg      Config
	ready    Ready
	username string
	load     polldata.LoadFunc
	save     polldata.SaveFunc

	mu              sync.Mutex
	stopped         bool
	ticking         bool
	lastTickStarted time.Time
	timer           *time.Timer
	ticks           sync.WaitGroup
}

// New builds a Poller. username, load, and save may be zero-valued —
// persistence is opt-in per spec.md §6.
func New(remote RemoteOffers, canceler Canceler, store *polldata.Store, bus *event.Bus, cfg Config, ready Ready, username string, load polldata.LoadFunc, save polldata.SaveFunc) *Poller {
	return &Poller{
		remote:   remote,
		canceler: canceler,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		ready:    ready,
		username: username,
		load:     load,
		save:     save,
		stopped:  true,
	}
}

// Start arms the loop: an immediate tick, then self-rescheduling on
// cfg's interval (spec.md §4.D step 13).
func (p *Poller) Start() {
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()
	go p.Tick(false)
}

// Stop sets a flag so no further timer callbacks fire, then blocks
// until the current tick (if any) has finished (spec.md §4.D: stop
// sets a flag and awaits current tick completion).
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.ticks.Wait()
}

// IsTicking reports whether a tick is currently running.
func (p *Poller) IsTicking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticking
}

// Tick runs one pass of spec.md §4.D's reconciliation body, or
// short-circuits per the rate floor / single-flight rules.
func (p *Poller) Tick(forceFull bool) {
	now := time.Now()

	p.mu.Lock()
	if p.ticking {
		p.mu.Unlock()
		return
	}
	elapsed := now.Sub(p.lastTickStarted)
	if !p.lastTickStarted.IsZero() && elapsed < minInterval {
		p.mu.Unlock()
		p.scheduleNext(minInterval - elapsed)
		return
	}
	p.ticking = true
	p.lastTickStarted = now
	p.ticks.Add(1)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.ticking = false
		stopped := p.stopped
		p.mu.Unlock()
		p.ticks.Done()
		if !stopped && p.cfg.IntervalMs >= 0 {
			p.scheduleNext(p.cfg.interval())
		}
	}()

	if p.ready == nil || !p.ready() {
		return
	}

	pollID := newPollID()
	if err := p.runTickBody(forceFull, pollID); err != nil {
		p.publishTransportEvent(err)
		p.bus.Publish(event.Event{Kind: event.KindPollFailure, PollID: pollID, Err: err})
		return
	}
	p.bus.Publish(event.Event{Kind: event.KindPollSuccess, PollID: pollID})
}

// publishTransportEvent republishes a session-fatal transport error as
// the matching bus event (spec.md §7), mirroring
// tradeoffer.Operator.publishTransportEvent.
func (p *Poller) publishTransportEvent(err error) {
	switch {
	case errors.Is(err, community.ErrSessionExpired):
		p.bus.Publish(event.Event{Kind: event.KindSessionExpired, Err: err})
	case errors.Is(err, community.ErrFamilyViewRestricted):
		p.bus.Publish(event.Event{Kind: event.KindFamilyViewRestricted, Err: err})
	}
}

func (p *Poller) scheduleNext(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.timer = time.AfterFunc(delay, func() { p.Tick(false) })
}

func newPollID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}
	}
	return id
}
