// Package manager is the thin facade a host process embeds: it wires
// the Offer Model, Poll-Data Store, Offer Operations, Reconciliation
// Loop, and Confirmation Engine into one handle and exposes the public
// verbs spec.md §2's data-flow diagram describes (send/accept/decline
// driven by user code; start/stop/tick driven by the host's lifecycle).
package manager

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/arkmire/steamtrade/autocancel"
	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/confirmation"
	"github.com/arkmire/steamtrade/event"
	"github.com/arkmire/steamtrade/itemcache"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/polldata"
	"github.com/arkmire/steamtrade/poller"
	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/totp"
	"github.com/arkmire/steamtrade/tradeoffer"
)

// LogConfig configures the process-wide slog default logger, shaped
// like ellavondegurechaff-gohye's bottemplate.LogConfig: a level, an
// output format, and whether to attach caller source info.
type LogConfig struct {
	Level     slog.Level
	Format    string // "json" or "text" (default)
	AddSource bool
}

func (lc LogConfig) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: lc.Level, AddSource: lc.AddSource}
	if lc.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// Config is spec.md §6's recognized knob set.
type Config struct {
	APIKey                   tradeoffer.APIKey
	IntervalMs               int64
	CancelTimeMs             int64
	PendingCancelTimeMs      int64
	CancelOfferCount         int64
	CancelOfferCountMinAgeMs int64
	GetDescriptions          bool
	Language                 string
	EnableQuotaTrim          bool

	// ItemCacheCapacity/TTL size the description cache (spec.md §9's
	// injected-cache redesign); zero capacity disables enrichment.
	ItemCacheCapacity   int
	ItemCacheTTLSeconds int64

	// IdentitySecret configures the confirmation engine's static-secret
	// key derivation (spec.md §4.E). Leave empty and set KeyDeriver to
	// use the dynamic mode instead.
	IdentitySecret string
	KeyDeriver     totp.KeyDeriver

	// Log configures the process-wide slog default logger (spec.md §10).
	// The zero value logs at slog.LevelInfo in text format.
	Log LogConfig
}

// Session identifies the authenticated account the manager acts on
// behalf of, and carries the cookie-bearing transport every
// community-facing collaborator shares.
type Session struct {
	Username  string
	SteamID   steamid.SteamID
	SessionID string
	HTTP      *http.Client
}

// Manager is the assembled handle a host holds for the lifetime of one
// authenticated session.
type Manager struct {
	cfg Config

	Store   *polldata.Store
	Bus     *event.Bus
	Items   *itemcache.Cache
	API     *tradeoffer.APIClient
	Ops     *tradeoffer.Operator
	Confirm *confirmation.Client
	Poll    *poller.Poller
}

// New assembles a Manager. load/save are polldata persistence
// callbacks (spec.md §6); either may be nil to opt out.
func New(cfg Config, session Session, load polldata.LoadFunc, save polldata.SaveFunc) (*Manager, error) {
	slog.SetDefault(slog.New(cfg.Log.handler()))

	store := polldata.New()
	bus := event.NewBus(256)

	var items *itemcache.Cache
	if cfg.ItemCacheCapacity > 0 {
		var err error
		items, err = itemcache.New(cfg.ItemCacheCapacity, time.Duration(cfg.ItemCacheTTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
	}

	rawDoer := session.HTTP
	if rawDoer == nil {
		rawDoer = new(http.Client)
	}
	// Every outbound request runs through community.Validate so a
	// NotLoggedIn redirect or a family-view 403 surfaces as a classified
	// error (spec.md §6) instead of a generic body the caller has to
	// re-sniff.
	httpDoer := community.ValidatingDoer{Doer: rawDoer}

	api := tradeoffer.NewAPIClient(cfg.APIKey, httpDoer)
	if items != nil {
		api.WithItemCache(items)
	}

	ops := tradeoffer.NewOperator(httpDoer, api, store, tradeoffer.Session{
		SessionID: session.SessionID,
		SteamID:   session.SteamID,
	}, bus)

	var deriver totp.KeyDeriver
	switch {
	case cfg.KeyDeriver != nil:
		deriver = cfg.KeyDeriver
	case cfg.IdentitySecret != "":
		deriver = totp.DefaultDeriver{IdentitySecret: cfg.IdentitySecret}
	}

	var confirm *confirmation.Client
	if deriver != nil {
		confirm = confirmation.New(httpDoer, totp.DeviceID(session.SteamID.AccountID()), session.SteamID, deriver, bus)
	}

	policy := autocancel.Policy{
		CancelAfterMs:        cfg.CancelTimeMs,
		PendingCancelAfterMs: cfg.PendingCancelTimeMs,
		QuotaMax:             cfg.CancelOfferCount,
		QuotaMinAgeMs:        cfg.CancelOfferCountMinAgeMs,
	}

	ready := func() bool {
		return cfg.APIKey != "" && session.SteamID != 0
	}

	p := poller.New(api, ops, store, bus, poller.Config{
		IntervalMs:      cfg.IntervalMs,
		GetDescriptions: cfg.GetDescriptions,
		Language:        cfg.Language,
		Policy:          policy,
		EnableQuotaTrim: cfg.EnableQuotaTrim,
	}, ready, session.Username, load, save)

	ops.OnPollRequested(func() { go p.Tick(false) })

	return &Manager{
		cfg:     cfg,
		Store:   store,
		Bus:     bus,
		Items:   items,
		API:     api,
		Ops:     ops,
		Confirm: confirm,
		Poll:    p,
	}, nil
}

// Start begins the reconciliation loop.
func (m *Manager) Start() { m.Poll.Start() }

// Stop winds the loop down (spec.md §5's cancellation policy).
func (m *Manager) Stop() { m.Poll.Stop() }

// Tick runs one manual reconciliation pass, bypassing the timer.
func (m *Manager) Tick(fullUpdate bool) { m.Poll.Tick(fullUpdate) }

// Send implements C.send against o.
func (m *Manager) Send(o *offer.Offer) (offer.State, error) { return m.Ops.Send(o) }

// Accept implements C.accept against o.
func (m *Manager) Accept(o *offer.Offer, skipRefresh bool) (string, error) {
	return m.Ops.Accept(o, skipRefresh)
}

// Decline implements C.decline (== cancel) against o.
func (m *Manager) Decline(o *offer.Offer) error { return m.Ops.Decline(o) }

// Refresh implements C.refresh against o.
func (m *Manager) Refresh(o *offer.Offer) error { return m.Ops.Refresh(o) }

// ConfirmOffer drives the confirmation engine's respond_to_offer for a
// single pending send (spec.md §4.E), answering with "allow" or
// "cancel".
func (m *Manager) ConfirmOffer(offerID string, allow bool) error {
	if m.Confirm == nil {
		return confirmation.ErrNotLoggedIn
	}
	op := confirmation.OpCancel
	if allow {
		op = confirmation.OpAllow
	}
	return m.Confirm.RespondToOffer(offerID, op)
}

// CancelAllConfirmations drives the confirmation engine's bulk
// cancel_all.
func (m *Manager) CancelAllConfirmations() error {
	if m.Confirm == nil {
		return confirmation.ErrNotLoggedIn
	}
	return m.Confirm.CancelAll()
}

// Events exposes the receive side of the event bus.
func (m *Manager) Events() <-chan event.Event { return m.Bus.Events() }
