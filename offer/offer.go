// Package offer implements the Offer value object (spec.md §3, §4.A): a
// per-request snapshot of one trade offer's identity, state, items, and
// timestamps. It has no network access and no back-reference to whatever
// manages it — callers that need to send, accept, or decline an offer do
// so through package tradeoffer, which takes an *Offer plus its own
// context rather than the offer reaching back out for one (spec.md §9's
// "back-reference from an offer to its manager" redesign note).
package offer

import (
	"time"

	"github.com/arkmire/steamtrade/steamid"
)

// State is the subset of the remote trade-offer state machine that
// drives reconciliation behavior (spec.md §3).
type State int

const (
	StateInvalid State = iota
	StateActive
	StateAccepted
	StateCountered
	StateExpired
	StateCanceled
	StateDeclined
	StateInvalidItems
	StateCreatedNeedsConfirmation
	StateCanceledBySecondFactor
	StateInEscrow
	StateEscrowRollback
)

var stateNames = map[State]string{
	StateInvalid:                  "Invalid",
	StateActive:                   "Active",
	StateAccepted:                 "Accepted",
	StateCountered:                "Countered",
	StateExpired:                  "Expired",
	StateCanceled:                 "Canceled",
	StateDeclined:                 "Declined",
	StateInvalidItems:             "InvalidItems",
	StateCreatedNeedsConfirmation: "CreatedNeedsConfirmation",
	StateCanceledBySecondFactor:   "CanceledBySecondFactor",
	StateInEscrow:                 "InEscrow",
	StateEscrowRollback:           "EscrowRollback",
}

// String returns the logging tag for a state, spec.md §4.A's state_name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// NonTerminal reports whether further transitions are expected from s.
// The non-terminal set per spec.md §3 is exactly
// {Accepted, CreatedNeedsConfirmation, InEscrow}; everything else,
// including states not in this package's enum, is terminal.
func (s State) NonTerminal() bool {
	switch s {
	case StateAccepted, StateCreatedNeedsConfirmation, StateInEscrow:
		return true
	default:
		return false
	}
}

// Terminal is the complement of NonTerminal.
func (s State) Terminal() bool {
	return !s.NonTerminal()
}

// ConfirmationMethod is the second-factor channel a pending offer is
// waiting on.
type ConfirmationMethod int

const (
	ConfirmationNone ConfirmationMethod = iota
	ConfirmationEmail
	ConfirmationMobile
)

func (m ConfirmationMethod) String() string {
	switch m {
	case ConfirmationEmail:
		return "Email"
	case ConfirmationMobile:
		return "Mobile"
	default:
		return "None"
	}
}

// Item is one asset reference inside an offer's give or receive bag.
// Name is populated only when description enrichment (spec.md §6
// get_descriptions) is on; it is not one of the wire-required fields and
// is never sent to the server.
type Item struct {
	GameID    uint32
	ContextID uint64
	AssetID   uint64
	Amount    uint32
	Name      string
}

// Offer is the value object spec.md §3 describes. Zero value is not
// useful; construct with New.
type Offer struct {
	ID      string
	Partner steamid.SteamID
	Message string

	State State

	ItemsToGive    []Item
	ItemsToReceive []Item

	IsOurs *bool

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time

	TradeID string

	FromRealtimeTrade bool

	ConfirmationMethod ConfirmationMethod

	EscrowUntil time.Time

	Token      string
	Countering string

	// Per-instance overrides for the auto-cancel policies (spec.md §3,
	// §4.F); nil means "use the manager default", distinct from 0 which
	// means "never auto-cancel this one."
	CancelAfterMs        *int64
	PendingCancelAfterMs *int64
}

const maxMessageLen = 128

// New constructs an unsent offer for partner. Only individual accounts
// can trade (spec.md §4.A).
func New(partner steamid.SteamID, token string) (*Offer, error) {
	if !partner.IsIndividual() {
		return nil, ErrNotIndividualAccount
	}
	return &Offer{
		Partner: partner,
		Token:   token,
		State:   StateInvalid,
	}, nil
}

// HasID reports whether the offer has been transmitted and accepted by
// the server — spec.md §3's id-set invariant.
func (o *Offer) HasID() bool {
	return o.ID != ""
}

// SetMessage fails once the offer has an id, matching every other
// pre-send mutator (spec.md §4.A).
func (o *Offer) SetMessage(message string) error {
	if o.HasID() {
		return ErrAlreadySent
	}
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	o.Message = message
	return nil
}

// SetToken fails once the offer has an id.
func (o *Offer) SetToken(token string) error {
	if o.HasID() {
		return ErrAlreadySent
	}
	o.Token = token
	return nil
}

// AddItem appends an item to the give or receive bag. items_to_give and
// items_to_receive cannot be mutated once id is set (spec.md §3).
func (o *Offer) AddItem(toGive bool, item Item) error {
	if o.HasID() {
		return ErrAlreadySent
	}
	if item.Amount == 0 {
		item.Amount = 1
	}
	if toGive {
		o.ItemsToGive = append(o.ItemsToGive, item)
	} else {
		o.ItemsToReceive = append(o.ItemsToReceive, item)
	}
	return nil
}

// RemoveItem removes the item matching assetID from the given bag, if
// present. Fails once the offer has an id.
func (o *Offer) RemoveItem(toGive bool, assetID uint64) error {
	if o.HasID() {
		return ErrAlreadySent
	}
	bag := &o.ItemsToReceive
	if toGive {
		bag = &o.ItemsToGive
	}
	out := (*bag)[:0]
	for _, it := range *bag {
		if it.AssetID != assetID {
			out = append(out, it)
		}
	}
	*bag = out
	return nil
}

// IsGlitched reports whether this is a partial/degraded payload that
// should be ignored for this tick (spec.md §4.A, §8 property 3):
// transmitted and either both item sides are empty, or — when
// descriptionsEnabled — any item lacks a resolved display name.
func (o *Offer) IsGlitched(descriptionsEnabled bool) bool {
	if !o.HasID() {
		return false
	}
	if len(o.ItemsToGive) == 0 && len(o.ItemsToReceive) == 0 {
		return true
	}
	if !descriptionsEnabled {
		return false
	}
	for _, it := range o.ItemsToGive {
		if it.Name == "" {
			return true
		}
	}
	for _, it := range o.ItemsToReceive {
		if it.Name == "" {
			return true
		}
	}
	return false
}

// TotalItems is a small helper for glitch-notice logging (item counts).
func (o *Offer) TotalItems() (give, receive int) {
	return len(o.ItemsToGive), len(o.ItemsToReceive)
}
