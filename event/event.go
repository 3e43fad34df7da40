// Package event implements the typed, enumerated event set spec.md §6
// and §9 call for, replacing a dynamic pub/sub with one variant per
// named event and an exhaustive Kind a consumer can switch over.
package event

import (
	"github.com/arkmire/steamtrade/offer"
	"github.com/google/uuid"
)

// Kind identifies which of the named events in spec.md §6 an Event
// carries.
type Kind int

const (
	KindPollSuccess Kind = iota
	KindPollFailure
	KindNewOffer
	KindSentOfferChanged
	KindReceivedOfferChanged
	KindUnknownOfferSent
	KindSentOfferCanceled
	KindSentPendingOfferCanceled
	KindRealTimeTradeConfirmationRequired
	KindRealTimeTradeCompleted
	KindSessionExpired
	KindFamilyViewRestricted
	KindDebug
)

func (k Kind) String() string {
	switch k {
	case KindPollSuccess:
		return "pollSuccess"
	case KindPollFailure:
		return "pollFailure"
	case KindNewOffer:
		return "newOffer"
	case KindSentOfferChanged:
		return "sentOfferChanged"
	case KindReceivedOfferChanged:
		return "receivedOfferChanged"
	case KindUnknownOfferSent:
		return "unknownOfferSent"
	case KindSentOfferCanceled:
		return "sentOfferCanceled"
	case KindSentPendingOfferCanceled:
		return "sentPendingOfferCanceled"
	case KindRealTimeTradeConfirmationRequired:
		return "realTimeTradeConfirmationRequired"
	case KindRealTimeTradeCompleted:
		return "realTimeTradeCompleted"
	case KindSessionExpired:
		return "sessionExpired"
	case KindFamilyViewRestricted:
		return "familyViewRestricted"
	case KindDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// CancelReason distinguishes the two auto-cancel policies of spec.md
// §4.F for sentOfferCanceled.
type CancelReason string

const (
	ReasonCancelTime      CancelReason = "cancelTime"
	ReasonCancelOfferCount CancelReason = "cancelOfferCount"
)

// Event is the single struct the bus delivers; only the fields relevant
// to Kind are populated. PollID correlates an event back to the poller
// tick that produced it, for log correlation; events published without
// a tick id (confirmation events, session-expired/family-view events)
// leave it zero.
type Event struct {
	Kind  Kind
	PollID uuid.UUID

	Offer     *offer.Offer
	PrevState offer.State

	Reason CancelReason
	Err    error
	Message string
}

// Bus is a minimal channel-backed publisher. The zero value is not
// usable; construct with NewBus. Publish never blocks the caller
// indefinitely longer than the channel's buffer allows — a full buffer
// drops the oldest-ever guarantee in favor of not stalling the poller,
// matching spec.md §1's "at-least-once... not strict-once" framing: a
// slow consumer can miss events, but the core never wedges waiting for
// one.
type Bus struct {
	ch chan Event
}

// NewBus creates a Bus with the given channel buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish delivers e to the subscriber, or drops it if the buffer is
// full.
func (b *Bus) Publish(e Event) {
	select {
	case b.ch <- e:
	default:
	}
}

// Events exposes the receive side for a host to range over.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the underlying channel. Call once, after the poller has
// been stopped.
func (b *Bus) Close() {
	close(b.ch)
}
