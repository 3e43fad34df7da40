package poller

import (
	"log/slog"
	"time"

	"github.com/arkmire/steamtrade/autocancel"
	"github.com/arkmire/steamtrade/event"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/polldata"
	"github.com/arkmire/steamtrade/tradeoffer"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
)

// requestMargin is spec.md §4.D step 3's 30-minute safety margin on the
// recorded request time, and also the buffer step 2 subtracts from
// offers_since before requesting a delta.
const requestMargin = 1800

func (p *Poller) runTickBody(forceFull bool, pollID uuid.UUID) error {
	// Step 1: lazy load.
	if !p.store.IsLoaded() && p.load != nil {
		_ = p.store.Load(p.load, p.username)
	}

	now := time.Now()

	// Step 2: choose cutoff.
	since := p.store.OffersSince()
	opts := tradeoffer.GetOffersOptions{
		GetSent:         true,
		GetReceived:     true,
		GetDescriptions: p.cfg.GetDescriptions,
		Language:        p.cfg.Language,
	}
	if since > 0 && !forceFull {
		opts.ActiveOnly = true
		opts.TimeHistoricalCutoff = since - requestMargin
	} else {
		opts.HistoricalOnly = false
		opts.TimeHistoricalCutoff = sixMonthsAgo(now).Unix()
	}

	// Step 3: mark request-time.
	requestedAt := now.Unix() - requestMargin

	// Step 4: fetch, retrying transient failures (spec.md §12) so one
	// dropped connection doesn't fail the whole tick.
	result, err := p.remote.GetOffersWithRetry(opts, p.cfg.retryCount(), p.cfg.retryDelay())
	if err != nil {
		return err
	}

	hasGlitched := false

	// Step 5: walk sent offers.
	pendingSends := p.canceler.PendingSendCount()
	for _, o := range result.Sent {
		if !o.HasID() {
			continue
		}
		p.walkSent(o, pollID, pendingSends, &hasGlitched)
	}

	// Step 6: auto-cancel sent (independent of the diff above).
	p.applyAutoCancel(result.Sent, now, pollID)

	// Step 7: quota trim.
	if p.cfg.EnableQuotaTrim && p.cfg.Policy.QuotaMax > 0 {
		p.applyQuotaTrim(result.Sent, now, pollID)
	}

	// Step 8: walk received offers.
	for _, o := range result.Received {
		if !o.HasID() {
			continue
		}
		p.walkReceived(o, pollID, &hasGlitched)
	}

	// Step 9: advance cutoff.
	if !hasGlitched {
		next := requestedAt
		if result.OldestNonTerminal != nil && *result.OldestNonTerminal < requestedAt {
			next = *result.OldestNonTerminal
		}
		if next > p.store.OffersSince() {
			p.store.SetOffersSince(next)
		}
	}

	// Step 10: prune.
	p.store.Prune()

	// Step 11: persist.
	if p.save != nil {
		if err := p.save(p.store.Snapshot(), p.username); err != nil {
			slog.Warn("save poll data failed", slog.String("poll_id", pollID.String()), slog.Any("error", err))
			p.bus.Publish(event.Event{Kind: event.KindDebug, PollID: pollID, Message: "save poll data failed: " + err.Error()})
		}
	}

	return nil
}

func (p *Poller) walkSent(o *offer.Offer, pollID uuid.UUID, pendingSends int64, hasGlitched *bool) {
	prev, known := p.store.State(polldata.SentSide, o.ID)

	if !known {
		if pendingSends == 0 {
			p.bus.Publish(event.Event{Kind: event.KindUnknownOfferSent, PollID: pollID, Offer: o})
		}
		if o.FromRealtimeTrade {
			p.emitRealtime(o, pollID)
		}
		p.store.Record(polldata.SentSide, o.ID, o.State, o.UpdatedAt.Unix())
		return
	}

	if prev == o.State {
		return
	}

	if o.IsGlitched(p.cfg.GetDescriptions) {
		*hasGlitched = true
		give, receive := o.TotalItems()
		slog.Debug("glitched offer", slog.String("offer_id", o.ID), slog.Int("give", give), slog.Int("receive", receive))
		p.bus.Publish(event.Event{Kind: event.KindDebug, PollID: pollID, Offer: o, Message: debugGlitchMessage(give, receive) + "\n" + spew.Sdump(o)})
		return
	}

	p.bus.Publish(event.Event{Kind: event.KindSentOfferChanged, PollID: pollID, Offer: o, PrevState: prev})
	if o.FromRealtimeTrade && o.State == offer.StateAccepted {
		p.bus.Publish(event.Event{Kind: event.KindRealTimeTradeCompleted, PollID: pollID, Offer: o})
	}
	p.store.Record(polldata.SentSide, o.ID, o.State, o.UpdatedAt.Unix())
}

func (p *Poller) walkReceived(o *offer.Offer, pollID uuid.UUID, hasGlitched *bool) {
	if o.IsGlitched(p.cfg.GetDescriptions) {
		*hasGlitched = true
		return
	}

	prev, known := p.store.State(polldata.ReceivedSide, o.ID)

	if o.FromRealtimeTrade {
		switch {
		case !known && (o.State == offer.StateCreatedNeedsConfirmation || (o.State == offer.StateActive && o.ConfirmationMethod != offer.ConfirmationNone)):
			p.bus.Publish(event.Event{Kind: event.KindRealTimeTradeConfirmationRequired, PollID: pollID, Offer: o})
		case o.State == offer.StateAccepted && (!known || prev != o.State):
			p.bus.Publish(event.Event{Kind: event.KindRealTimeTradeCompleted, PollID: pollID, Offer: o})
		}
	}

	switch {
	case !known && o.State == offer.StateActive:
		p.bus.Publish(event.Event{Kind: event.KindNewOffer, PollID: pollID, Offer: o})
	case known && prev != o.State:
		p.bus.Publish(event.Event{Kind: event.KindReceivedOfferChanged, PollID: pollID, Offer: o, PrevState: prev})
	}

	p.store.Record(polldata.ReceivedSide, o.ID, o.State, o.UpdatedAt.Unix())
}

func (p *Poller) emitRealtime(o *offer.Offer, pollID uuid.UUID) {
	switch {
	case o.State == offer.StateCreatedNeedsConfirmation, o.State == offer.StateActive && o.ConfirmationMethod != offer.ConfirmationNone:
		p.bus.Publish(event.Event{Kind: event.KindRealTimeTradeConfirmationRequired, PollID: pollID, Offer: o})
	case o.State == offer.StateAccepted:
		p.bus.Publish(event.Event{Kind: event.KindRealTimeTradeCompleted, PollID: pollID, Offer: o})
	}
}

func debugGlitchMessage(give, receive int) string {
	if give == 0 && receive == 0 {
		return "glitched offer: empty item sides"
	}
	return "glitched offer: missing item descriptions"
}

func (p *Poller) applyAutoCancel(sent []*offer.Offer, now time.Time, pollID uuid.UUID) {
	for _, o := range sent {
		if !o.HasID() {
			continue
		}
		cancelMs, hasCancel := p.store.CancelOverride(o.ID)
		if autocancel.Active(o, cancelMs, hasCancel, p.cfg.Policy, now) {
			if err := p.canceler.Cancel(o); err == nil {
				p.store.DeleteTimeProps(o.ID)
				p.bus.Publish(event.Event{Kind: event.KindSentOfferCanceled, PollID: pollID, Offer: o, Reason: event.ReasonCancelTime})
			} else {
				p.bus.Publish(event.Event{Kind: event.KindDebug, PollID: pollID, Offer: o, Message: "auto-cancel (cancelTime) failed: " + err.Error()})
			}
			continue
		}

		pendingMs, hasPending := p.store.PendingCancelOverride(o.ID)
		if autocancel.Pending(o, pendingMs, hasPending, p.cfg.Policy, now) {
			if err := p.canceler.Cancel(o); err == nil {
				p.store.DeleteTimeProps(o.ID)
				p.bus.Publish(event.Event{Kind: event.KindSentPendingOfferCanceled, PollID: pollID, Offer: o})
			} else {
				p.bus.Publish(event.Event{Kind: event.KindDebug, PollID: pollID, Offer: o, Message: "auto-cancel (pendingCancelTime) failed: " + err.Error()})
			}
		}
	}
}

func (p *Poller) applyQuotaTrim(sent []*offer.Offer, now time.Time, pollID uuid.UUID) {
	byID := map[string]*offer.Offer{}
	for _, o := range sent {
		if o.HasID() && o.State == offer.StateActive {
			byID[o.ID] = o
		}
	}
	snap := p.store.Snapshot()
	for id, st := range snap.Sent {
		if st != offer.StateActive {
			continue
		}
		if _, ok := byID[id]; ok {
			continue
		}
		ts := snap.Timestamps[id]
		isOurs := true
		byID[id] = &offer.Offer{ID: id, State: offer.StateActive, UpdatedAt: time.Unix(ts, 0), IsOurs: &isOurs}
	}

	candidates := make([]autocancel.Candidate, 0, len(byID))
	for id, o := range byID {
		ts, ok := p.store.Timestamp(id)
		if !ok {
			ts = o.UpdatedAt.Unix()
		}
		candidates = append(candidates, autocancel.Candidate{Offer: o, Timestamp: ts})
	}

	targets := autocancel.QuotaTrim(candidates, p.cfg.Policy.QuotaMax, p.cfg.Policy.QuotaMinAgeMs, now)
	for _, o := range targets {
		if err := p.canceler.Cancel(o); err == nil {
			p.store.DeleteTimeProps(o.ID)
			p.bus.Publish(event.Event{Kind: event.KindSentOfferCanceled, PollID: pollID, Offer: o, Reason: event.ReasonCancelOfferCount})
		} else {
			p.bus.Publish(event.Event{Kind: event.KindDebug, PollID: pollID, Offer: o, Message: "quota trim cancel failed: " + err.Error()})
		}
	}
}
