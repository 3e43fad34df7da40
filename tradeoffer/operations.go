package tradeoffer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/event"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/polldata"
	"github.com/arkmire/steamtrade/steamid"
)

const (
	communityBaseURL    = "https://steamcommunity.com/"
	sendPath            = "tradeoffer/new/send"
	offerExpiry         = 14 * 24 * time.Hour
)

// Session carries the identity and anti-forgery fields every
// community-facing mutation (send, accept) needs beyond what the
// IEconService adapter requires.
type Session struct {
	SessionID string
	SteamID   steamid.SteamID
}

// Operator implements component C's imperative verbs (spec.md §4.C):
// send, accept, decline/cancel, refresh. It owns the process-wide
// pending-send counter spec.md §5 describes, and records successful
// sends and declines/cancels in the shared Store; Accept does not write
// to the Store.
type Operator struct {
	http    HTTPDoer
	api     *APIClient
	store   *polldata.Store
	session Session
	bus     *event.Bus

	// onPollRequested is invoked after a successful decline or accept,
	// which spec.md §4.C asks to "schedule an immediate poll" — wired by
	// the manager to the poller's Tick.
	onPollRequested func()

	pendingSend int64
}

// NewOperator builds an Operator. httpDoer is the community-site
// transport (cookie-bearing, same as the confirmation engine's); api is
// the IEconService adapter used by Cancel/Decline/Refresh. bus may be
// nil; when set, a transport call that comes back ErrSessionExpired or
// ErrFamilyViewRestricted (spec.md §7) is republished onto it.
func NewOperator(httpDoer HTTPDoer, api *APIClient, store *polldata.Store, session Session, bus *event.Bus) *Operator {
	return &Operator{http: httpDoer, api: api, store: store, session: session, bus: bus}
}

// publishTransportEvent republishes a session-fatal transport error as
// the matching bus event (spec.md §7's NotLoggedIn/FamilyViewRestricted
// triggers), leaving err itself untouched for the caller.
func (op *Operator) publishTransportEvent(err error) {
	if op.bus == nil || err == nil {
		return
	}
	switch {
	case errors.Is(err, community.ErrSessionExpired):
		op.bus.Publish(event.Event{Kind: event.KindSessionExpired, Err: err})
	case errors.Is(err, community.ErrFamilyViewRestricted):
		op.bus.Publish(event.Event{Kind: event.KindFamilyViewRestricted, Err: err})
	}
}

// OnPollRequested registers the immediate-poll hook.
func (op *Operator) OnPollRequested(fn func()) {
	op.onPollRequested = fn
}

// PendingSendCount reports the live value of the process-wide
// pending-send counter spec.md §5 describes, consulted by the
// reconciliation loop to suppress unknownOfferSent notices for offers
// this process just sent itself.
func (op *Operator) PendingSendCount() int64 {
	return atomic.LoadInt64(&op.pendingSend)
}

func (op *Operator) requestImmediatePoll() {
	if op.onPollRequested != nil {
		op.onPollRequested()
	}
}

type wireItem struct {
	AppID     uint32 `json:"appid"`
	ContextID uint64 `json:"contextid,string"`
	AssetID   uint64 `json:"assetid,string"`
	Amount    uint32 `json:"amount,string"`
}

type wireOfferBody struct {
	NewVersion bool       `json:"newversion"`
	Version    int        `json:"version"`
	Me         wireSide   `json:"me"`
	Them       wireSide   `json:"them"`
}

type wireSide struct {
	Assets   []wireItem `json:"assets"`
	Currency []struct{} `json:"currency"`
	Ready    bool       `json:"ready"`
}

// Send implements C.send (spec.md §4.C). On success o is mutated in
// place to carry the server id and resulting state.
func (op *Operator) Send(o *offer.Offer) (offer.State, error) {
	if o.HasID() {
		return 0, ErrInvalidState
	}
	if len(o.ItemsToGive) == 0 && len(o.ItemsToReceive) == 0 {
		return 0, ErrInvalidState
	}
	if o.Partner == 0 {
		return 0, ErrInvalidState
	}

	body := wireOfferBody{
		NewVersion: true,
		Version:    len(o.ItemsToGive) + len(o.ItemsToReceive) + 1,
		Me:         wireSide{Assets: toWireItems(o.ItemsToGive), Currency: []struct{}{}},
		Them:       wireSide{Assets: toWireItems(o.ItemsToReceive), Currency: []struct{}{}},
	}
	encodedBody, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	form := url.Values{
		"sessionid":          {op.session.SessionID},
		"serverid":           {"1"},
		"partner":            {strconv.FormatUint(uint64(o.Partner), 10)},
		"tradeoffermessage":  {o.Message},
		"json_tradeoffer":    {string(encodedBody)},
	}
	if o.Token != "" {
		params, _ := json.Marshal(map[string]string{"trade_offer_access_token": o.Token})
		form.Set("trade_offer_create_params", string(params))
	}
	if o.Countering != "" {
		form.Set("tradeofferid_countered", o.Countering)
	}

	atomic.AddInt64(&op.pendingSend, 1)
	respBody, status, _, err := op.postForm(sendPath, form)
	atomic.AddInt64(&op.pendingSend, -1)
	if err != nil {
		return 0, err
	}
	if status == http.StatusUnauthorized {
		return 0, ErrNotLoggedIn
	}
	if status != http.StatusOK {
		return 0, &HTTPError{Status: status}
	}

	var resp struct {
		StrError               string `json:"strError"`
		TradeOfferID           string `json:"tradeofferid"`
		NeedsMobileConfirmation bool   `json:"needs_mobile_confirmation"`
		NeedsEmailConfirmation  bool   `json:"needs_email_confirmation"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if se := classifyStrError(resp.StrError); se != nil {
		return 0, se
	}
	if resp.StrError != "" {
		return 0, fmt.Errorf("tradeoffer: send failed: %s", resp.StrError)
	}
	if resp.TradeOfferID == "" {
		return 0, ErrDataTemporarilyUnavailable
	}

	now := time.Now()
	o.ID = resp.TradeOfferID
	o.State = offer.StateActive
	o.CreatedAt = now
	o.UpdatedAt = now
	o.ExpiresAt = now.Add(offerExpiry)

	if resp.NeedsMobileConfirmation {
		o.State = offer.StateCreatedNeedsConfirmation
		o.ConfirmationMethod = offer.ConfirmationMobile
	} else if resp.NeedsEmailConfirmation {
		o.State = offer.StateCreatedNeedsConfirmation
		o.ConfirmationMethod = offer.ConfirmationEmail
	}

	op.store.Record(polldata.SentSide, o.ID, o.State, now.Unix())
	if o.CancelAfterMs != nil {
		op.store.SetCancel(o.ID, *o.CancelAfterMs)
	}
	if o.PendingCancelAfterMs != nil {
		op.store.SetPendingCancel(o.ID, *o.PendingCancelAfterMs)
	}

	return o.State, nil
}

func toWireItems(items []offer.Item) []wireItem {
	out := make([]wireItem, 0, len(items))
	for _, it := range items {
		out = append(out, wireItem{AppID: it.GameID, ContextID: it.ContextID, AssetID: it.AssetID, Amount: it.Amount})
	}
	return out
}

// Decline implements C.decline (alias cancel): precondition state in
// {Active, CreatedNeedsConfirmation}. Which remote verb fires depends
// on which side sent the offer.
func (op *Operator) Decline(o *offer.Offer) error {
	if o.State != offer.StateActive && o.State != offer.StateCreatedNeedsConfirmation {
		return ErrInvalidState
	}

	var err error
	isOurs := o.IsOurs != nil && *o.IsOurs
	if isOurs {
		err = op.api.Cancel(o.ID)
	} else {
		err = op.api.Decline(o.ID)
	}
	if err != nil {
		op.publishTransportEvent(err)
		return err
	}

	side := polldata.ReceivedSide
	if isOurs {
		o.State = offer.StateCanceled
		side = polldata.SentSide
	} else {
		o.State = offer.StateDeclined
	}
	o.UpdatedAt = time.Now()
	op.store.Record(side, o.ID, o.State, o.UpdatedAt.Unix())
	op.requestImmediatePoll()
	return nil
}

// Cancel is the alias spec.md §4.C names explicitly.
func (op *Operator) Cancel(o *offer.Offer) error { return op.Decline(o) }

// Accept implements C.accept: precondition state=Active ∧ ¬is_ours.
func (op *Operator) Accept(o *offer.Offer, skipRefresh bool) (string, error) {
	if o.State != offer.StateActive {
		return "", ErrInvalidState
	}
	if o.IsOurs != nil && *o.IsOurs {
		return "", ErrInvalidState
	}

	form := url.Values{
		"sessionid":  {op.session.SessionID},
		"serverid":   {"1"},
		"tradeofferid": {o.ID},
		"partner":    {strconv.FormatUint(uint64(o.Partner), 10)},
		"captcha":    {""},
	}
	path := fmt.Sprintf("tradeoffer/%s/accept", o.ID)
	body, status, eresultHeader, err := op.postForm(path, form)
	if err != nil {
		return "", err
	}
	if status == http.StatusForbidden {
		return "", ErrNotLoggedIn
	}
	if status != http.StatusOK {
		var errResp struct {
			StrError string `json:"strError"`
		}
		_ = json.Unmarshal(body, &errResp)
		if se := classifyStrError(errResp.StrError); se != nil {
			return "", se
		}
		// spec.md §4.C is unconditional here: any other non-200 is a
		// typed SteamError carrying eresult and the raw body, never a
		// bare HTTPError, even when strError didn't match a known kind.
		eresult, _ := strconv.Atoi(eresultHeader)
		return "", &SteamError{Eresult: eresult, Body: body}
	}

	var resp struct {
		TradeID                 string `json:"tradeid"`
		NeedsMobileConfirmation bool   `json:"needs_mobile_confirmation"`
		NeedsEmailConfirmation  bool   `json:"needs_email_confirmation"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.TradeID != "" {
		o.TradeID = resp.TradeID
	}
	if resp.NeedsMobileConfirmation {
		o.ConfirmationMethod = offer.ConfirmationMobile
	} else if resp.NeedsEmailConfirmation {
		o.ConfirmationMethod = offer.ConfirmationEmail
	}

	confirmationPending := resp.NeedsMobileConfirmation || resp.NeedsEmailConfirmation
	op.requestImmediatePoll()

	if skipRefresh {
		if confirmationPending {
			return "pending", nil
		}
		return "accepted", nil
	}

	if err := op.Refresh(o); err != nil {
		return "", err
	}
	switch {
	case o.State == offer.StateInEscrow:
		return "escrow", nil
	case confirmationPending:
		return "pending", nil
	default:
		return "accepted", nil
	}
}

// Refresh implements C.refresh: re-fetch the offer by id and
// re-populate o's fields from the result.
func (op *Operator) Refresh(o *offer.Offer) error {
	if !o.HasID() {
		return ErrInvalidState
	}
	fresh, err := op.api.GetOffer(o.ID, GetOfferOptions{})
	if err != nil {
		op.publishTransportEvent(err)
		return fmt.Errorf("tradeoffer: cannot load trade data: %w", err)
	}
	message, token, countering := o.Message, o.Token, o.Countering
	cancelOverride, pendingOverride := o.CancelAfterMs, o.PendingCancelAfterMs
	*o = *fresh
	o.Message, o.Token, o.Countering = message, token, countering
	o.CancelAfterMs, o.PendingCancelAfterMs = cancelOverride, pendingOverride
	return nil
}

// postForm returns the response body, status, and the upstream's
// "x-eresult" header (zergu1ar-steam/trade.go's Cancel/Decline read the
// same header; accept's JSON body carries no equivalent field, so a
// caller building a SteamError from a non-200 has to read it here).
func (op *Operator) postForm(path string, form url.Values) ([]byte, int, string, error) {
	req, err := http.NewRequest(http.MethodPost, communityBaseURL+path, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", communityBaseURL+"trade/")
	resp, err := op.http.Do(req)
	if err != nil {
		op.publishTransportEvent(err)
		return nil, 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", err
	}
	return body, resp.StatusCode, resp.Header.Get("x-eresult"), nil
}
