// Package tradeoffer implements the remote "IEconService" adapter
// (spec.md §6) and, in operations.go, the per-offer imperative verbs of
// component C (spec.md §4.C): send, accept, decline/cancel, refresh.
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
	"time"

	"github.com/arkmire/steamtrade/itemcache"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/steamid"
)

// APIKey is the Steam Web API key used for every IEconService call.
type APIKey string

const apiBaseURL = "https://api.steampowered.com/IEconService/%s/v1/"

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"

// HTTPDoer is the minimal transport seam the API client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIClient is the concrete default for spec.md §6's "Remote API"
// collaborator, adapted from the teacher's tradeoffer.Client.
type APIClient struct {
	http  HTTPDoer
	key   APIKey
	items *itemcache.Cache
}

// NewAPIClient builds an APIClient for key, using httpDoer for
// transport (normally a *http.Client carrying the community session's
// cookies — this adapter itself never touches cookies).
func NewAPIClient(key APIKey, httpDoer HTTPDoer) *APIClient {
	return &APIClient{http: httpDoer, key: key}
}

// WithItemCache attaches the description cache used to resolve item
// names when GetDescriptions is requested (spec.md §6's item-cache
// collaborator). The names it supplies are what Offer.IsGlitched later
// inspects. Returns the receiver for chaining.
func (c *APIClient) WithItemCache(cache *itemcache.Cache) *APIClient {
	c.items = cache
	return c
}

type itemDTO struct {
	AppID     uint32 `json:"appid"`
	ContextID uint64 `json:"contextid,string"`
	AssetID   uint64 `json:"assetid,string"`
	Amount    uint32 `json:"amount,string"`
	ClassID   uint64 `json:"classid,string"`
}

type descriptionDTO struct {
	AppID uint32 `json:"appid"`
	ClassID uint64 `json:"classid,string"`
	Name  string `json:"market_hash_name"`
}

type offerDTO struct {
	ID                 string    `json:"tradeofferid"`
	Partner            uint32    `json:"accountid_other"`
	Message            string    `json:"message"`
	State              int       `json:"trade_offer_state"`
	ItemsToGive        []itemDTO `json:"items_to_give"`
	ItemsToReceive     []itemDTO `json:"items_to_receive"`
	IsOurOffer         bool      `json:"is_our_offer"`
	CreatedAt          int64     `json:"time_created"`
	UpdatedAt          int64     `json:"time_updated"`
	ExpiresAt          int64     `json:"expiration_time"`
	TradeID            string    `json:"tradeid"`
	FromRealTimeTrade  bool      `json:"from_real_time_trade"`
	ConfirmationMethod int       `json:"confirmation_method"`
	EscrowEndDate      int64     `json:"escrow_end_date"`
}

// toOffer converts the wire shape into the domain value object. The
// partner's universe/type/instance aren't on the wire, so the result
// uses the ordinary public-individual-desktop encoding every community
// trade partner actually has; callers that already hold the partner's
// full SteamID should prefer that one over Offer.Partner for addressing.
func (d offerDTO) toOffer(items *itemcache.Cache) *offer.Offer {
	isOurs := d.IsOurOffer
	o := &offer.Offer{
		ID:                 d.ID,
		Partner:            steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, d.Partner),
		Message:            d.Message,
		State:              offer.State(d.State),
		IsOurs:             &isOurs,
		FromRealtimeTrade:  d.FromRealTimeTrade,
		ConfirmationMethod: offer.ConfirmationMethod(d.ConfirmationMethod),
		TradeID:            d.TradeID,
	}
	if d.CreatedAt > 0 {
		o.CreatedAt = time.Unix(d.CreatedAt, 0)
	}
	if d.UpdatedAt > 0 {
		o.UpdatedAt = time.Unix(d.UpdatedAt, 0)
	}
	if d.ExpiresAt > 0 {
		o.ExpiresAt = time.Unix(d.ExpiresAt, 0)
	}
	if d.EscrowEndDate > 0 {
		o.EscrowUntil = time.Unix(d.EscrowEndDate, 0)
	}
	o.ItemsToGive = toItems(d.ItemsToGive, items)
	o.ItemsToReceive = toItems(d.ItemsToReceive, items)
	return o
}

func toItems(dtos []itemDTO, cache *itemcache.Cache) []offer.Item {
	out := make([]offer.Item, 0, len(dtos))
	for _, d := range dtos {
		item := offer.Item{
			GameID:    d.AppID,
			ContextID: d.ContextID,
			AssetID:   d.AssetID,
			Amount:    d.Amount,
		}
		if cache != nil {
			if name, ok := cache.Name(itemcache.Key{GameID: d.AppID, ClassID: d.ClassID}); ok {
				item.Name = name
			}
		}
		out = append(out, item)
	}
	return out
}

func cacheDescriptions(cache *itemcache.Cache, descriptions []descriptionDTO) {
	if cache == nil {
		return
	}
	for _, d := range descriptions {
		cache.Put(itemcache.Key{GameID: d.AppID, ClassID: d.ClassID}, d.Name)
	}
}

// GetOfferOptions configures a single-offer fetch.
type GetOfferOptions struct {
	Language        string
	GetDescriptions bool
}

// GetOffer implements the remote "GetTradeOffer" verb (spec.md §6).
func (c *APIClient) GetOffer(id string, opts GetOfferOptions) (*offer.Offer, error) {
	params := url.Values{
		"key":          {string(c.key)},
		"tradeofferid": {id},
	}
	if opts.GetDescriptions {
		params.Set("get_descriptions", "1")
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	body, status, err := c.get("GetTradeOffer", params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrNotLoggedIn
	}
	if status != http.StatusOK {
		return nil, &HTTPError{Status: status}
	}

	var env struct {
		Response struct {
			Offer        *offerDTO        `json:"offer"`
			Descriptions []descriptionDTO `json:"descriptions"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Response.Offer == nil {
		return nil, ErrDataTemporarilyUnavailable
	}
	cacheDescriptions(c.items, env.Response.Descriptions)
	return env.Response.Offer.toOffer(c.items), nil
}

// GetOffersOptions configures the bulk offers fetch (spec.md §4.D
// step 2/4).
type GetOffersOptions struct {
	GetSent              bool
	GetReceived          bool
	GetDescriptions      bool
	ActiveOnly           bool
	HistoricalOnly       bool
	TimeHistoricalCutoff int64
	Language             string
}

// OffersResult is the adapter's response shape, including the
// oldest-non-terminal timestamp the reconciliation loop's cutoff-advance
// step (spec.md §4.D step 9) needs.
type OffersResult struct {
	Sent              []*offer.Offer
	Received          []*offer.Offer
	OldestNonTerminal *int64
}

// GetOffers implements the remote "GetTradeOffers" verb.
func (c *APIClient) GetOffers(opts GetOffersOptions) (*OffersResult, error) {
	if !opts.GetSent && !opts.GetReceived {
		return nil, fmt.Errorf("tradeoffer: GetSent and GetReceived can't both be false")
	}
	params := url.Values{"key": {string(c.key)}}
	if opts.GetSent {
		params.Set("get_sent_offers", "1")
	}
	if opts.GetReceived {
		params.Set("get_received_offers", "1")
	}
	if opts.GetDescriptions {
		params.Set("get_descriptions", "1")
		if opts.Language != "" {
			params.Set("language", opts.Language)
		}
	}
	if opts.ActiveOnly {
		params.Set("active_only", "1")
	}
	if opts.HistoricalOnly {
		params.Set("historical_only", "1")
	}
	if opts.TimeHistoricalCutoff > 0 {
		params.Set("time_historical_cutoff", strconv.FormatInt(opts.TimeHistoricalCutoff, 10))
	}

	body, status, err := c.get("GetTradeOffers", params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrNotLoggedIn
	}
	if status != http.StatusOK {
		return nil, &HTTPError{Status: status}
	}

	var env struct {
		Response struct {
			SentOffers     []offerDTO       `json:"trade_offers_sent"`
			ReceivedOffers []offerDTO       `json:"trade_offers_received"`
			Descriptions   []descriptionDTO `json:"descriptions"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	cacheDescriptions(c.items, env.Response.Descriptions)

	result := &OffersResult{}
	allEmpty := true
	var oldest *int64
	for _, d := range env.Response.SentOffers {
		o := d.toOffer(c.items)
		result.Sent = append(result.Sent, o)
		if len(o.ItemsToGive) > 0 || len(o.ItemsToReceive) > 0 {
			allEmpty = false
		}
		trackOldest(&oldest, o, d.UpdatedAt)
	}
	for _, d := range env.Response.ReceivedOffers {
		o := d.toOffer(c.items)
		result.Received = append(result.Received, o)
		if len(o.ItemsToGive) > 0 || len(o.ItemsToReceive) > 0 {
			allEmpty = false
		}
		trackOldest(&oldest, o, d.UpdatedAt)
	}
	result.OldestNonTerminal = oldest

	if (len(result.Sent) > 0 || len(result.Received) > 0) && allEmpty {
		return nil, ErrDataTemporarilyUnavailable
	}

	return result, nil
}

func trackOldest(oldest **int64, o *offer.Offer, updatedAt int64) {
	if !o.State.NonTerminal() || updatedAt <= 0 {
		return
	}
	if *oldest == nil || updatedAt < **oldest {
		v := updatedAt
		*oldest = &v
	}
}

// Cancel implements the remote "CancelTradeOffer" verb.
func (c *APIClient) Cancel(id string) error {
	return c.action("CancelTradeOffer", id)
}

// Decline implements the remote "DeclineTradeOffer" verb.
func (c *APIClient) Decline(id string) error {
	return c.action("DeclineTradeOffer", id)
}

func (c *APIClient) action(method, id string) error {
	form := url.Values{
		"key":          {string(c.key)},
		"tradeofferid": {id},
	}
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf(apiBaseURL, method), bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotLoggedIn
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.StatusCode}
	}
	return nil
}

// GetTradeStatus implements the remote "GetTradeStatus" verb (spec.md
// §6); nothing in the reconciliation loop calls it today, but it's part
// of the documented IEconService surface a host may want for
// post-acceptance escrow/receipt checks.
func (c *APIClient) GetTradeStatus(tradeID, language string, getDescriptions bool) (json.RawMessage, error) {
	params := url.Values{
		"key":     {string(c.key)},
		"tradeid": {tradeID},
	}
	if getDescriptions {
		params.Set("get_descriptions", "1")
	}
	if language != "" {
		params.Set("language", language)
	}
	body, status, err := c.get("GetTradeStatus", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &HTTPError{Status: status}
	}
	var env struct {
		Response struct {
			Trades []json.RawMessage `json:"trades"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Response.Trades) == 0 {
		return nil, ErrDataTemporarilyUnavailable
	}
	return env.Response.Trades[0], nil
}

// GetOfferWithRetry wraps GetOffer in withRetry, carried from the
// teacher's GetOfferWithRetry/withRetry pair — a transient failure on a
// single tick's fetch is retried rather than returned at once; a missing
// session (ErrNotLoggedIn) is returned without retrying.
func (c *APIClient) GetOfferWithRetry(id string, opts GetOfferOptions, retryCount int, retryDelay time.Duration) (*offer.Offer, error) {
	var res *offer.Offer
	return res, withRetry(func() (err error) {
		res, err = c.GetOffer(id, opts)
		return err
	}, retryCount, retryDelay)
}

// GetOffersWithRetry wraps GetOffers in withRetry, as GetOfferWithRetry
// does for the single-offer call.
func (c *APIClient) GetOffersWithRetry(opts GetOffersOptions, retryCount int, retryDelay time.Duration) (*OffersResult, error) {
	var res *OffersResult
	return res, withRetry(func() (err error) {
		res, err = c.GetOffers(opts)
		return err
	}, retryCount, retryDelay)
}

// withRetry calls f up to retryCount times in all, sleeping retryDelay
// between attempts. ErrNotLoggedIn is never retried — a missing session
// won't fix itself between attempts — matching the teacher's withRetry
// giving up immediately on a *SteamError.
func withRetry(f func() error, retryCount int, retryDelay time.Duration) error {
	if retryCount <= 0 {
		retryCount = 1
	}
	var err error
	for i := 1; i <= retryCount; i++ {
		if err = f(); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotLoggedIn) {
			return err
		}
		if i == retryCount {
			return err
		}
		time.Sleep(retryDelay)
	}
	return err
}

func (c *APIClient) get(method string, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf(apiBaseURL, method)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
