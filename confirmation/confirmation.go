// Package confirmation implements the Confirmation Engine (spec.md
// §4.E): fetching the mobile-confirmation HTML list, parsing entries,
// and issuing allow/cancel actions. List retrieval is serialized
// through an explicit once-firing latch (spec.md §9's replacement for a
// Deferred-as-latch), and every derived key consumes a distinct
// (time, tag) pair via a rotating clock offset so back-to-back
// operations never collide on the upstream's one-second HMAC bucket.
package confirmation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/event"
	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/totp"
)

const baseURL = "https://steamcommunity.com/mobileconf/"

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"

// clockOffsetRollover is spec.md §4.E's "when clock_offset > 500, reset
// to 0" — a workaround for the upstream's one-second HMAC bucketing. If
// the remote ever accepts sub-second resolution this whole scheme can
// go (spec.md §9 open question); until then it's load-bearing.
const clockOffsetRollover = 500

// Op is one of the two confirmation actions.
type Op string

const (
	OpAllow  Op = "allow"
	OpCancel Op = "cancel"
)

// Entry is one parsed row from the mobile-confirmation list (spec.md
// §4.E).
type Entry struct {
	ConfID    string
	Type      int
	Creator   string // typically the offer id this confirmation authorizes
	ConfKey   string
	Title     string
	Receiving string
	TimeText  string
	IconURL   string
}

const (
	TypeTrade         = 2
	TypeMarketListing = 3
)

// HTTPDoer is the minimal transport seam the engine needs; *http.Client
// satisfies it directly.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// listFuture is the explicit once-firing completion primitive spec.md
// §9 asks for in place of a Deferred: one fetch resolves it, every
// concurrent caller that arrived while it was in flight receives the
// same result (spec.md §8 property 8, §5's "list-fetch singleton").
type listFuture struct {
	done    chan struct{}
	entries []Entry
	err     error
}

// Client drives the mobileconf endpoints for one account.
type Client struct {
	http      HTTPDoer
	deviceID  string
	accountID uint32
	deriver   totp.KeyDeriver

	mu          sync.Mutex
	clockOffset int64
	inflight    *listFuture
	lastList    []Entry

	bus *event.Bus
	now func() time.Time
}

// New builds a confirmation Client. deviceID is normally totp.DeviceID
// applied to the SteamID's 32-bit account id; deriver is normally
// totp.DefaultDeriver{IdentitySecret: ...}. bus may be nil; when set, a
// transport call that comes back ErrSessionExpired or
// ErrFamilyViewRestricted (spec.md §7) is republished onto it.
func New(httpDoer HTTPDoer, deviceID string, sid steamid.SteamID, deriver totp.KeyDeriver, bus *event.Bus) *Client {
	return &Client{
		http:      httpDoer,
		deviceID:  deviceID,
		accountID: sid.AccountID(),
		deriver:   deriver,
		bus:       bus,
		now:       time.Now,
	}
}

// publishTransportEvent republishes a session-fatal transport error as
// the matching bus event, mirroring tradeoffer.Operator's handling of
// the same two classified errors.
func (c *Client) publishTransportEvent(err error) {
	if c.bus == nil || err == nil {
		return
	}
	switch {
	case errors.Is(err, community.ErrSessionExpired):
		c.bus.Publish(event.Event{Kind: event.KindSessionExpired, Err: err})
	case errors.Is(err, community.ErrFamilyViewRestricted):
		c.bus.Publish(event.Event{Kind: event.KindFamilyViewRestricted, Err: err})
	}
}

// deriveKey computes a key for tag, rotating the logical clock offset
// afterward so the next call in the same wall-clock second still gets a
// distinct (time, tag) pair (spec.md §4.E, §8 property 7).
func (c *Client) deriveKey(tag totp.Tag) (string, uint64, error) {
	c.mu.Lock()
	t := uint64(c.now().Unix()) + uint64(c.clockOffset)
	c.clockOffset++
	if c.clockOffset > clockOffsetRollover {
		c.clockOffset = 0
		slog.Debug("confirmation clock offset rolled over", slog.String("tag", string(tag)))
	}
	c.mu.Unlock()

	key, err := c.deriver.DeriveKey(t, tag)
	return key, t, err
}

func (c *Client) commonParams(key string, t uint64, tag totp.Tag) url.Values {
	return url.Values{
		"p":   {c.deviceID},
		"a":   {strconv.FormatUint(uint64(c.accountID), 10)},
		"k":   {key},
		"t":   {strconv.FormatUint(t, 10)},
		"m":   {"android"},
		"tag": {string(tag)},
	}
}

func (c *Client) get(op string, params url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+op+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	resp, err := c.http.Do(req)
	if err != nil {
		c.publishTransportEvent(err)
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) postForm(op string, form url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+op, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		c.publishTransportEvent(err)
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// FetchList retrieves and parses the confirmation list, per spec.md
// §4.E. Concurrent callers share one in-flight request.
func (c *Client) FetchList() ([]Entry, error) {
	c.mu.Lock()
	if c.inflight != nil {
		f := c.inflight
		c.mu.Unlock()
		<-f.done
		return f.entries, f.err
	}
	f := &listFuture{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	entries, err := c.fetchListOnce()

	c.mu.Lock()
	f.entries, f.err = entries, err
	if err == nil {
		c.lastList = entries
	}
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	return entries, err
}

func (c *Client) fetchListOnce() ([]Entry, error) {
	key, t, err := c.deriveKey(totp.TagConf)
	if err != nil {
		return nil, err
	}
	params := c.commonParams(key, t, totp.TagConf)
	body, err := c.get("conf", params)
	if err != nil {
		return nil, err
	}
	entries, err := parseList(body)
	if errors.Is(err, ErrNotLoggedIn) {
		c.publishSessionExpired(err)
	}
	return entries, err
}

// publishSessionExpired republishes a body-sniffed (rather than
// transport-classified) NotLoggedIn failure as KindSessionExpired,
// per spec.md §4.E's "fail with NotLoggedIn and signal session-expired
// to the host."
func (c *Client) publishSessionExpired(err error) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.Event{Kind: event.KindSessionExpired, Err: err})
}

// LastList returns the most recently fetched list without making a
// network call.
func (c *Client) LastList() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastList
}

// Operate issues an allow/cancel action against one or more
// confirmations. A batch request (len>1 of both slices) goes through
// multiajaxop; a single one goes through ajaxop, per spec.md §4.E.
func (c *Client) Operate(confIDs, confKeys []string, op Op) error {
	if len(confIDs) != len(confKeys) {
		return fmt.Errorf("confirmation: mismatched id/key slice lengths")
	}
	if len(confIDs) == 0 {
		return nil
	}

	key, t, err := c.deriveKey(totp.Tag(op))
	if err != nil {
		return err
	}

	var body []byte
	if len(confIDs) > 1 {
		form := c.commonParams(key, t, totp.Tag(op))
		form.Set("op", string(op))
		for _, id := range confIDs {
			form.Add("cid[]", id)
		}
		for _, k := range confKeys {
			form.Add("ck[]", k)
		}
		body, err = c.postForm("multiajaxop", form)
	} else {
		params := c.commonParams(key, t, totp.Tag(op))
		params.Set("op", string(op))
		params.Set("cid", confIDs[0])
		params.Set("ck", confKeys[0])
		body, err = c.get("ajaxop", params)
	}
	if err != nil {
		return err
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ErrConfirmationFailed{Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if !resp.Success {
		if resp.Message == "" {
			return ErrConfirmationFailed{Message: "unknown failure"}
		}
		return ErrConfirmationFailed{Message: resp.Message}
	}
	return nil
}

// RespondToOffer finds the confirmation entry created for offerID and
// answers it with op. If the entry isn't in the cached list, the list
// is refetched exactly once before giving up (spec.md §4.E).
func (c *Client) RespondToOffer(offerID string, op Op) error {
	entry, ok := findByCreator(c.LastList(), offerID)
	if !ok {
		if _, err := c.FetchList(); err != nil {
			return err
		}
		entry, ok = findByCreator(c.LastList(), offerID)
		if !ok {
			return ErrConfirmationNotFound
		}
	}
	return c.Operate([]string{entry.ConfID}, []string{entry.ConfKey}, op)
}

// CancelAll fetches the current list and cancels every entry on it.
func (c *Client) CancelAll() error {
	entries, err := c.FetchList()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	keys := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ConfID
		keys[i] = e.ConfKey
	}
	return c.Operate(ids, keys, OpCancel)
}

func findByCreator(entries []Entry, creator string) (Entry, bool) {
	for _, e := range entries {
		if e.Creator == creator {
			return e, true
		}
	}
	return Entry{}, false
}
