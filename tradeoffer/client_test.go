package tradeoffer

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmire/steamtrade/itemcache"
	"github.com/arkmire/steamtrade/offer"
)

type fakeDoer struct {
	status  int
	body    string
	header  http.Header
	lastReq *http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     f.header,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
	}, nil
}

const getOfferBody = `{
	"response": {
		"offer": {
			"tradeofferid": "555",
			"accountid_other": 42,
			"trade_offer_state": 2,
			"items_to_give": [{"appid":730,"contextid":"2","assetid":"1","amount":"1","classid":"99"}],
			"is_our_offer": true,
			"time_created": 1000,
			"time_updated": 2000
		},
		"descriptions": [{"appid":730,"classid":"99","market_hash_name":"AK-47 | Redline"}]
	}
}`

func TestGetOfferParsesAndEnrichesViaCache(t *testing.T) {
	cache, err := itemcache.New(8, time.Hour)
	require.NoError(t, err)
	doer := &fakeDoer{body: getOfferBody}
	c := NewAPIClient("key", doer).WithItemCache(cache)

	o, err := c.GetOffer("555", GetOfferOptions{GetDescriptions: true})
	require.NoError(t, err)
	assert.Equal(t, "555", o.ID)
	assert.Equal(t, offer.StateAccepted, o.State)
	require.Len(t, o.ItemsToGive, 1)
	assert.Equal(t, "AK-47 | Redline", o.ItemsToGive[0].Name)
	assert.True(t, *o.IsOurs)
}

func TestGetOfferMissingOfferIsDataUnavailable(t *testing.T) {
	doer := &fakeDoer{body: `{"response":{}}`}
	c := NewAPIClient("key", doer)
	_, err := c.GetOffer("1", GetOfferOptions{})
	assert.ErrorIs(t, err, ErrDataTemporarilyUnavailable)
}

func TestGetOfferUnauthorized(t *testing.T) {
	doer := &fakeDoer{status: http.StatusUnauthorized}
	c := NewAPIClient("key", doer)
	_, err := c.GetOffer("1", GetOfferOptions{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestGetOffersRejectsNeitherSentNorReceived(t *testing.T) {
	c := NewAPIClient("key", &fakeDoer{})
	_, err := c.GetOffers(GetOffersOptions{})
	assert.Error(t, err)
}

const getOffersBody = `{
	"response": {
		"trade_offers_sent": [
			{"tradeofferid":"1","trade_offer_state":2,"items_to_give":[{"appid":730,"contextid":"2","assetid":"1","amount":"1"}],"time_updated":500},
			{"tradeofferid":"2","trade_offer_state":3,"items_to_give":[{"appid":730,"contextid":"2","assetid":"2","amount":"1"}],"time_updated":100}
		],
		"trade_offers_received": []
	}
}`

func TestGetOffersTracksOldestNonTerminal(t *testing.T) {
	c := NewAPIClient("key", &fakeDoer{body: getOffersBody})
	result, err := c.GetOffers(GetOffersOptions{GetSent: true, GetReceived: true})
	require.NoError(t, err)
	require.Len(t, result.Sent, 2)
	require.NotNil(t, result.OldestNonTerminal)
	assert.Equal(t, int64(500), *result.OldestNonTerminal, "offer 2 is Countered (terminal) so only offer 1's Accepted state counts")
}

func TestGetOffersAllEmptyIsDataUnavailable(t *testing.T) {
	body := `{"response":{"trade_offers_sent":[{"tradeofferid":"1","trade_offer_state":2}],"trade_offers_received":[]}}`
	c := NewAPIClient("key", &fakeDoer{body: body})
	_, err := c.GetOffers(GetOffersOptions{GetSent: true, GetReceived: true})
	assert.ErrorIs(t, err, ErrDataTemporarilyUnavailable)
}

func TestCancelAndDeclineSendExpectedVerb(t *testing.T) {
	doer := &fakeDoer{}
	c := NewAPIClient("key", doer)

	require.NoError(t, c.Cancel("1"))
	assert.Contains(t, doer.lastReq.URL.String(), "CancelTradeOffer")

	require.NoError(t, c.Decline("1"))
	assert.Contains(t, doer.lastReq.URL.String(), "DeclineTradeOffer")
}

func TestActionUnauthorized(t *testing.T) {
	c := NewAPIClient("key", &fakeDoer{status: http.StatusUnauthorized})
	err := c.Cancel("1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
