package confirmation

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/totp"
)

type fakeDeriver struct{}

func (fakeDeriver) DeriveKey(t uint64, tag totp.Tag) (string, error) {
	return "key-" + string(tag), nil
}

func testPartner() steamid.SteamID {
	return steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1)
}

func newTestClient(doer HTTPDoer) *Client {
	return New(doer, "android:test", testPartner(), fakeDeriver{}, nil)
}

type fakeConfirmDoer struct {
	mu       sync.Mutex
	listBody string
	opBody   string
	calls    []string
}

func (f *fakeConfirmDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL.Path)
	f.mu.Unlock()

	body := f.opBody
	if strings.HasSuffix(req.URL.Path, "/conf") {
		body = f.listBody
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeConfirmDoer) callPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestFetchListParsesEntries(t *testing.T) {
	doer := &fakeConfirmDoer{listBody: string(wrapList(entryHTML))}
	c := newTestClient(doer)

	entries, err := c.FetchList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "999888", entries[0].Creator)
	assert.Equal(t, entries, c.LastList())
}

type blockingDoer struct {
	release chan struct{}
	calls   int32
	body    string
}

func (d *blockingDoer) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&d.calls, 1)
	<-d.release
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader([]byte(d.body)))}, nil
}

func TestFetchListIsSingleFlight(t *testing.T) {
	doer := &blockingDoer{release: make(chan struct{}), body: string(wrapList(entryHTML))}
	c := newTestClient(doer)

	var wg sync.WaitGroup
	results := make([][]Entry, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.FetchList()
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.calls), "two concurrent fetches must share one request")

	close(doer.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
}

func TestLastListReturnsCachedWithoutNetworkCall(t *testing.T) {
	doer := &fakeConfirmDoer{}
	c := newTestClient(doer)
	c.mu.Lock()
	c.lastList = []Entry{{ConfID: "1", Creator: "offer-1", ConfKey: "k"}}
	c.mu.Unlock()

	assert.Len(t, c.LastList(), 1)
	assert.Empty(t, doer.callPaths())
}

func TestOperateEmptyIsNoop(t *testing.T) {
	doer := &fakeConfirmDoer{}
	c := newTestClient(doer)
	require.NoError(t, c.Operate(nil, nil, OpAllow))
	assert.Empty(t, doer.callPaths())
}

func TestOperateMismatchedLengthsIsError(t *testing.T) {
	c := newTestClient(&fakeConfirmDoer{})
	err := c.Operate([]string{"1"}, []string{"a", "b"}, OpAllow)
	assert.Error(t, err)
}

func TestOperateSingleUsesAjaxop(t *testing.T) {
	doer := &fakeConfirmDoer{opBody: `{"success":true}`}
	c := newTestClient(doer)

	require.NoError(t, c.Operate([]string{"1"}, []string{"key"}, OpAllow))
	require.Len(t, doer.callPaths(), 1)
	assert.True(t, strings.HasSuffix(doer.callPaths()[0], "/ajaxop"))
}

func TestOperateBatchUsesMultiajaxop(t *testing.T) {
	doer := &fakeConfirmDoer{opBody: `{"success":true}`}
	c := newTestClient(doer)

	require.NoError(t, c.Operate([]string{"1", "2"}, []string{"k1", "k2"}, OpCancel))
	require.Len(t, doer.callPaths(), 1)
	assert.True(t, strings.HasSuffix(doer.callPaths()[0], "/multiajaxop"))
}

func TestOperateFailureReturnsConfirmationFailed(t *testing.T) {
	doer := &fakeConfirmDoer{opBody: `{"success":false,"message":"token expired"}`}
	c := newTestClient(doer)

	err := c.Operate([]string{"1"}, []string{"key"}, OpAllow)
	var failed ErrConfirmationFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "token expired", failed.Message)
}

func TestRespondToOfferUsesCachedListWithoutRefetch(t *testing.T) {
	doer := &fakeConfirmDoer{opBody: `{"success":true}`}
	c := newTestClient(doer)
	c.mu.Lock()
	c.lastList = []Entry{{ConfID: "1", Creator: "offer-1", ConfKey: "k1"}}
	c.mu.Unlock()

	require.NoError(t, c.RespondToOffer("offer-1", OpAllow))
	for _, p := range doer.callPaths() {
		assert.NotContains(t, p, "/conf")
	}
}

func TestRespondToOfferRefetchesOnceOnMiss(t *testing.T) {
	doer := &fakeConfirmDoer{listBody: string(wrapList(entryHTML)), opBody: `{"success":true}`}
	c := newTestClient(doer)

	require.NoError(t, c.RespondToOffer("999888", OpCancel))
	paths := doer.callPaths()
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "/conf"))
	assert.True(t, strings.HasSuffix(paths[1], "/ajaxop"))
}

func TestRespondToOfferNotFoundAfterRefetch(t *testing.T) {
	doer := &fakeConfirmDoer{listBody: string(wrapList(`<div id="mobileconf_empty"></div>`))}
	c := newTestClient(doer)

	err := c.RespondToOffer("missing", OpAllow)
	assert.ErrorIs(t, err, ErrConfirmationNotFound)
}

func TestCancelAllNoEntriesIsNoop(t *testing.T) {
	doer := &fakeConfirmDoer{listBody: string(wrapList(`<div id="mobileconf_empty"></div>`))}
	c := newTestClient(doer)

	require.NoError(t, c.CancelAll())
	for _, p := range doer.callPaths() {
		assert.NotContains(t, p, "ajaxop")
	}
}

func TestCancelAllCancelsEveryEntry(t *testing.T) {
	doer := &fakeConfirmDoer{listBody: string(wrapList(entryHTML)), opBody: `{"success":true}`}
	c := newTestClient(doer)

	require.NoError(t, c.CancelAll())
	paths := doer.callPaths()
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[1], "/ajaxop"), "one entry uses the single-item endpoint")
}
