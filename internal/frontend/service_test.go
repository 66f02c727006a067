package frontend_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionhub/auction-engine/internal/backend"
	"github.com/auctionhub/auction-engine/internal/frontend"
	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/ledger"
	"github.com/auctionhub/auction-engine/internal/replication"
)

const testTimeout = 200 * time.Millisecond

// captureNotifier records delivered outcome messages per user.
type captureNotifier struct {
	mu  sync.Mutex
	got map[int][]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{got: make(map[int][]string)}
}

func (c *captureNotifier) Deliver(userID int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got[userID] = append(c.got[userID], message)
}

func (c *captureNotifier) messages(userID int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got[userID]...)
}

// newTestServer stands up a front-end over an in-process group with the
// given replica ledgers behind it.
func newTestServer(t *testing.T, replicas ...*ledger.Ledger) (*httptest.Server, *captureNotifier) {
	t.Helper()
	hub := group.NewLocalHub()
	for i, led := range replicas {
		hub.JoinServing(fmt.Sprintf("replica-%d", i+1), backend.New(led).Handle)
	}

	coord := replication.New(hub.Join("frontend"), testTimeout)
	notifier := newCaptureNotifier()
	svc := frontend.NewService(coord, notifier, nil, rand.New(rand.NewSource(7)))

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, notifier
}

func doJSON(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func addUser(t *testing.T, srv *httptest.Server, name string) int {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users",
		fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	var out struct {
		UserID int `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.UserID
}

func TestAddUserAndLookup(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	id := addUser(t, srv, "alice")
	assert.GreaterOrEqual(t, id, 0)
	assert.Less(t, id, 1000)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/exists?name=alice", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"exists":true}`, string(body))

	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/users/%d", srv.URL, id), "")
	assert.Equal(t, http.StatusOK, status)
	var user struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, "alice", user.Name)

	// Ids are drawn from [0,1000), so 1000 can never be assigned.
	status, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/1000", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddUserDuplicateName(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	addUser(t, srv, "alice")
	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users", `{"name":"alice"}`)
	assert.Equal(t, http.StatusConflict, status)
}

func TestConcurrentAddUsersGetDistinctIDs(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	const n = 16
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids <- addUser(t, srv, fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "user id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestItemTypesAnsweredLocally(t *testing.T) {
	// No replicas at all: the fixed enumeration must still be served.
	srv, _ := newTestServer(t)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/item-types", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Miscellaneous")

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/item-types/exists?type=miscellaneous", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"exists":true}`, string(body))

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/item-types/exists?type=spaceships", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"exists":false}`, string(body))
}

func TestAuctionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	seller := addUser(t, srv, "seller")
	buyer := addUser(t, srv, "buyer")

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auctions", fmt.Sprintf(
		`{"user_id":%d,"title":"Tube Amp","item_type":"Miscellaneous","condition_scale":2,"reserve_price":80,"starting_price":20}`,
		seller))
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	var listing struct {
		Item struct {
			ID int `json:"id"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))

	status, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/bids/acceptable?listing_id=%d&price=90", srv.URL, listing.Item.ID), "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"acceptable":true}`, string(body))

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/bids", fmt.Sprintf(
		`{"user_id":%d,"listing_id":%d,"bid":90}`, buyer, listing.Item.ID))
	assert.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/auctions", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Tube Amp")

	status, body = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/auctions/%d/close", srv.URL, listing.Item.ID),
		fmt.Sprintf(`{"item_type":"Miscellaneous","user_id":%d}`, seller))
	require.Equal(t, http.StatusOK, status, "body: %s", body)
	var closed struct {
		Sold bool `json:"sold"`
	}
	require.NoError(t, json.Unmarshal(body, &closed))
	assert.True(t, closed.Sold)

	// Closed listings are gone from the ledger.
	status, _ = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/items/%d", srv.URL, listing.Item.ID), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOpenAuctionUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auctions",
		`{"user_id":123,"title":"Amp","item_type":"Miscellaneous","reserve_price":10,"starting_price":1}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPlaceBidUnknownListing(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())
	buyer := addUser(t, srv, "buyer")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/bids",
		fmt.Sprintf(`{"user_id":%d,"listing_id":42,"bid":10}`, buyer))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDivergedReplicasRejected(t *testing.T) {
	seen := ledger.New()
	seen.AddUser(1, "alice", nil)
	srv, _ := newTestServer(t, seen, ledger.New())

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/exists?name=alice", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, string(body), "diverged")
}

func TestNoReplicasUnavailable(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/exists?name=alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "no replicas")
}

func TestDoubleAuctionSettlesAndNotifies(t *testing.T) {
	srv, notifier := newTestServer(t, ledger.New(), ledger.New())

	s1 := addUser(t, srv, "seller-one")
	s2 := addUser(t, srv, "seller-two")
	b1 := addUser(t, srv, "buyer-one")
	b2 := addUser(t, srv, "buyer-two")

	postSeller := func(userID int, title string, reserve int) (int, []byte) {
		return doJSON(t, http.MethodPost, srv.URL+"/api/v1/double/sellers", fmt.Sprintf(
			`{"user_id":%d,"title":%q,"item_type":"Miscellaneous","reserve_price":%d,"starting_price":1}`,
			userID, title, reserve))
	}
	postBuyer := func(userID, bid int) (int, []byte) {
		return doJSON(t, http.MethodPost, srv.URL+"/api/v1/double/buyers", fmt.Sprintf(
			`{"user_id":%d,"item_type":"Miscellaneous","bid":%d}`, userID, bid))
	}

	var resp struct {
		Settled bool `json:"settled"`
	}
	for _, step := range []func() (int, []byte){
		func() (int, []byte) { return postSeller(s1, "Cabinet", 50) },
		func() (int, []byte) { return postSeller(s2, "Pedalboard", 70) },
		func() (int, []byte) { return postBuyer(b1, 60) },
	} {
		status, body := step()
		require.Equal(t, http.StatusAccepted, status, "body: %s", body)
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.False(t, resp.Settled)
	}

	// The fourth participant balances the pool and triggers the round.
	status, body := postBuyer(b2, 90)
	require.Equal(t, http.StatusAccepted, status, "body: %s", body)
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Settled)

	// Sellers sorted by reserve descending meet buyers sorted by bid
	// ascending: 70 vs 60 fails, 50 vs 90 trades.
	for _, userID := range []int{s1, s2, b1, b2} {
		require.Len(t, notifier.messages(userID), 1, "user %d", userID)
	}
	assert.Contains(t, notifier.messages(s1)[0], "sold for 90 EUR")
	assert.Contains(t, notifier.messages(s2)[0], "was not sold")
	assert.Contains(t, notifier.messages(b1)[0], "unsuccessful")
	assert.True(t, strings.HasPrefix(notifier.messages(b2)[0], "You bought"))
}

func TestDoubleAuctionUnknownUserRejected(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New(), ledger.New())

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/double/sellers",
		`{"user_id":123,"title":"Cabinet","item_type":"Miscellaneous","reserve_price":50,"starting_price":1}`)
	assert.Equal(t, http.StatusNotFound, status, "body: %s", body)

	status, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/double/buyers",
		`{"user_id":123,"item_type":"Miscellaneous","bid":60}`)
	assert.Equal(t, http.StatusNotFound, status, "body: %s", body)
}

func TestVerifySignatureNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, ledger.New())

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/verify",
		`{"user_id":1,"message":"hello"}`)
	assert.Equal(t, http.StatusNotImplemented, status)
}
