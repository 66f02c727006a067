package frontend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/auctionhub/auction-engine/internal/auth"
	"github.com/auctionhub/auction-engine/internal/metrics"
	"github.com/auctionhub/auction-engine/internal/model"
	"github.com/auctionhub/auction-engine/internal/replication"
	"github.com/auctionhub/auction-engine/internal/wire"
)

// maxUserIDAttempts bounds the random user-id collision-retry loop.
const maxUserIDAttempts = 100

// userIDSpace is the id range users are drawn from.
const userIDSpace = 1000

// Service exposes the client-facing operations and forwards each one to
// the backend replicas through the replication coordinator.
type Service struct {
	coord    *replication.Coordinator
	notifier Notifier
	verifier auth.Verifier

	// userMu serializes the whole assign-check-register sequence so
	// concurrent registrations can never race the same free id.
	userMu sync.Mutex
	rng    *rand.Rand
}

// NewService creates the front-end service. notifier may be nil when no
// subscriber relay is wired (tests); verifier may be nil to leave the
// handshake disabled; rng may be nil for a time-seeded source.
func NewService(coord *replication.Coordinator, notifier Notifier, verifier auth.Verifier, rng *rand.Rand) *Service {
	if verifier == nil {
		verifier = auth.Disabled{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{coord: coord, notifier: notifier, verifier: verifier, rng: rng}
}

// Routes registers the client-facing API on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/users", s.AddUser)
	r.Get("/users/exists", s.UserNameExists)
	r.Get("/users/{userID}", s.GetUser)
	r.Get("/item-types", s.ItemTypes)
	r.Get("/item-types/exists", s.ItemTypeExists)
	r.Post("/auctions", s.OpenAuction)
	r.Get("/auctions", s.AuctionedItems)
	r.Get("/auctions/by-type", s.ItemsByType)
	r.Post("/auctions/{listingID}/close", s.CloseAuction)
	r.Get("/items/exists", s.IDExists)
	r.Get("/items/{itemID}", s.GetSpec)
	r.Post("/bids", s.PlaceBid)
	r.Get("/bids/acceptable", s.BidPriceAcceptable)
	r.Post("/double/sellers", s.AddDoubleSeller)
	r.Post("/double/buyers", s.AddDoubleBuyer)
	r.Post("/auth/verify", s.VerifySignature)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeReplicationError maps a failed replicated call to an opaque failure;
// the client is told to try again, never handed a partial result.
func writeReplicationError(w http.ResponseWriter, status replication.Status) {
	switch status {
	case replication.StatusDisagreed:
		writeError(w, "replica responses diverged; try again", http.StatusBadGateway)
	default:
		writeError(w, "no replicas available; try again", http.StatusServiceUnavailable)
	}
}

// decodeInto reads a JSON body, rejecting malformed input early.
func decodeInto(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// call runs one replicated operation and decodes the agreed value into out.
// It writes the failure response itself and reports whether the caller can
// proceed.
func (s *Service) call(w http.ResponseWriter, r *http.Request, method string, args, out any) bool {
	res := s.coord.Call(r.Context(), method, args)
	if !res.Agreed() {
		writeReplicationError(w, res.Status)
		return false
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		slog.Error("undecodable agreed value", "method", method, "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return false
	}
	return true
}

// --- User registration ---

// AddUserRequest is the JSON body for POST /users.
type AddUserRequest struct {
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key,omitempty"`
}

// AddUser handles POST /users: validate the name, draw a random id that no
// replica knows, then register it everywhere.
func (s *Service) AddUser(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if !decodeInto(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	s.userMu.Lock()
	defer s.userMu.Unlock()

	var taken bool
	if !s.call(w, r, wire.MethodUserNameExists, wire.NameArgs{Name: req.Name}, &taken) {
		return
	}
	if taken {
		writeError(w, "user name already taken", http.StatusConflict)
		return
	}

	userID := -1
	for attempt := 0; attempt < maxUserIDAttempts; attempt++ {
		candidate := s.rng.Intn(userIDSpace)
		var exists bool
		if !s.call(w, r, wire.MethodUserIDExists, wire.IDArgs{ID: candidate}, &exists) {
			return
		}
		if !exists {
			userID = candidate
			break
		}
	}
	if userID < 0 {
		writeError(w, "could not allocate a user id", http.StatusServiceUnavailable)
		return
	}

	var assigned int
	args := wire.AddUserArgs{UserID: userID, Name: req.Name, PublicKey: req.PublicKey}
	if !s.call(w, r, wire.MethodAddUser, args, &assigned) {
		return
	}

	slog.Info("user added", "user_id", assigned, "name", req.Name)
	writeJSON(w, http.StatusCreated, map[string]int{"user_id": assigned})
}

// UserNameExists handles GET /users/exists?name=
func (s *Service) UserNameExists(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, "name query parameter required", http.StatusBadRequest)
		return
	}
	var exists bool
	if !s.call(w, r, wire.MethodUserNameExists, wire.NameArgs{Name: name}, &exists) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetUser handles GET /users/{userID}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var user *model.AuctionUser
	if !s.call(w, r, wire.MethodGetUser, wire.IDArgs{ID: userID}, &user) {
		return
	}
	if user == nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Item types (fixed enumeration, answered locally) ---

// ItemTypes handles GET /item-types
func (s *Service) ItemTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(model.FormatItemTypes()))
}

// ItemTypeExists handles GET /item-types/exists?type=
func (s *Service) ItemTypeExists(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("type")
	writeJSON(w, http.StatusOK, map[string]bool{"exists": model.ItemTypeExists(itemType)})
}

// --- Forward/reverse auctions ---

// OpenAuctionRequest is the JSON body for POST /auctions and
// POST /double/sellers.
type OpenAuctionRequest struct {
	UserID         int             `json:"user_id"`
	Title          string          `json:"title"`
	ItemType       string          `json:"item_type"`
	Description    string          `json:"description"`
	ConditionScale int             `json:"condition_scale"`
	ReservePrice   decimal.Decimal `json:"reserve_price"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
}

func (req *OpenAuctionRequest) validate() string {
	if req.Title == "" {
		return "title is required"
	}
	if !model.ItemTypeExists(req.ItemType) {
		return "unknown item type"
	}
	if req.StartingPrice.IsNegative() || req.ReservePrice.IsNegative() {
		return "prices must not be negative"
	}
	return ""
}

func (req *OpenAuctionRequest) wireArgs() wire.OpenAuctionArgs {
	return wire.OpenAuctionArgs{
		UserID:         req.UserID,
		Title:          req.Title,
		ItemType:       req.ItemType,
		Description:    req.Description,
		ConditionScale: req.ConditionScale,
		ReservePrice:   req.ReservePrice,
		StartingPrice:  req.StartingPrice,
	}
}

// OpenAuction handles POST /auctions
func (s *Service) OpenAuction(w http.ResponseWriter, r *http.Request) {
	var req OpenAuctionRequest
	if !decodeInto(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	var listing *model.AuctionListing
	if !s.call(w, r, wire.MethodOpenAuction, req.wireArgs(), &listing) {
		return
	}
	if listing == nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// CloseAuctionRequest is the JSON body for POST /auctions/{listingID}/close.
type CloseAuctionRequest struct {
	ItemType string `json:"item_type"`
	UserID   int    `json:"user_id"`
}

// CloseAuctionResponse reports the removed listing and whether it sold.
type CloseAuctionResponse struct {
	Listing *model.AuctionListing `json:"listing"`
	Sold    bool                  `json:"sold"`
}

// CloseAuction handles POST /auctions/{listingID}/close. The listing is
// sold iff it drew a bid that cleared the reserve price.
func (s *Service) CloseAuction(w http.ResponseWriter, r *http.Request) {
	listingID, err := strconv.Atoi(chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, "invalid listing id", http.StatusBadRequest)
		return
	}
	var req CloseAuctionRequest
	if !decodeInto(w, r, &req) {
		return
	}

	args := wire.CloseAuctionArgs{ListingID: listingID, ItemType: req.ItemType, UserID: req.UserID}
	var listing *model.AuctionListing
	if !s.call(w, r, wire.MethodCloseAuction, args, &listing) {
		return
	}
	if listing == nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, CloseAuctionResponse{Listing: listing, Sold: listing.Sold()})
}

// GetSpec handles GET /items/{itemID}?client=
func (s *Service) GetSpec(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, "invalid item id", http.StatusBadRequest)
		return
	}
	args := wire.GetSpecArgs{ItemID: itemID, ClientName: r.URL.Query().Get("client")}
	var item *model.AuctionItem
	if !s.call(w, r, wire.MethodGetSpec, args, &item) {
		return
	}
	if item == nil {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// IDExists handles GET /items/exists?id=
func (s *Service) IDExists(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, "id query parameter required", http.StatusBadRequest)
		return
	}
	var exists bool
	if !s.call(w, r, wire.MethodIDExists, wire.IDArgs{ID: id}, &exists) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// PlaceBidRequest is the JSON body for POST /bids.
type PlaceBidRequest struct {
	UserID    int             `json:"user_id"`
	ListingID int             `json:"listing_id"`
	Bid       decimal.Decimal `json:"bid"`
}

// PlaceBid handles POST /bids. The backend logs every attempt and applies
// the bid only if it clears the thresholds; callers are expected to have
// pre-checked with GET /bids/acceptable.
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req PlaceBidRequest
	if !decodeInto(w, r, &req) {
		return
	}
	if !req.Bid.IsPositive() {
		writeError(w, "bid must be positive", http.StatusBadRequest)
		return
	}

	args := wire.PlaceBidArgs{UserID: req.UserID, ListingID: req.ListingID, Bid: req.Bid}
	var found bool
	if !s.call(w, r, wire.MethodPlaceBid, args, &found) {
		return
	}
	if !found {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"placed": true})
}

// BidPriceAcceptable handles GET /bids/acceptable?listing_id=&price=
func (s *Service) BidPriceAcceptable(w http.ResponseWriter, r *http.Request) {
	listingID, err := strconv.Atoi(r.URL.Query().Get("listing_id"))
	if err != nil {
		writeError(w, "listing_id query parameter required", http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(r.URL.Query().Get("price"))
	if err != nil {
		writeError(w, "price query parameter required", http.StatusBadRequest)
		return
	}

	var acceptable bool
	if !s.call(w, r, wire.MethodBidPriceAcceptable, wire.BidPriceArgs{ListingID: listingID, Price: price}, &acceptable) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acceptable": acceptable})
}

// AuctionedItems handles GET /auctions: the formatted forward-auction list.
func (s *Service) AuctionedItems(w http.ResponseWriter, r *http.Request) {
	var formatted *string
	if !s.call(w, r, wire.MethodAuctionedItems, nil, &formatted) {
		return
	}
	if formatted == nil {
		writeError(w, "no items are being auctioned", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(*formatted))
}

// ItemsByType handles GET /auctions/by-type?type=: the reverse-auction view.
func (s *Service) ItemsByType(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("type")
	if !model.ItemTypeExists(itemType) {
		writeError(w, "unknown item type", http.StatusBadRequest)
		return
	}
	var formatted *string
	if !s.call(w, r, wire.MethodItemsByType, wire.TypeArgs{ItemType: itemType}, &formatted) {
		return
	}
	if formatted == nil {
		writeError(w, "no items of this type", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(*formatted))
}

// --- Double auctions ---

// DoubleAuctionResponse reports whether the add triggered a settlement
// round; outcome messages go to subscribers, not into this response.
type DoubleAuctionResponse struct {
	Pooled  bool `json:"pooled"`
	Settled bool `json:"settled"`
}

// AddDoubleSeller handles POST /double/sellers.
func (s *Service) AddDoubleSeller(w http.ResponseWriter, r *http.Request) {
	var req OpenAuctionRequest
	if !decodeInto(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}
	s.doubleAuction(w, r, wire.MethodAddDoubleSeller, req.wireArgs())
}

// AddDoubleBuyerRequest is the JSON body for POST /double/buyers.
type AddDoubleBuyerRequest struct {
	UserID   int             `json:"user_id"`
	ItemType string          `json:"item_type"`
	Bid      decimal.Decimal `json:"bid"`
}

// AddDoubleBuyer handles POST /double/buyers.
func (s *Service) AddDoubleBuyer(w http.ResponseWriter, r *http.Request) {
	var req AddDoubleBuyerRequest
	if !decodeInto(w, r, &req) {
		return
	}
	if !model.ItemTypeExists(req.ItemType) {
		writeError(w, "unknown item type", http.StatusBadRequest)
		return
	}
	if !req.Bid.IsPositive() {
		writeError(w, "bid must be positive", http.StatusBadRequest)
		return
	}
	args := wire.AddDoubleBuyerArgs{UserID: req.UserID, ItemType: req.ItemType, Bid: req.Bid}
	s.doubleAuction(w, r, wire.MethodAddDoubleBuyer, args)
}

// doubleAuction broadcasts a pool add and fans settlement outcomes out to
// the subscribers that own each side of the round.
func (s *Service) doubleAuction(w http.ResponseWriter, r *http.Request, method string, args any) {
	reply, status := s.coord.CallNotifications(r.Context(), method, args)
	if status != replication.StatusAgreed {
		writeReplicationError(w, status)
		return
	}
	if !reply.Pooled {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	if len(reply.Outcomes) > 0 {
		metrics.SettlementRounds.Inc()
		slog.Info("double auction settled", "participants", len(reply.Outcomes))
		if s.notifier != nil {
			for userID, message := range reply.Outcomes {
				s.notifier.Deliver(userID, message)
			}
		}
	}
	writeJSON(w, http.StatusAccepted, DoubleAuctionResponse{Pooled: true, Settled: len(reply.Outcomes) > 0})
}

// --- Authentication boundary ---

// VerifySignature handles POST /auth/verify by delegating to the injected
// handshake implementation.
func (s *Service) VerifySignature(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRequest
	if !decodeInto(w, r, &req) {
		return
	}

	resp, err := s.verifier.VerifyClientSignature(r.Context(), req)
	switch {
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, "signature handshake not configured", http.StatusNotImplemented)
	case err != nil:
		writeError(w, "signature verification failed", http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
