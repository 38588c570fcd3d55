package repository

import (
	"auction-live/internal/biddingerrors"
	model "auction-live/internal/models"
	"context"
	"fmt"
	"sync"
	"time"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-live/internal/repository AuctionDB

// AuctionDB defines the storage interface for the auction system
type AuctionDB interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	SaveAuction(ctx context.Context, auction model.Auction) error
	DeleteAuction(ctx context.Context, auctionID string) error
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]model.Auction, error)

	// RecordBid appends the bid and stores the updated auction as one unit:
	// either both writes are visible afterwards or neither is.
	RecordBid(ctx context.Context, bid model.Bid, auction model.Auction) error
	GetBidsByAuction(ctx context.Context, auctionID string, page Page) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string, page Page) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)

	GetUser(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	SaveUser(ctx context.Context, user model.User) error
}

// Page selects a window of a result list
type Page struct {
	Skip  int
	Limit int
}

// AuctionFilter narrows ListAuctions
type AuctionFilter struct {
	Page
	ActiveOnly bool
	// Now is the reference instant for ActiveOnly
	Now time.Time
	// EndingBy keeps only active auctions whose end time is at or before it
	EndingBy time.Time
}

// DefaultLimit is applied when a page carries no limit
const DefaultLimit = 100

func (p Page) bounds(n int) (int, int) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := p.Skip
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu        sync.RWMutex
	auctions  map[string]model.Auction // key: auctionID -> value: auction
	order     []string                 // auctionIDs in creation order
	bids      map[string][]model.Bid   // key: auctionID -> value: bids in acceptance order
	userBids  map[string][]model.Bid   // key: userID -> value: bids in acceptance order
	users     map[string]model.User    // key: userID -> value: user
	usernames map[string]string        // key: username -> value: userID
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:  make(map[string]model.Auction),
		bids:      make(map[string][]model.Bid),
		userBids:  make(map[string][]model.Bid),
		users:     make(map[string]model.User),
		usernames: make(map[string]string),
	}
}

// GetAuction returns the auction with the given id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// SaveAuction inserts or replaces an auction
func (r *MemoryRepo) SaveAuction(_ context.Context, auction model.Auction) error {
	if auction.AuctionID == "" {
		return fmt.Errorf("save auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.AuctionID]; !exists {
		r.order = append(r.order, auction.AuctionID)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// DeleteAuction removes an auction together with its bid history
func (r *MemoryRepo) DeleteAuction(_ context.Context, auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return fmt.Errorf("delete auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	delete(r.auctions, auctionID)
	delete(r.bids, auctionID)
	for i, id := range r.order {
		if id == auctionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListAuctions returns auctions in creation order
func (r *MemoryRepo) ListAuctions(_ context.Context, filter AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]model.Auction, 0, len(r.order))
	for _, id := range r.order {
		a := r.auctions[id]
		if filter.ActiveOnly && !a.Open(filter.Now) {
			continue
		}
		if !filter.EndingBy.IsZero() && (!a.IsActive || a.EndTime.After(filter.EndingBy)) {
			continue
		}
		matched = append(matched, a)
	}

	start, end := filter.bounds(len(matched))
	return matched[start:end], nil
}

// RecordBid appends a bid and stores the auction state it produced
func (r *MemoryRepo) RecordBid(_ context.Context, bid model.Bid, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok || bid.AuctionID != auction.AuctionID {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	r.userBids[bid.UserID] = append(r.userBids[bid.UserID], bid)
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetBidsByAuction returns an auction's bids, newest first
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string, page Page) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.bids[auctionID], page), nil
}

// GetBidsByUser returns a user's bids across all auctions, newest first
func (r *MemoryRepo) GetBidsByUser(_ context.Context, userID string, page Page) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.userBids[userID], page), nil
}

// GetWinningBid returns the highest bid for an auction
func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winning.Amount) {
			winning = b
		}
	}
	return winning, nil
}

// GetUser returns a user by id
func (r *MemoryRepo) GetUser(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return user, nil
}

// GetUserByUsername returns a user by login name
func (r *MemoryRepo) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usernames[username]
	if !ok {
		return model.User{}, fmt.Errorf("get user by username %s: %w", username, biddingerrors.ErrUserNotFound)
	}
	return r.users[id], nil
}

// SaveUser inserts or replaces a user. Usernames are unique.
func (r *MemoryRepo) SaveUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.usernames[user.Username]; ok && id != user.UserID {
		return fmt.Errorf("save user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
	}
	if prev, ok := r.users[user.UserID]; ok && prev.Username != user.Username {
		delete(r.usernames, prev.Username)
	}
	r.users[user.UserID] = user
	r.usernames[user.Username] = user.UserID
	return nil
}

// newestFirst copies a page of bids in reverse acceptance order
func newestFirst(bids []model.Bid, page Page) []model.Bid {
	out := make([]model.Bid, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		out = append(out, bids[i])
	}
	start, end := page.bounds(len(out))
	return out[start:end]
}
