package bidding

import (
	"auction-live/internal/biddingerrors"
	"auction-live/internal/models"
	"auction-live/internal/notify"
	"auction-live/internal/repository"
	"auction-live/utils"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Publisher receives every committed state change. It is called while the
// auction's lock is held, so it must not block.
type Publisher interface {
	Publish(ev notify.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(notify.Event) {}

// Option customizes a BiddingService
type Option func(*BiddingService)

// WithClock replaces the time source used for end-time checks
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	publisher Publisher
	locks     *lockTable
	now       func() time.Time
}

// NewBiddingService creates a new BiddingService instance. A nil publisher
// discards events.
func NewBiddingService(repo repository.AuctionDB, publisher Publisher, opts ...Option) *BiddingService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	s := &BiddingService{
		repo:      repo,
		publisher: publisher,
		locks:     newLockTable(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BidResult is the outcome of an accepted bid
type BidResult struct {
	Bid      models.Bid
	Auction  models.Auction
	NewPrice decimal.Decimal
	// PreviousBidderID is the user who held the highest bid before this one,
	// empty when there was none or it was the same bidder.
	PreviousBidderID string
}

// PlaceBid validates a bid against the auction's current state and commits
// it. Bids on the same auction are serialized; exactly one of several bids
// racing at the same price wins and the others see ErrBidTooLow.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (BidResult, error) {
	if err := validateBid(auctionID, userID, amount); err != nil {
		return BidResult{}, err
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return BidResult{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	now := s.now().UTC()
	if !auction.Open(now) {
		return BidResult{}, fmt.Errorf("service: %w - auction %s ended at %s", biddingerrors.ErrAuctionClosed, auctionID, auction.EndTime.Format(time.RFC3339))
	}
	if !amount.GreaterThan(auction.CurrentPrice) {
		return BidResult{}, fmt.Errorf("service: %w - current price is %s", biddingerrors.ErrBidTooLow, auction.CurrentPrice)
	}

	previous := auction.HighestBidderID
	if previous == userID {
		previous = ""
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now,
	}

	updated := auction
	updated.CurrentPrice = amount
	updated.BidCount++
	updated.HighestBidderID = userID

	// admitted bids run to completion even if the caller goes away
	if err := s.repo.RecordBid(context.WithoutCancel(ctx), bid, updated); err != nil {
		return BidResult{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, userID, err)
	}

	result := BidResult{
		Bid:              bid,
		Auction:          updated,
		NewPrice:         amount,
		PreviousBidderID: previous,
	}
	s.publisher.Publish(notify.Event{
		Kind:             notify.BidAccepted,
		Auction:          updated,
		Bid:              bid,
		PreviousBidderID: previous,
	})

	return result, nil
}

// validateBid checks input validity before any state is touched
func validateBid(auctionID, userID string, amount decimal.Decimal) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	return nil
}

// GetBidsForAuction returns an auction's bids, newest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string, page repository.Page) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID, page)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid for a specific auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

// GetBidsByUser returns all bids a user has placed, newest first
func (s *BiddingService) GetBidsByUser(ctx context.Context, userID string, page repository.Page) ([]models.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByUser(ctx, userID, page)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %s: %w", userID, err)
	}

	return bids, nil
}
