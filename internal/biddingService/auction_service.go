package bidding

import (
	"auction-live/internal/biddingerrors"
	"auction-live/internal/models"
	"auction-live/internal/notify"
	"auction-live/internal/repository"
	"auction-live/utils"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// closeBatch caps how many expired auctions one CloseExpired call handles.
// Whatever is left is picked up on the next tick.
const closeBatch = 500

// AuctionInput carries the owner-editable fields of an auction
type AuctionInput struct {
	Title         string
	Description   string
	ImageURL      string
	StartingPrice decimal.Decimal
	EndTime       time.Time
}

func (s *BiddingService) validateAuction(in AuctionInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("service: %w - empty title", biddingerrors.ErrInvalidAuction)
	}
	if !in.StartingPrice.IsPositive() {
		return fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	}
	if !in.EndTime.After(s.now()) {
		return fmt.Errorf("service: %w - end time must be in the future", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// CreateAuction opens a new auction owned by ownerID
func (s *BiddingService) CreateAuction(ctx context.Context, ownerID string, in AuctionInput) (models.Auction, error) {
	if ownerID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing owner", biddingerrors.ErrInvalidAuction)
	}
	if err := s.validateAuction(in); err != nil {
		return models.Auction{}, err
	}

	if _, err := s.repo.GetUser(ctx, ownerID); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to load owner %s: %w", ownerID, err)
	}

	auction := models.Auction{
		AuctionID:     utils.GenerateID(),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		ImageURL:      in.ImageURL,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		StartTime:     s.now().UTC(),
		EndTime:       in.EndTime.UTC(),
		IsActive:      true,
		OwnerID:       ownerID,
	}

	if err := s.repo.SaveAuction(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to save auction: %w", err)
	}

	utils.Info("auction created", map[string]any{"auction_id": auction.AuctionID, "owner_id": ownerID})
	s.publisher.Publish(notify.Event{Kind: notify.AuctionCreated, Auction: auction})
	return auction, nil
}

// editable loads an auction and checks that actorID may still change it.
// The caller must hold the auction's lock.
func (s *BiddingService) editable(ctx context.Context, actorID, auctionID string) (models.Auction, error) {
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	// bids are checked first so every requester sees the same outcome
	if auction.BidCount > 0 {
		return models.Auction{}, fmt.Errorf("service: %w - auction %s has %d bids", biddingerrors.ErrAuctionHasBids, auctionID, auction.BidCount)
	}
	if auction.OwnerID != actorID {
		return models.Auction{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNotOwner, auctionID)
	}
	return auction, nil
}

// UpdateAuction replaces the editable fields of an auction that has no bids
func (s *BiddingService) UpdateAuction(ctx context.Context, actorID, auctionID string, in AuctionInput) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if err := s.validateAuction(in); err != nil {
		return models.Auction{}, err
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.editable(ctx, actorID, auctionID)
	if err != nil {
		return models.Auction{}, err
	}

	auction.Title = strings.TrimSpace(in.Title)
	auction.Description = in.Description
	auction.ImageURL = in.ImageURL
	auction.StartingPrice = in.StartingPrice
	auction.CurrentPrice = in.StartingPrice
	auction.EndTime = in.EndTime.UTC()

	if err := s.repo.SaveAuction(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to save auction %s: %w", auctionID, err)
	}

	s.publisher.Publish(notify.Event{Kind: notify.AuctionUpdated, Auction: auction})
	return auction, nil
}

// DeleteAuction removes an auction that has no bids
func (s *BiddingService) DeleteAuction(ctx context.Context, actorID, auctionID string) error {
	if auctionID == "" {
		return fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.editable(ctx, actorID, auctionID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteAuction(ctx, auctionID); err != nil {
		return fmt.Errorf("service: failed to delete auction %s: %w", auctionID, err)
	}

	utils.Info("auction deleted", map[string]any{"auction_id": auctionID, "owner_id": actorID})
	s.publisher.Publish(notify.Event{Kind: notify.AuctionDeleted, Auction: auction})
	return nil
}

// GetAuction returns the current state of one auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctions returns auctions in creation order. ActiveOnly is evaluated
// against the service clock.
func (s *BiddingService) ListAuctions(ctx context.Context, filter repository.AuctionFilter) ([]models.Auction, error) {
	if filter.ActiveOnly && filter.Now.IsZero() {
		filter.Now = s.now().UTC()
	}

	auctions, err := s.repo.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// CloseExpired deactivates every active auction whose end time is at or
// before now and reports how many it closed.
func (s *BiddingService) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListAuctions(ctx, repository.AuctionFilter{
		Page:     repository.Page{Limit: closeBatch},
		EndingBy: now,
	})
	if err != nil {
		return 0, fmt.Errorf("service: failed to list expired auctions: %w", err)
	}

	closed := 0
	var firstErr error
	for _, a := range expired {
		ok, err := s.closeOne(ctx, a.AuctionID, now)
		if err != nil {
			utils.Error("failed to close auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, firstErr
}

func (s *BiddingService) closeOne(ctx context.Context, auctionID string, now time.Time) (bool, error) {
	unlock := s.locks.lock(auctionID)
	defer unlock()

	// state may have moved between the listing and the lock
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if !auction.IsActive || auction.EndTime.After(now) {
		return false, nil
	}

	auction.IsActive = false
	if err := s.repo.SaveAuction(ctx, auction); err != nil {
		return false, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}

	utils.Info("auction closed", map[string]any{
		"auction_id":  auctionID,
		"final_price": auction.CurrentPrice.String(),
		"winner":      auction.HighestBidderID,
	})
	s.publisher.Publish(notify.Event{Kind: notify.AuctionClosed, Auction: auction})
	return true, nil
}
