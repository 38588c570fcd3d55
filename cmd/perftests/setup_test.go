package perftests

import (
	"context"
	"fmt"
	"io"
	"time"

	bidding "auction-live/internal/biddingService"
	model "auction-live/internal/models"
	"auction-live/internal/notify"
	"auction-live/internal/registry"
	"auction-live/internal/repository"
	"auction-live/utils"

	"github.com/shopspring/decimal"
)

func init() {
	utils.SetOutput(io.Discard)
}

func auctionID(i int) string {
	return fmt.Sprintf("auction_%d", i)
}

// setupService creates a bidding service over an in-memory store seeded with
// open auctions. The dispatcher has no subscribers, so publishing only pays
// for planning and encoding.
func setupService(numAuctions int, startingPrice int64) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo, notify.NewDispatcher(registry.New()))

	ctx := context.Background()
	price := decimal.NewFromInt(startingPrice)
	for i := 0; i < numAuctions; i++ {
		_ = repo.SaveAuction(ctx, model.Auction{
			AuctionID:     auctionID(i),
			Title:         fmt.Sprintf("title_%d", i),
			Description:   "Load test auction",
			StartingPrice: price,
			CurrentPrice:  price,
			StartTime:     time.Now(),
			EndTime:       time.Now().Add(24 * time.Hour),
			IsActive:      true,
			OwnerID:       "owner",
		})
	}
	return repo, svc
}
