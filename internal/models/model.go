package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts travel as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

// User represents a participant in the auction
type User struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	HashedPassword string `json:"-"`
	IsActive       bool   `json:"is_active"`
}

// Auction is the mutable state of one timed auction.
//
// CurrentPrice only moves upward through accepted bids. StartingPrice and
// EndTime are frozen once BidCount leaves zero, and IsActive never goes
// back to true after the auction is closed.
type Auction struct {
	AuctionID       string          `json:"auction_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	ImageURL        string          `json:"image_url,omitempty"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	IsActive        bool            `json:"is_active"`
	OwnerID         string          `json:"owner_id"`
	BidCount        int             `json:"bid_count"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty"`
}

// Open reports whether the auction accepts bids at the given instant
func (a Auction) Open(now time.Time) bool {
	return a.IsActive && now.Before(a.EndTime)
}

// Bid represents a user's accepted bid on an auction
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
