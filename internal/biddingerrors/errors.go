package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUsernameTaken   = errors.New("username already taken")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction details")
	ErrBidTooLow      = errors.New("bid amount must be higher than current price")
	ErrAuctionClosed  = errors.New("auction has ended")
	ErrAuctionHasBids = errors.New("auction already has bids")
	ErrNotOwner       = errors.New("not the auction owner")
	ErrInvalidUser    = errors.New("invalid user details")
)

// authentication errors
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
