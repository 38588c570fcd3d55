package utils

import "github.com/google/uuid"

// GenerateID returns a random (version 4) UUID string. Auctions, bids,
// users and realtime connections all draw their ids from here.
func GenerateID() string { return uuid.NewString() }
