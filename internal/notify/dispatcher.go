// Package notify turns auction occurrences into realtime messages. Every
// occurrence-to-scope-to-payload rule lives in the rules table below.
package notify

import (
	"encoding/json"
	"time"

	model "auction-live/internal/models"
	"auction-live/internal/registry"
	"auction-live/utils"

	"github.com/shopspring/decimal"
)

// Kind names a domain occurrence
type Kind string

const (
	AuctionCreated   Kind = "auction_created"
	AuctionUpdated   Kind = "auction_updated"
	AuctionDeleted   Kind = "auction_deleted"
	BidAccepted      Kind = "bid_accepted"
	AuctionClosed    Kind = "auction_closed"
	SubscriberJoined Kind = "subscriber_joined"
)

// Event is one occurrence together with the state needed to describe it
type Event struct {
	Kind    Kind
	Auction model.Auction
	Bid     model.Bid
	// PreviousBidderID is set on BidAccepted when someone else held the
	// highest bid before this one.
	PreviousBidderID string
}

// Scope says which registry index a message goes through
type Scope int

const (
	ScopeAll Scope = iota
	ScopeTopic
	ScopeUser
	ScopeDirect
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeTopic:
		return "topic"
	case ScopeUser:
		return "user"
	default:
		return "direct"
	}
}

// Delivery is one message and where it should go
type Delivery struct {
	Scope   Scope
	Target  string
	Payload any
}

// Wire payloads
type (
	NewAuctionMessage struct {
		Event         string          `json:"event"`
		AuctionID     string          `json:"auction_id"`
		Title         string          `json:"title"`
		StartingPrice decimal.Decimal `json:"starting_price"`
		CurrentPrice  decimal.Decimal `json:"current_price"`
	}

	AuctionUpdatedMessage struct {
		Event        string          `json:"event"`
		AuctionID    string          `json:"auction_id"`
		Title        string          `json:"title"`
		CurrentPrice decimal.Decimal `json:"current_price"`
	}

	AuctionDeletedMessage struct {
		Event     string `json:"event"`
		AuctionID string `json:"auction_id"`
	}

	NewBidMessage struct {
		Event     string          `json:"event"`
		AuctionID string          `json:"auction_id"`
		BidID     string          `json:"bid_id"`
		Amount    decimal.Decimal `json:"amount"`
		Bidder    string          `json:"bidder"`
		Time      string          `json:"time"`
	}

	OutbidMessage struct {
		Event        string          `json:"event"`
		AuctionID    string          `json:"auction_id"`
		AuctionTitle string          `json:"auction_title"`
		NewPrice     decimal.Decimal `json:"new_price"`
	}

	AuctionClosedMessage struct {
		Event      string          `json:"event"`
		AuctionID  string          `json:"auction_id"`
		FinalPrice decimal.Decimal `json:"final_price"`
		Winner     string          `json:"winner,omitempty"`
	}

	AuctionWonMessage struct {
		Event        string          `json:"event"`
		AuctionID    string          `json:"auction_id"`
		AuctionTitle string          `json:"auction_title"`
		FinalPrice   decimal.Decimal `json:"final_price"`
	}

	AuctionDataMessage struct {
		Event        string          `json:"event"`
		AuctionID    string          `json:"auction_id"`
		Title        string          `json:"title"`
		Description  string          `json:"description"`
		CurrentPrice decimal.Decimal `json:"current_price"`
		EndTime      string          `json:"end_time"`
		IsActive     bool            `json:"is_active"`
	}

	ErrorMessage struct {
		Error string `json:"error"`
	}
)

// rule maps an event to one delivery. target returns false when the rule
// does not apply to this particular event.
type rule struct {
	scope   Scope
	target  func(Event) (string, bool)
	payload func(Event) any
}

func everyone(Event) (string, bool) { return "", true }

func auctionTopic(ev Event) (string, bool) { return ev.Auction.AuctionID, true }

// rules lists deliveries in the order they are made
var rules = map[Kind][]rule{
	AuctionCreated: {{
		scope:  ScopeAll,
		target: everyone,
		payload: func(ev Event) any {
			return NewAuctionMessage{
				Event:         "new_auction",
				AuctionID:     ev.Auction.AuctionID,
				Title:         ev.Auction.Title,
				StartingPrice: ev.Auction.StartingPrice,
				CurrentPrice:  ev.Auction.CurrentPrice,
			}
		},
	}},
	AuctionUpdated: {{
		scope:  ScopeTopic,
		target: auctionTopic,
		payload: func(ev Event) any {
			return AuctionUpdatedMessage{
				Event:        "auction_updated",
				AuctionID:    ev.Auction.AuctionID,
				Title:        ev.Auction.Title,
				CurrentPrice: ev.Auction.CurrentPrice,
			}
		},
	}},
	AuctionDeleted: {{
		scope:  ScopeAll,
		target: everyone,
		payload: func(ev Event) any {
			return AuctionDeletedMessage{Event: "auction_deleted", AuctionID: ev.Auction.AuctionID}
		},
	}},
	// topic first so feed watchers never learn of a price after the outbid bidder does
	BidAccepted: {
		{
			scope:  ScopeTopic,
			target: auctionTopic,
			payload: func(ev Event) any {
				return NewBidMessage{
					Event:     "new_bid",
					AuctionID: ev.Auction.AuctionID,
					BidID:     ev.Bid.BidID,
					Amount:    ev.Bid.Amount,
					Bidder:    ev.Bid.UserID,
					Time:      ev.Bid.CreatedAt.UTC().Format(time.RFC3339Nano),
				}
			},
		},
		{
			scope: ScopeUser,
			target: func(ev Event) (string, bool) {
				prev := ev.PreviousBidderID
				return prev, prev != "" && prev != ev.Bid.UserID
			},
			payload: func(ev Event) any {
				return OutbidMessage{
					Event:        "outbid",
					AuctionID:    ev.Auction.AuctionID,
					AuctionTitle: ev.Auction.Title,
					NewPrice:     ev.Bid.Amount,
				}
			},
		},
	},
	AuctionClosed: {
		{
			scope:  ScopeTopic,
			target: auctionTopic,
			payload: func(ev Event) any {
				return AuctionClosedMessage{
					Event:      "auction_closed",
					AuctionID:  ev.Auction.AuctionID,
					FinalPrice: ev.Auction.CurrentPrice,
					Winner:     ev.Auction.HighestBidderID,
				}
			},
		},
		{
			scope: ScopeUser,
			target: func(ev Event) (string, bool) {
				return ev.Auction.HighestBidderID, ev.Auction.HighestBidderID != ""
			},
			payload: func(ev Event) any {
				return AuctionWonMessage{
					Event:        "auction_won",
					AuctionID:    ev.Auction.AuctionID,
					AuctionTitle: ev.Auction.Title,
					FinalPrice:   ev.Auction.CurrentPrice,
				}
			},
		},
	},
	SubscriberJoined: {{
		scope:  ScopeDirect,
		target: auctionTopic,
		payload: func(ev Event) any {
			return AuctionDataMessage{
				Event:        "auction_data",
				AuctionID:    ev.Auction.AuctionID,
				Title:        ev.Auction.Title,
				Description:  ev.Auction.Description,
				CurrentPrice: ev.Auction.CurrentPrice,
				EndTime:      ev.Auction.EndTime.UTC().Format(time.RFC3339),
				IsActive:     ev.Auction.IsActive,
			}
		},
	}},
}

// Plan resolves the deliveries for an event without performing any I/O
func Plan(ev Event) []Delivery {
	var out []Delivery
	for _, r := range rules[ev.Kind] {
		target, ok := r.target(ev)
		if !ok {
			continue
		}
		out = append(out, Delivery{Scope: r.scope, Target: target, Payload: r.payload(ev)})
	}
	return out
}

// Dispatcher drives deliveries through the connection registry
type Dispatcher struct {
	registry *registry.Registry
}

// NewDispatcher creates a dispatcher bound to a registry
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Publish delivers every planned message for ev. Direct-scope rules are
// skipped here; they need a connection and go through Greet.
func (d *Dispatcher) Publish(ev Event) {
	for _, del := range Plan(ev) {
		msg, err := Encode(del.Payload)
		if err != nil {
			utils.Error("notify: failed to encode payload", map[string]any{"kind": ev.Kind, "error": err.Error()})
			continue
		}

		var delivered int
		switch del.Scope {
		case ScopeAll:
			delivered = d.registry.BroadcastAll(msg)
		case ScopeTopic:
			delivered = d.registry.BroadcastToTopic(del.Target, msg)
		case ScopeUser:
			if d.registry.SendToUser(del.Target, msg) {
				delivered = 1
			}
		default:
			continue
		}

		utils.Debug("notify: event delivered", map[string]any{
			"kind":      ev.Kind,
			"scope":     del.Scope.String(),
			"target":    del.Target,
			"delivered": delivered,
		})
	}
}

// Greet sends the full auction snapshot to a connection that just joined
// the auction's topic.
func (d *Dispatcher) Greet(conn registry.Conn, auction model.Auction) error {
	for _, del := range Plan(Event{Kind: SubscriberJoined, Auction: auction}) {
		msg, err := Encode(del.Payload)
		if err != nil {
			return err
		}
		if err := conn.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// Encode marshals a payload for the wire
func Encode(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
