// Package realtime serves the websocket channels: one per auction and a
// global live feed.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"auction-live/internal/biddingerrors"
	"auction-live/internal/models"
	"auction-live/internal/notify"
	"auction-live/internal/registry"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// AuctionReader loads the auction a channel is opened for
type AuctionReader interface {
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
}

// Authenticator resolves identity claims to users
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
	VerifyCredentials(ctx context.Context, username, password string) (models.User, error)
}

// Options tunes connection behaviour
type Options struct {
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
	// AllowUnverifiedIdentity accepts a bare {"user_id": ...} claim
	AllowUnverifiedIdentity bool
}

func (o Options) pingPeriod() time.Duration {
	return o.PongTimeout * 9 / 10
}

// Handler upgrades requests and attaches the resulting connections to the
// registry.
type Handler struct {
	auctions   AuctionReader
	auth       Authenticator
	registry   *registry.Registry
	dispatcher *notify.Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
}

// NewHandler creates the realtime handler
func NewHandler(auctions AuctionReader, auth Authenticator, reg *registry.Registry, dispatcher *notify.Dispatcher, opts Options) *Handler {
	return &Handler{
		auctions:   auctions,
		auth:       auth,
		registry:   reg,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts: opts,
	}
}

// identityClaim is the optional first message on an auction channel
type identityClaim struct {
	Token    string          `json:"token"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	UserID   json.RawMessage `json:"user_id"`
}

// AuctionChannel handles GET /ws/auctions/:auction_id
func (h *Handler) AuctionChannel(c *gin.Context) {
	auctionID := c.Param("auction_id")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("AuctionChannel: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	auction, err := h.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		message := "Auction not found"
		if !errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			message = "Internal server error"
			utils.Error("AuctionChannel: failed to load auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
		h.reject(ws, message)
		return
	}

	conn := newWSConn(ws, h.opts)
	incoming := make(chan []byte, 1)
	go conn.readPump(incoming)
	go conn.writePump()

	var claim []byte
	timer := time.NewTimer(h.opts.HandshakeTimeout)
	select {
	case msg, ok := <-incoming:
		if !ok {
			timer.Stop()
			conn.Close()
			return
		}
		claim = msg
	case <-timer.C:
	}
	timer.Stop()

	userID := h.resolveIdentity(ctx, claim)
	h.registry.Register(conn, auctionID, userID)
	utils.Info("AuctionChannel: subscriber joined", map[string]any{
		"conn_id":    conn.ID(),
		"auction_id": auctionID,
		"user_id":    userID,
	})

	// the claim window may have let bids or a close through; the snapshot
	// must reflect everything committed before the topic saw this connection
	current, err := h.auctions.GetAuction(ctx, auctionID)
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		utils.Info("AuctionChannel: auction removed during handshake", map[string]any{"conn_id": conn.ID(), "auction_id": auctionID})
		h.registry.Unregister(conn)
		conn.Close()
		return
	case err != nil:
		utils.Warn("AuctionChannel: failed to refresh auction, using earlier copy", map[string]any{"auction_id": auctionID, "error": err.Error()})
	default:
		auction = current
	}

	if err := h.dispatcher.Greet(conn, auction); err != nil {
		utils.Warn("AuctionChannel: failed to send snapshot", map[string]any{"conn_id": conn.ID(), "error": err.Error()})
	}

	h.serve(conn, incoming)
}

// LiveFeed handles GET /ws/live-feed
func (h *Handler) LiveFeed(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("LiveFeed: upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	conn := newWSConn(ws, h.opts)
	incoming := make(chan []byte, 1)
	go conn.readPump(incoming)
	go conn.writePump()

	h.registry.Register(conn, "", "")
	utils.Info("LiveFeed: subscriber joined", map[string]any{"conn_id": conn.ID()})

	h.serve(conn, incoming)
}

// serve discards client messages until the peer leaves, then detaches the
// connection.
func (h *Handler) serve(conn *wsConn, incoming <-chan []byte) {
	for range incoming {
	}
	h.registry.Unregister(conn)
	conn.Close()
	utils.Info("realtime: subscriber left", map[string]any{"conn_id": conn.ID()})
}

func (h *Handler) reject(ws *websocket.Conn, message string) {
	payload, err := notify.Encode(notify.ErrorMessage{Error: message})
	if err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		_ = ws.WriteMessage(websocket.TextMessage, payload)
	}
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(h.opts.WriteTimeout),
	)
	_ = ws.Close()
}

// resolveIdentity maps an identity claim to a user id. Anything that does
// not check out leaves the subscriber anonymous.
func (h *Handler) resolveIdentity(ctx context.Context, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var claim identityClaim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return ""
	}

	switch {
	case claim.Token != "":
		user, err := h.auth.Authenticate(ctx, claim.Token)
		if err != nil {
			utils.Warn("realtime: token claim rejected", map[string]any{"error": err.Error()})
			return ""
		}
		return user.UserID
	case claim.Username != "" && claim.Password != "":
		user, err := h.auth.VerifyCredentials(ctx, claim.Username, claim.Password)
		if err != nil {
			utils.Warn("realtime: credential claim rejected", map[string]any{"username": claim.Username})
			return ""
		}
		return user.UserID
	case len(claim.UserID) > 0:
		if !h.opts.AllowUnverifiedIdentity {
			return ""
		}
		return rawID(claim.UserID)
	}
	return ""
}

// rawID accepts both string and numeric ids
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
