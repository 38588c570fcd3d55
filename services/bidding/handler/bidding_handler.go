package handler

import (
	"context"
	"net/http"

	bidding "auction-live/internal/biddingService"
	"auction-live/internal/biddingerrors"
	model "auction-live/internal/models"
	"auction-live/internal/repository"
	"auction-live/services/bidding/helpers"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mock_handler.go -package=handler auction-live/services/bidding/handler BiddingServiceInterface,UserServiceInterface

// detailBids is how many recent bids GET /auctions/:auction_id embeds
const detailBids = 10

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (bidding.BidResult, error)
	GetBidsForAuction(ctx context.Context, auctionID string, page repository.Page) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string, page repository.Page) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)

	CreateAuction(ctx context.Context, ownerID string, in bidding.AuctionInput) (model.Auction, error)
	UpdateAuction(ctx context.Context, actorID, auctionID string, in bidding.AuctionInput) (model.Auction, error)
	DeleteAuction(ctx context.Context, actorID, auctionID string) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter repository.AuctionFilter) ([]model.Auction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
	users   UserServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface, users UserServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service, users: users}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	userID, ok := helpers.CurrentUserID(c)
	if !ok {
		helpers.HandleServiceError(c, "RecordBidHandler", biddingerrors.ErrUnauthenticated, nil)
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}
	if !req.Amount.IsPositive() {
		helpers.HandleBindError(c, "RecordBidHandler", biddingerrors.ErrInvalidBid)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, userID, req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    userID,
			"amount":     req.Amount.String(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		BidResponse: helpers.NewBidResponse(result.Bid),
		NewPrice:    result.NewPrice,
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":          result.Bid.BidID,
		"auction_id":      result.Bid.AuctionID,
		"user_id":         userID,
		"amount":          result.Bid.Amount.String(),
		"previous_bidder": result.PreviousBidderID,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var q helpers.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "GetBidsByAuctionHandler", err)
		return
	}

	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID, q.Page())
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"user_id":    bid.UserID,
		"amount":     bid.Amount.String(),
	})
}

// GetBidsByUserHandler handles GET /users/:user_id/bids and, with the
// authenticated user, GET /users/me/bids
func (h *BiddingHandler) GetBidsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		id, ok := helpers.CurrentUserID(c)
		if !ok {
			helpers.HandleServiceError(c, "GetBidsByUserHandler", biddingerrors.ErrUnauthenticated, nil)
			return
		}
		userID = id
	}

	var q helpers.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "GetBidsByUserHandler", err)
		return
	}

	bids, err := h.service.GetBidsByUser(c.Request.Context(), userID, q.Page())
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByUserHandler", "bids retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(bids),
	})
}

func auctionInput(req helpers.AuctionRequest) bidding.AuctionInput {
	return bidding.AuctionInput{
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		EndTime:       req.EndTime,
	}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	userID, ok := helpers.CurrentUserID(c)
	if !ok {
		helpers.HandleServiceError(c, "CreateAuctionHandler", biddingerrors.ErrUnauthenticated, nil)
		return
	}

	var req helpers.AuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), userID, auctionInput(req))
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, map[string]any{"owner_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"owner_id":   userID,
	})
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), repository.AuctionFilter{
		Page:       q.Page(),
		ActiveOnly: q.ActiveOnly,
	})
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, nil)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"count":       len(auctions),
		"active_only": q.ActiveOnly,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	auction, err := h.service.GetAuction(ctx, auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	bids, err := h.service.GetBidsForAuction(ctx, auctionID, repository.Page{Limit: detailBids})
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := helpers.AuctionDetailsResponse{
		Auction: auction,
		Bids:    helpers.NewBidResponses(bids),
	}
	// a missing owner record does not hide the auction
	if owner, err := h.users.GetUser(ctx, auction.OwnerID); err == nil {
		u := helpers.NewUserResponse(owner)
		resp.Owner = &u
	}

	utils.JSONResponse(c, http.StatusOK, resp, "auction retrieved successfully")
}

// UpdateAuctionHandler handles PUT /auctions/:auction_id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID, ok := helpers.CurrentUserID(c)
	if !ok {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", biddingerrors.ErrUnauthenticated, nil)
		return
	}

	var req helpers.AuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	auction, err := h.service.UpdateAuction(c.Request.Context(), userID, auctionID, auctionInput(req))
	if err != nil {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{"auction_id": auctionID})
}

// DeleteAuctionHandler handles DELETE /auctions/:auction_id
func (h *BiddingHandler) DeleteAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID, ok := helpers.CurrentUserID(c)
	if !ok {
		helpers.HandleServiceError(c, "DeleteAuctionHandler", biddingerrors.ErrUnauthenticated, nil)
		return
	}

	if err := h.service.DeleteAuction(c.Request.Context(), userID, auctionID); err != nil {
		helpers.HandleServiceError(c, "DeleteAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted successfully", map[string]any{"auction_id": auctionID})
}
