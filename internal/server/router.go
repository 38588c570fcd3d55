package server

import (
	"net/http"

	bidding "auction-live/internal/biddingService"
	"auction-live/internal/registry"
	handler "auction-live/services/bidding/handler"
	"auction-live/services/realtime"

	"github.com/gin-gonic/gin"
)

// UserService is what the router needs from the account layer
type UserService interface {
	handler.UserServiceInterface
	TokenAuthenticator
}

// Dependencies groups the collaborators the routes are wired to
type Dependencies struct {
	Bidding  *bidding.BiddingService
	Users    UserService
	Realtime *realtime.Handler
	Registry *registry.Registry
	// Ready reports store health for /healthz; nil means always ready
	Ready func(*gin.Context) error
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Bidding, deps.Users)
	userHandler := handler.NewUserHandler(deps.Users)
	requireAuth := AuthMiddleware(deps.Users)

	router.GET("/healthz", healthHandler(deps))

	users := router.Group("/users")
	{
		users.POST("", userHandler.RegisterHandler)
		users.POST("/login", userHandler.LoginHandler)
		users.GET("/me/bids", requireAuth, biddingHandler.GetBidsByUserHandler)
		users.GET("/:user_id/bids", biddingHandler.GetBidsByUserHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.POST("", requireAuth, biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PUT("/:auction_id", requireAuth, biddingHandler.UpdateAuctionHandler)
		auctions.DELETE("/:auction_id", requireAuth, biddingHandler.DeleteAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
	}

	bids := router.Group("/bids")
	{
		bids.POST("", requireAuth, biddingHandler.RecordBidHandler)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/auctions/:auction_id", deps.Realtime.AuctionChannel)
		ws.GET("/live-feed", deps.Realtime.LiveFeed)
	}

	return router
}

func healthHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		state := "healthy"
		if deps.Ready != nil {
			if err := deps.Ready(c); err != nil {
				status = http.StatusServiceUnavailable
				state = "unhealthy"
			}
		}
		c.JSON(status, gin.H{
			"status":      state,
			"connections": deps.Registry.Len(),
			"topics":      deps.Registry.TopicCount(),
		})
	}
}
