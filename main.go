package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-live/internal/auth"
	bidding "auction-live/internal/biddingService"
	"auction-live/internal/biddingerrors"
	"auction-live/internal/config"
	"auction-live/internal/notify"
	"auction-live/internal/registry"
	"auction-live/internal/repository"
	"auction-live/internal/scheduler"
	"auction-live/internal/server"
	"auction-live/services/realtime"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping info", map[string]any{"level": cfg.LogLevel})
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, ready, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"error": err.Error()})
	}
	defer closeStore()

	reg := registry.New()
	dispatcher := notify.NewDispatcher(reg)
	biddingSvc := bidding.NewBiddingService(repo, dispatcher)

	secret := cfg.TokenSecretKey
	if secret == "" {
		secret = utils.GenerateID() + utils.GenerateID()
		utils.Warn("TOKEN_SECRET_KEY not set, tokens will not survive a restart", nil)
	}
	tokens, err := auth.NewTokenMaker(secret)
	if err != nil {
		utils.Fatal("failed to create token maker", map[string]any{"error": err.Error()})
	}
	userSvc := auth.NewUserService(repo, tokens, cfg.AccessTokenDuration)

	if cfg.SeedDemoData {
		prepopulateAuctions(ctx, biddingSvc, userSvc)
	}

	realtimeHandler := realtime.NewHandler(biddingSvc, userSvc, reg, dispatcher, realtime.Options{
		WriteTimeout:            cfg.WSWriteTimeout,
		PongTimeout:             cfg.WSPongTimeout,
		HandshakeTimeout:        cfg.WSHandshakeTimeout,
		SendBuffer:              cfg.WSSendBuffer,
		AllowUnverifiedIdentity: cfg.WSAllowUnverifiedIdentity,
	})

	router := server.SetupRouter(server.Dependencies{
		Bidding:  biddingSvc,
		Users:    userSvc,
		Realtime: realtimeHandler,
		Registry: reg,
		Ready:    ready,
	})

	closer, err := scheduler.NewAuctionCloser(biddingSvc, cfg.CloseInterval)
	if err != nil {
		utils.Fatal("failed to create auction closer", map[string]any{"error": err.Error()})
	}
	if err := closer.Start(); err != nil {
		utils.Fatal("failed to start auction closer", map[string]any{"error": err.Error()})
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"address": cfg.HTTPAddress,
			"store":   storeName(cfg),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := closer.Stop(); err != nil {
			utils.Warn("auction closer did not stop cleanly", map[string]any{"error": err.Error()})
		}
		reg.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.Error("server stopped with error", map[string]any{"error": err.Error()})
		closeStore()
		os.Exit(1)
	}
	utils.Info("server stopped", nil)
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config) (repository.AuctionDB, func(*gin.Context) error, func(), error) {
	if cfg.DatabaseURL == "" {
		return repository.NewMemoryRepo(), nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := repository.NewPostgresRepo(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	ready := func(c *gin.Context) error { return repo.Ping(c.Request.Context()) }
	return repo, ready, pool.Close, nil
}

func storeName(cfg config.Config) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}

// prepopulateAuctions adds a demo user and a few running auctions
func prepopulateAuctions(ctx context.Context, biddingSvc *bidding.BiddingService, userSvc *auth.UserService) {
	const username, password = "demo", "demo-password"

	owner, err := userSvc.Register(ctx, username, "demo@example.com", password)
	if errors.Is(err, biddingerrors.ErrUsernameTaken) {
		owner, err = userSvc.VerifyCredentials(ctx, username, password)
	}
	if err != nil {
		utils.Warn("demo seed skipped", map[string]any{"error": err.Error()})
		return
	}

	seeds := []bidding.AuctionInput{
		{Title: "Vintage film camera", Description: "Fully working, with leather case", StartingPrice: decimal.NewFromInt(100)},
		{Title: "Mechanical keyboard", Description: "Brown switches", StartingPrice: decimal.NewFromInt(200)},
		{Title: "Signed vinyl record", Description: "First pressing", StartingPrice: decimal.NewFromInt(150)},
	}
	for i, in := range seeds {
		in.EndTime = time.Now().Add(time.Duration(i+1) * time.Hour)
		if _, err := biddingSvc.CreateAuction(ctx, owner.UserID, in); err != nil {
			utils.Warn("demo auction not created", map[string]any{"title": in.Title, "error": err.Error()})
		}
	}
	utils.Info("demo data seeded", map[string]any{"username": username, "auctions": len(seeds)})
}
