package repository

import (
	"auction-live/internal/biddingerrors"
	model "auction-live/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema creates the tables PostgresRepo works on
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id         TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL,
	hashed_password TEXT NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS auctions (
	auction_id        TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	image_url         TEXT NOT NULL DEFAULT '',
	starting_price    NUMERIC NOT NULL,
	current_price     NUMERIC NOT NULL,
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ NOT NULL,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	owner_id          TEXT NOT NULL REFERENCES users(user_id),
	bid_count         INTEGER NOT NULL DEFAULT 0,
	highest_bidder_id TEXT NOT NULL DEFAULT '',
	created_seq       BIGSERIAL
);

CREATE TABLE IF NOT EXISTS bids (
	bid_id     TEXT PRIMARY KEY,
	auction_id TEXT NOT NULL REFERENCES auctions(auction_id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(user_id),
	amount     NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	seq        BIGSERIAL
);

CREATE INDEX IF NOT EXISTS bids_auction_idx ON bids (auction_id, seq DESC);
CREATE INDEX IF NOT EXISTS bids_user_idx ON bids (user_id, seq DESC);
`

const auctionColumns = `auction_id, title, description, image_url, starting_price::text, current_price::text,
	start_time, end_time, is_active, owner_id, bid_count, highest_bidder_id`

const bidColumns = `bid_id, auction_id, user_id, amount::text, created_at`

// PostgresRepo is an AuctionDB backed by a pgx connection pool
type PostgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRepo wraps an open pool
func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

// Migrate applies Schema
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetAuction returns the auction with the given id
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID)
	auction, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// SaveAuction inserts or replaces an auction
func (r *PostgresRepo) SaveAuction(ctx context.Context, auction model.Auction) error {
	if err := saveAuction(ctx, r.pool, auction); err != nil {
		return fmt.Errorf("save auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

// DeleteAuction removes an auction; its bids go with it
func (r *PostgresRepo) DeleteAuction(ctx context.Context, auctionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auctions WHERE auction_id = $1`, auctionID)
	if err != nil {
		return fmt.Errorf("delete auction %s: %w", auctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

// ListAuctions returns auctions in creation order
func (r *PostgresRepo) ListAuctions(ctx context.Context, filter AuctionFilter) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE TRUE`
	args := []any{}
	if filter.ActiveOnly {
		args = append(args, filter.Now)
		query += fmt.Sprintf(` AND is_active AND end_time > $%d`, len(args))
	}
	if !filter.EndingBy.IsZero() {
		args = append(args, filter.EndingBy)
		query += fmt.Sprintf(` AND is_active AND end_time <= $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit, max(filter.Skip, 0))
	query += fmt.Sprintf(` ORDER BY created_seq LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	auctions := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("list auctions: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// RecordBid inserts the bid and updates the auction in one transaction
func (r *PostgresRepo) RecordBid(ctx context.Context, bid model.Bid, auction model.Auction) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bids (bid_id, auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4::numeric, $5)`,
			bid.BidID, bid.AuctionID, bid.UserID, bid.Amount.String(), bid.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return biddingerrors.ErrAuctionNotFound
			}
			return err
		}
		return saveAuction(ctx, tx, auction)
	})
	if err != nil {
		return fmt.Errorf("record bid for auction %s: %w", bid.AuctionID, err)
	}
	return nil
}

// GetBidsByAuction returns an auction's bids, newest first
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string, page Page) ([]model.Bid, error) {
	bids, err := r.queryBids(ctx, `auction_id = $1`, auctionID, page)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetBidsByUser returns a user's bids, newest first
func (r *PostgresRepo) GetBidsByUser(ctx context.Context, userID string, page Page) ([]model.Bid, error) {
	bids, err := r.queryBids(ctx, `user_id = $1`, userID, page)
	if err != nil {
		return nil, fmt.Errorf("get bids for user %s: %w", userID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (r *PostgresRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY amount DESC, seq ASC LIMIT 1`, auctionID)
	bid, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

// GetUser returns a user by id
func (r *PostgresRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	return r.getUser(ctx, `user_id = $1`, userID)
}

// GetUserByUsername returns a user by login name
func (r *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, `username = $1`, username)
}

// SaveUser inserts or replaces a user
func (r *PostgresRepo) SaveUser(ctx context.Context, user model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, email, hashed_password, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username, email = EXCLUDED.email,
			hashed_password = EXCLUDED.hashed_password, is_active = EXCLUDED.is_active`,
		user.UserID, user.Username, user.Email, user.HashedPassword, user.IsActive)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("save user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("save user %s: %w", user.Username, err)
	}
	return nil
}

func (r *PostgresRepo) getUser(ctx context.Context, where string, arg string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, username, email, hashed_password, is_active FROM users WHERE `+where, arg).
		Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", arg, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", arg, err)
	}
	return u, nil
}

func (r *PostgresRepo) queryBids(ctx context.Context, where string, arg string, page Page) ([]model.Bid, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE `+where+` ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		arg, limit, max(page.Skip, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveAuction(ctx context.Context, db execer, a model.Auction) error {
	_, err := db.Exec(ctx, `
		INSERT INTO auctions (auction_id, title, description, image_url, starting_price, current_price,
			start_time, end_time, is_active, owner_id, bid_count, highest_bidder_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (auction_id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description, image_url = EXCLUDED.image_url,
			starting_price = EXCLUDED.starting_price, current_price = EXCLUDED.current_price,
			end_time = EXCLUDED.end_time, is_active = EXCLUDED.is_active,
			bid_count = EXCLUDED.bid_count, highest_bidder_id = EXCLUDED.highest_bidder_id`,
		a.AuctionID, a.Title, a.Description, a.ImageURL, a.StartingPrice.String(), a.CurrentPrice.String(),
		a.StartTime, a.EndTime, a.IsActive, a.OwnerID, a.BidCount, a.HighestBidderID)
	return err
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var a model.Auction
	var startPrice, curPrice string
	err := row.Scan(&a.AuctionID, &a.Title, &a.Description, &a.ImageURL, &startPrice, &curPrice,
		&a.StartTime, &a.EndTime, &a.IsActive, &a.OwnerID, &a.BidCount, &a.HighestBidderID)
	if err != nil {
		return model.Auction{}, err
	}
	if a.StartingPrice, err = decimal.NewFromString(startPrice); err != nil {
		return model.Auction{}, err
	}
	if a.CurrentPrice, err = decimal.NewFromString(curPrice); err != nil {
		return model.Auction{}, err
	}
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b      model.Bid
		amount string
	)
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &amount, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Bid{}, err
	}
	return b, nil
}
