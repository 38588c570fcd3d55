package bidding

import (
	"auction-live/internal/biddingerrors"
	model "auction-live/internal/models"
	"auction-live/internal/notify"
	"auction-live/internal/repository"
	"auction-live/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	utils.SetOutput(io.Discard)
}

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) recorded() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func openAuction(id string, price int64) model.Auction {
	return model.Auction{
		AuctionID:     id,
		Title:         "title-" + id,
		StartingPrice: dec(price),
		CurrentPrice:  dec(price),
		StartTime:     testNow.Add(-time.Hour),
		EndTime:       testNow.Add(time.Hour),
		IsActive:      true,
		OwnerID:       "owner",
	}
}

// Tests PlaceBid
func TestBiddingService_PlaceBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		auctionID     string
		userID        string
		amount        decimal.Decimal
		mockSetup     func(m *repository.MockAuctionDB)
		expectError   bool
		expectedError error
		wantPrevious  string
	}{
		{
			name:      "valid_first_bid",
			auctionID: "auction1",
			userID:    "user1",
			amount:    dec(120),
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(openAuction("auction1", 100), nil)
				m.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:      "outbids_previous_bidder",
			auctionID: "auction1",
			userID:    "user2",
			amount:    dec(150),
			mockSetup: func(m *repository.MockAuctionDB) {
				a := openAuction("auction1", 100)
				a.CurrentPrice = dec(120)
				a.BidCount = 1
				a.HighestBidderID = "user1"
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
				m.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
			wantPrevious: "user1",
		},
		{
			name:      "raising_own_bid",
			auctionID: "auction1",
			userID:    "user1",
			amount:    dec(150),
			mockSetup: func(m *repository.MockAuctionDB) {
				a := openAuction("auction1", 100)
				a.CurrentPrice = dec(120)
				a.BidCount = 1
				a.HighestBidderID = "user1"
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
				m.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:          "empty_auctionID",
			userID:        "user1",
			amount:        dec(50),
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "empty_userID",
			auctionID:     "auction1",
			amount:        dec(50),
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "zero_amount",
			auctionID:     "auction1",
			userID:        "user1",
			amount:        decimal.Zero,
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "negative_amount",
			auctionID:     "auction1",
			userID:        "user1",
			amount:        dec(-50),
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			userID:    "user1",
			amount:    dec(50),
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrAuctionNotFound,
		},
		{
			name:      "bid_equal_to_current_price",
			auctionID: "auction1",
			userID:    "user2",
			amount:    dec(100),
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(openAuction("auction1", 100), nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "bid_too_low",
			auctionID: "auction1",
			userID:    "user2",
			amount:    dec(80),
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(openAuction("auction1", 100), nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "auction_inactive",
			auctionID: "auction1",
			userID:    "user2",
			amount:    dec(500),
			mockSetup: func(m *repository.MockAuctionDB) {
				a := openAuction("auction1", 100)
				a.IsActive = false
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrAuctionClosed,
		},
		{
			name:      "auction_past_end_time",
			auctionID: "auction1",
			userID:    "user2",
			amount:    dec(500),
			mockSetup: func(m *repository.MockAuctionDB) {
				a := openAuction("auction1", 100)
				a.EndTime = testNow
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrAuctionClosed,
		},
		{
			name:      "repo_fails",
			auctionID: "auction1",
			userID:    "user3",
			amount:    dec(120),
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(openAuction("auction1", 100), nil)
				m.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("repo write failed"))
			},
			expectError:   true,
			expectedError: nil, // Service wraps repo error, we don’t match specific error here
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)

			pub := &recordingPublisher{}
			service := NewBiddingService(mockRepo, pub, WithClock(fixedClock))

			result, err := service.PlaceBid(context.Background(), tc.auctionID, tc.userID, tc.amount)

			if tc.expectError {
				require.Error(t, err)
				if tc.expectedError != nil {
					require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				}
				require.Empty(t, pub.recorded(), "rejected bids must not be published")
				return
			}

			require.NoError(t, err)

			// Validate generated BidID
			_, parseErr := uuid.Parse(result.Bid.BidID)
			require.NoError(t, parseErr, "BidID should be a valid UUID")

			require.Equal(t, tc.auctionID, result.Bid.AuctionID)
			require.Equal(t, tc.userID, result.Bid.UserID)
			require.True(t, tc.amount.Equal(result.Bid.Amount))
			require.True(t, tc.amount.Equal(result.NewPrice))
			require.True(t, tc.amount.Equal(result.Auction.CurrentPrice))
			require.Equal(t, tc.userID, result.Auction.HighestBidderID)
			require.Equal(t, testNow, result.Bid.CreatedAt)
			require.Equal(t, tc.wantPrevious, result.PreviousBidderID)

			events := pub.recorded()
			require.Len(t, events, 1)
			require.Equal(t, notify.BidAccepted, events[0].Kind)
			require.Equal(t, result.Bid, events[0].Bid)
			require.Equal(t, tc.wantPrevious, events[0].PreviousBidderID)
		})
	}
}

func TestBiddingService_PlaceBidSequence(t *testing.T) {
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.SaveAuction(context.Background(), openAuction("A", 100)))

	pub := &recordingPublisher{}
	service := NewBiddingService(repo, pub, WithClock(fixedClock))
	ctx := context.Background()

	first, err := service.PlaceBid(ctx, "A", "X", dec(120))
	require.NoError(t, err)
	require.Empty(t, first.PreviousBidderID)

	second, err := service.PlaceBid(ctx, "A", "Y", dec(150))
	require.NoError(t, err)
	require.Equal(t, "X", second.PreviousBidderID)

	_, err = service.PlaceBid(ctx, "A", "Z", dec(140))
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)

	auction, err := repo.GetAuction(ctx, "A")
	require.NoError(t, err)
	require.True(t, dec(150).Equal(auction.CurrentPrice))
	require.Equal(t, 2, auction.BidCount)
	require.Equal(t, "Y", auction.HighestBidderID)

	bids, err := service.GetBidsForAuction(ctx, "A", repository.Page{})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, "Y", bids[0].UserID)
	require.Equal(t, "X", bids[1].UserID)

	events := pub.recorded()
	require.Len(t, events, 2)
	require.Empty(t, events[0].PreviousBidderID)
	require.Equal(t, "X", events[1].PreviousBidderID)
}

func TestBiddingService_ConcurrentBidsAtSamePrice(t *testing.T) {
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.SaveAuction(context.Background(), openAuction("A", 100)))
	service := NewBiddingService(repo, nil, WithClock(fixedClock))

	const bidders = 50
	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.PlaceBid(context.Background(), "A", fmt.Sprintf("user%d", i), dec(200))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	}
	require.Equal(t, 1, accepted)

	auction, err := repo.GetAuction(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, 1, auction.BidCount)
	require.True(t, dec(200).Equal(auction.CurrentPrice))
	require.Equal(t, 0, service.locks.size())
}

func TestBiddingService_ConcurrentBidsPublishInAcceptanceOrder(t *testing.T) {
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.SaveAuction(context.Background(), openAuction("A", 1)))
	pub := &recordingPublisher{}
	service := NewBiddingService(repo, pub, WithClock(fixedClock))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				amount := dec(int64(2 + i*8 + w))
				_, _ = service.PlaceBid(context.Background(), "A", fmt.Sprintf("user%d", w), amount)
			}
		}(w)
	}
	wg.Wait()

	events := pub.recorded()
	auction, err := repo.GetAuction(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, events, auction.BidCount)

	// accepted amounts strictly increase in publish order
	for i := 1; i < len(events); i++ {
		require.True(t, events[i].Bid.Amount.GreaterThan(events[i-1].Bid.Amount))
	}
	require.True(t, events[len(events)-1].Bid.Amount.Equal(auction.CurrentPrice))
}

func TestBiddingService_IndependentAuctions(t *testing.T) {
	repo := repository.NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, repo.SaveAuction(ctx, openAuction(fmt.Sprintf("A%d", i), 10)))
	}
	service := NewBiddingService(repo, nil, WithClock(fixedClock))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := int64(11); n <= 30; n++ {
				_, err := service.PlaceBid(ctx, fmt.Sprintf("A%d", i), "bidder", dec(n))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		a, err := repo.GetAuction(ctx, fmt.Sprintf("A%d", i))
		require.NoError(t, err)
		require.Equal(t, 20, a.BidCount)
		require.True(t, dec(30).Equal(a.CurrentPrice))
	}
}

func TestBiddingService_CanceledContextAfterAdmission(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	mockRepo := repository.NewMockAuctionDB(ctrl)
	mockRepo.EXPECT().GetAuction(gomock.Any(), "A").DoAndReturn(func(context.Context, string) (model.Auction, error) {
		cancel()
		return openAuction("A", 100), nil
	})
	mockRepo.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ model.Bid, _ model.Auction) error {
			return ctx.Err()
		})

	service := NewBiddingService(mockRepo, nil, WithClock(fixedClock))
	_, err := service.PlaceBid(ctx, "A", "user1", dec(150))
	require.NoError(t, err)
}

// Tests GetBidsForAuction
func TestBiddingService_GetBidsForAuction(t *testing.T) {
	t.Parallel()

	bidsExample := []model.Bid{
		{BidID: "bid2", AuctionID: "auction1", UserID: "user2", Amount: dec(150), CreatedAt: testNow.Add(time.Second)},
		{BidID: "bid1", AuctionID: "auction1", UserID: "user1", Amount: dec(100), CreatedAt: testNow},
	}

	tests := []struct {
		name          string
		auctionID     string
		mockSetup     func(m *repository.MockAuctionDB)
		expectError   bool
		expectedError error
		expectedBids  []model.Bid
	}{
		{
			name:      "valid_auction_with_bids",
			auctionID: "auction1",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(openAuction("auction1", 10), nil)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction1", repository.Page{Skip: 0, Limit: 10}).Return(bidsExample, nil)
			},
			expectedBids: bidsExample,
		},
		{
			name:      "valid_auction_no_bids",
			auctionID: "auction2",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction2").Return(openAuction("auction2", 10), nil)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction2", gomock.Any()).Return([]model.Bid{}, nil)
			},
			expectedBids: []model.Bid{},
		},
		{
			name:          "empty_auctionID",
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "unknown_auction",
			auctionID: "missing",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrAuctionNotFound,
		},
		{
			name:      "repo_error",
			auctionID: "auction3",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetAuction(gomock.Any(), "auction3").Return(openAuction("auction3", 10), nil)
				m.EXPECT().GetBidsByAuction(gomock.Any(), "auction3", gomock.Any()).Return(nil, errors.New("db failure"))
			},
			expectError: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)
			service := NewBiddingService(mockRepo, nil)

			bids, err := service.GetBidsForAuction(context.Background(), tc.auctionID, repository.Page{Limit: 10})

			if tc.expectError {
				require.Error(t, err)
				if tc.expectedError != nil {
					require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				}
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.expectedBids, bids)
			}
		})
	}
}

// Test GetWinningBid
func TestBiddingService_GetWinningBid(t *testing.T) {
	t.Parallel()

	winning := model.Bid{
		BidID:     uuid.NewString(),
		AuctionID: "auction1",
		UserID:    "user1",
		Amount:    dec(100),
		CreatedAt: testNow,
	}

	tests := []struct {
		name          string
		auctionID     string
		mockSetup     func(m *repository.MockAuctionDB)
		expectError   bool
		expectedError error
	}{
		{
			name:      "valid_auction_with_winning_bid",
			auctionID: "auction1",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(winning, nil)
			},
		},
		{
			name:        "empty_auctionID",
			mockSetup:   func(m *repository.MockAuctionDB) {},
			expectError: true,
		},
		{
			name:      "repo_returns_no_bids",
			auctionID: "auction2",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetWinningBid(gomock.Any(), "auction2").Return(model.Bid{}, biddingerrors.ErrNoBids)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrNoBids,
		},
		{
			name:      "repo_returns_error",
			auctionID: "auction3",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetWinningBid(gomock.Any(), "auction3").Return(model.Bid{}, errors.New("repo error"))
			},
			expectError: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)
			service := NewBiddingService(mockRepo, nil)

			bid, err := service.GetWinningBid(context.Background(), tc.auctionID)

			if tc.expectError {
				require.Error(t, err)
				if tc.expectedError != nil {
					require.ErrorIs(t, err, tc.expectedError)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, winning, bid)
		})
	}
}

// Test GetBidsByUser
func TestBiddingService_GetBidsByUser(t *testing.T) {
	t.Parallel()

	bidsExample := []model.Bid{
		{BidID: "bid3", AuctionID: "auction2", UserID: "user1", Amount: dec(40), CreatedAt: testNow.Add(time.Minute)},
		{BidID: "bid1", AuctionID: "auction1", UserID: "user1", Amount: dec(100), CreatedAt: testNow},
	}

	tests := []struct {
		name          string
		userID        string
		mockSetup     func(m *repository.MockAuctionDB)
		expectError   bool
		expectedError error
		expectedBids  []model.Bid
	}{
		{
			name:   "valid_user_with_bids",
			userID: "user1",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetBidsByUser(gomock.Any(), "user1", gomock.Any()).Return(bidsExample, nil)
			},
			expectedBids: bidsExample,
		},
		{
			name:   "valid_user_no_bids",
			userID: "user2",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetBidsByUser(gomock.Any(), "user2", gomock.Any()).Return([]model.Bid{}, nil)
			},
			expectedBids: []model.Bid{},
		},
		{
			name:          "empty_userID",
			mockSetup:     func(m *repository.MockAuctionDB) {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:   "repo_error",
			userID: "user3",
			mockSetup: func(m *repository.MockAuctionDB) {
				m.EXPECT().GetBidsByUser(gomock.Any(), "user3", gomock.Any()).Return(nil, errors.New("db failure"))
			},
			expectError: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)
			service := NewBiddingService(mockRepo, nil)

			bids, err := service.GetBidsByUser(context.Background(), tc.userID, repository.Page{})

			if tc.expectError {
				require.Error(t, err)
				if tc.expectedError != nil {
					require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				}
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.expectedBids, bids)
			}
		})
	}
}

func TestLockTable_PrunesIdleEntries(t *testing.T) {
	locks := newLockTable()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("A")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
	require.Equal(t, 0, locks.size())

	unlockA := locks.lock("A")
	unlockB := locks.lock("B")
	require.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	require.Equal(t, 0, locks.size())
}
