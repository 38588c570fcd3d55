package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-live/internal/auth"
	bidding "auction-live/internal/biddingService"
	"auction-live/internal/notify"
	"auction-live/internal/registry"
	"auction-live/internal/repository"
	"auction-live/internal/server"
	"auction-live/services/realtime"
	"auction-live/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetOutput(io.Discard)
}

// TestApp is the full stack over an in-memory store
type TestApp struct {
	Router   *gin.Engine
	Repo     *repository.MemoryRepo
	Bidding  *bidding.BiddingService
	Users    *auth.UserService
	Registry *registry.Registry
}

// SetupTestApp wires every layer the way main does, minus the scheduler.
func SetupTestApp(t *testing.T) *TestApp {
	t.Helper()

	repo := repository.NewMemoryRepo()
	reg := registry.New()
	dispatcher := notify.NewDispatcher(reg)
	biddingSvc := bidding.NewBiddingService(repo, dispatcher)

	tokens, err := auth.NewTokenMaker("integration-test-secret-key")
	require.NoError(t, err)
	userSvc := auth.NewUserService(repo, tokens, time.Hour)

	rt := realtime.NewHandler(biddingSvc, userSvc, reg, dispatcher, realtime.Options{
		WriteTimeout:            time.Second,
		PongTimeout:             5 * time.Second,
		HandshakeTimeout:        200 * time.Millisecond,
		SendBuffer:              32,
		AllowUnverifiedIdentity: true,
	})

	router := server.SetupRouter(server.Dependencies{
		Bidding:  biddingSvc,
		Users:    userSvc,
		Realtime: rt,
		Registry: reg,
	})

	return &TestApp{Router: router, Repo: repo, Bidding: biddingSvc, Users: userSvc, Registry: reg}
}

// ExecuteRequestAndParse executes an HTTP request on the app's router and
// returns the decoded envelope. A non-empty token is sent as a bearer header.
func ExecuteRequestAndParse(t *testing.T, app *TestApp, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	app.Router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the envelope's data object
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

// RegisterAndLogin creates a user through the API and returns its id and token
func RegisterAndLogin(t *testing.T, app *TestApp, username string) (string, string) {
	t.Helper()

	password := username + "-password"
	resp, w := ExecuteRequestAndParse(t, app, http.MethodPost, "/users", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	userID := Data(t, resp)["user_id"].(string)

	resp, w = ExecuteRequestAndParse(t, app, http.MethodPost, "/users/login", "", map[string]any{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := Data(t, resp)["access_token"].(string)
	require.NotEmpty(t, token)

	return userID, token
}

// CreateAuction opens an auction through the API and returns its id
func CreateAuction(t *testing.T, app *TestApp, token, title string, startingPrice float64) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, app, http.MethodPost, "/auctions", token, map[string]any{
		"title":          title,
		"description":    title + " description",
		"starting_price": startingPrice,
		"end_time":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, "create auction: %v", resp)
	return Data(t, resp)["auction_id"].(string)
}

// PlaceBid posts a bid and returns the response recorder
func PlaceBid(t *testing.T, app *TestApp, token, auctionID string, amount float64) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, app, http.MethodPost, "/bids", token, map[string]any{
		"auction_id": auctionID,
		"amount":     amount,
	})
}

// DialWS opens a websocket against a live test server
func DialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// ReadEvent reads the next JSON message from ws
func ReadEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// WaitForSubscribers blocks until the registry holds n connections
func WaitForSubscribers(t *testing.T, app *TestApp, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return app.Registry.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

// ExpireAuction moves an auction's end time into the past
func ExpireAuction(t *testing.T, app *TestApp, auctionID string) {
	t.Helper()

	ctx := context.Background()
	auction, err := app.Repo.GetAuction(ctx, auctionID)
	require.NoError(t, err)
	auction.EndTime = time.Now().Add(-time.Minute)
	require.NoError(t, app.Repo.SaveAuction(ctx, auction))
}
