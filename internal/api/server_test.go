package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/auth"
	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/hub"
	"github.com/yourorg/support-chat/internal/media"
)

type stubRepo struct {
	lastConversation string
	history          []chat.Message
}

func (r *stubRepo) InsertMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	return m, nil
}

func (r *stubRepo) History(ctx context.Context, conversationID string, limit int64) ([]chat.Message, error) {
	r.lastConversation = conversationID
	return r.history, nil
}

func (r *stubRepo) MarkDelivered(ctx context.Context, ids []string) error { return nil }

func (r *stubRepo) UndeliveredFor(ctx context.Context, receiverID string) (map[string][]string, error) {
	return nil, nil
}

func (r *stubRepo) MarkSeen(ctx context.Context, readerID, partnerID string) (bool, error) {
	return false, nil
}

func testToken(t *testing.T, secret, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHistoryEndpoint(t *testing.T) {
	verifier, err := auth.NewVerifierHS256("sekret")
	require.NoError(t, err)
	log := zap.NewNop().Sugar()

	repo := &stubRepo{history: []chat.Message{
		{ID: "m-1", SenderID: "u1", ReceiverID: "a1", Body: "hi", Status: chat.StatusSeen},
	}}
	wsHandler := hub.NewHandler(hub.New(), repo, nil, nil, log, hub.Options{})
	app := New(verifier, wsHandler, media.NewHandler(nil), repo, log)

	req := httptest.NewRequest("GET", "/v1/conversations/a1/messages?limit=50", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "sekret", "u1"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "a1:u1", repo.lastConversation)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded struct {
		Status string         `json:"status"`
		Data   []chat.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "success", decoded.Status)
	require.Len(t, decoded.Data, 1)
	assert.Equal(t, "m-1", decoded.Data[0].ID)
}

func TestHistoryEndpoint_RequiresToken(t *testing.T) {
	verifier, err := auth.NewVerifierHS256("sekret")
	require.NoError(t, err)
	log := zap.NewNop().Sugar()

	repo := &stubRepo{}
	wsHandler := hub.NewHandler(hub.New(), repo, nil, nil, log, hub.Options{})
	app := New(verifier, wsHandler, media.NewHandler(nil), repo, log)

	req := httptest.NewRequest("GET", "/v1/conversations/a1/messages", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/conversations/a1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "wrong-secret", "u1"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestWSRouteRequiresUpgrade(t *testing.T) {
	verifier, err := auth.NewVerifierHS256("sekret")
	require.NoError(t, err)
	log := zap.NewNop().Sugar()

	repo := &stubRepo{}
	wsHandler := hub.NewHandler(hub.New(), repo, nil, nil, log, hub.Options{})
	app := New(verifier, wsHandler, media.NewHandler(nil), repo, log)

	// a plain GET with a valid token is still not a websocket handshake
	req := httptest.NewRequest("GET", "/v1/ws", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "sekret", "u1"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	verifier, err := auth.NewVerifierHS256("sekret")
	require.NoError(t, err)
	log := zap.NewNop().Sugar()

	repo := &stubRepo{}
	wsHandler := hub.NewHandler(hub.New(), repo, nil, nil, log, hub.Options{})
	app := New(verifier, wsHandler, media.NewHandler(nil), repo, log)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
