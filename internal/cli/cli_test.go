package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simulive/backend/internal/auth"
	"github.com/simulive/backend/internal/presence"
	"github.com/simulive/backend/internal/realtime"
)

// syncBuffer is written by client callbacks while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, ctx context.Context, out io.Writer, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func TestTokenCommand(t *testing.T) {
	var out bytes.Buffer
	err := execute(t, context.Background(), &out, "token", "owner-1", "--jwt-secret", "s3cret")
	require.NoError(t, err)

	claims, err := auth.NewJWTService("s3cret", 1).Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.UserID)
}

func TestTokenCommandReadsSecretFromEnv(t *testing.T) {
	t.Setenv("CHATWATCH_JWT_SECRET", "from-env")
	var out bytes.Buffer
	require.NoError(t, execute(t, context.Background(), &out, "token", "owner-2"))

	_, err := auth.NewJWTService("from-env", 1).Validate(strings.TrimSpace(out.String()))
	assert.NoError(t, err)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	err := execute(t, context.Background(), io.Discard, "token", "owner-1")
	assert.ErrorContains(t, err, "jwt secret required")
}

func TestSendCommand(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody sendBody
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"m1"}}`))
	}))
	defer ts.Close()

	var out bytes.Buffer
	err := execute(t, context.Background(), &out,
		"send", "w1:s2", "ann", "hello there", "--server", ts.URL, "--token", "tok")
	require.NoError(t, err)

	assert.Equal(t, "/webinars/w1/messages", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, sendBody{UserID: "ann", Message: "hello there", SessionID: "s2"}, gotBody)
	assert.JSONEq(t, `{"id":"m1"}`, strings.TrimSpace(out.String()))
}

func TestSendCommandReportsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"slow down"}`))
	}))
	defer ts.Close()

	err := execute(t, context.Background(), io.Discard, "send", "w1", "ann", "hi", "--server", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "429")
}

type relayToRoom struct{ hub *realtime.Hub }

func (r relayToRoom) Relay(_ context.Context, _ string, payload json.RawMessage) error {
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return err
	}
	room := presence.NormalizeRoomKey(body.RoomID)
	r.hub.EmitToGroup(room, "chat-message-"+room, payload)
	return nil
}

func TestTailCommand(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(nil, nil)
	coord := presence.NewCoordinator(hub, nil)
	srv := realtime.NewServer(hub, coord, relayToRoom{hub: hub}, realtime.Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)
	go srv.Run(ctx)
	r := gin.New()
	srv.Register(r.Group("/socket"))
	ts := httptest.NewServer(r)
	defer ts.Close()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- execute(t, ctx, out, "tail", "w1", "--server", ts.URL) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[w1] viewers=1")
	}, 2*time.Second, 10*time.Millisecond)

	hub.EmitToGroup("w1", "chat-message-w1", json.RawMessage(`{"roomId":"w1","user_id":"Host","message":"welcome","is_admin":true}`))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[w1] Host (host): welcome")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
}
