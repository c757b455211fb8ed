package webinars

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simulive/backend/internal/models"
	"github.com/simulive/backend/internal/presence"
)

type fakeFinder map[string]*models.Webinar

func (f fakeFinder) GetByID(_ context.Context, id string) (*models.Webinar, error) {
	if w, ok := f[id]; ok {
		return w, nil
	}
	return nil, fmt.Errorf("webinar %s: %w", id, models.ErrNotFound)
}

type nopGroups struct{}

func (nopGroups) AddToGroup(string, string) bool { return true }
func (nopGroups) RemoveFromGroup(string, string) {}
func (nopGroups) EmitToGroup(string, string, interface{}) {}
func (nopGroups) EmitTo(string, string, interface{}) {}

func setup(t *testing.T) (*gin.Engine, *presence.Coordinator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	coord := presence.NewCoordinator(nopGroups{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})

	h := NewHandler(fakeFinder{"w1": {ID: "w1", Title: "Launch", UserID: "owner-1"}}, coord)
	r := gin.New()
	r.GET("/webinars/:id", h.Get)
	r.GET("/webinars/:id/viewers", h.Viewers)
	r.GET("/realtime/rooms", h.Rooms)
	return r, coord
}

func get(r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestViewers(t *testing.T) {
	r, coord := setup(t)
	ctx := context.Background()
	require.NoError(t, coord.Join(ctx, "c1", "w1", "10.0.0.1"))
	require.NoError(t, coord.Join(ctx, "c2", "w1:s1", "10.0.0.1"))
	require.NoError(t, coord.Join(ctx, "c3", "w1", "10.0.0.2"))

	w, body := get(r, "/webinars/w1:s1/viewers")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "w1", data["webinar_id"])
	assert.Equal(t, float64(2), data["viewers"])

	w, body = get(r, "/realtime/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"w1": float64(2)}, body["data"].(map[string]interface{})["rooms"])
}

func TestGet(t *testing.T) {
	r, _ := setup(t)

	w, body := get(r, "/webinars/w1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Launch", body["data"].(map[string]interface{})["title"])

	w, body = get(r, "/webinars/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
}
