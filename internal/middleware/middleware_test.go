package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simulive/backend/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func TestOriginPolicy(t *testing.T) {
	prod := NewOriginPolicy(true, []string{"https://a.example/", " https://b.example"})
	assert.True(t, prod.Allowed("https://a.example"))
	assert.True(t, prod.Allowed("https://b.example"))
	assert.False(t, prod.Allowed("https://evil.example"))

	dev := NewOriginPolicy(false, []string{"https://a.example"})
	assert.True(t, dev.Allowed("http://localhost:5173"))

	assert.True(t, NewOriginPolicy(true, []string{"*"}).Allowed("https://any.example"))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(NewOriginPolicy(true, []string{"https://a.example"})))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://a.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://a.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOptionalJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.Use(OptionalJWT(svc))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	tok, err := svc.Generate("owner-1", "")
	require.NoError(t, err)
	w = do("Bearer " + tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Basic abc").Code)
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core), "/socket/poll"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/socket/poll", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/socket/poll", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
