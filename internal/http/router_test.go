package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catapis/internal/auth"
	"catapis/internal/breeds"
	"catapis/internal/config"
	"catapis/internal/images"
	"catapis/internal/logging"
	"catapis/internal/upstream"
	"catapis/internal/user"
)

// memoryStore is an in-memory UserStore for routing tests
type memoryStore struct {
	users map[string]*user.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*user.User)}
}

func (s *memoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := s.users[user.NormalizeEmail(email)]
	return ok, nil
}

func (s *memoryStore) Create(_ context.Context, email, passwordHash string) (*user.User, error) {
	normalized := user.NormalizeEmail(email)
	if _, ok := s.users[normalized]; ok {
		return nil, user.ErrDuplicateEmail
	}
	u := &user.User{ID: uuid.New(), Email: normalized, PasswordHash: passwordHash, IsActive: true}
	s.users[normalized] = u
	return u, nil
}

func (s *memoryStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := s.users[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

// countingTokenService counts verifications to observe the public-route bypass
type countingTokenService struct {
	inner    auth.TokenService
	verifies atomic.Int32
}

func (c *countingTokenService) CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error) {
	return c.inner.CreateToken(userID, email, duration)
}

func (c *countingTokenService) VerifyToken(tokenStr string) (*auth.TokenClaims, error) {
	c.verifies.Add(1)
	return c.inner.VerifyToken(tokenStr)
}

func newTestRouter(t *testing.T) (http.Handler, *countingTokenService) {
	t.Helper()

	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/breeds":
			w.Write([]byte(`[{"id":"abys","name":"Abyssinian"}]`))
		case "/breeds/search":
			if r.URL.Query().Get("q") == "nope" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[{"id":"abys","name":"Abyssinian"}]`))
		case "/images/search":
			w.Write([]byte(`[{"id":"0XYvRd7oD"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstreamSrv.Close)

	cfg := &config.Config{}
	cfg.Server.Env = "prod" // keep swagger out of routing tests
	cfg.Server.TrustedOrigins = []string{"http://localhost:3000"}

	logger := logging.NewLogger(true)

	jwtService, err := auth.NewJWTService([]byte("test-secret"))
	require.NoError(t, err)
	tokens := &countingTokenService{inner: jwtService}

	authService := auth.NewService(newMemoryStore(), tokens, logger, time.Hour)
	authHandler := auth.NewHandler(authService)
	authMiddleware := auth.NewMiddleware(tokens)

	client := upstream.NewClient(upstream.Options{
		BaseURL:    upstreamSrv.URL,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	}, logger)

	breedsHandler := breeds.NewHandler(breeds.NewService(client, "", logger))
	imagesHandler := images.NewHandler(images.NewService(client, "", logger))

	return NewRouter(cfg, authHandler, authMiddleware, breedsHandler, imagesHandler, logger), tokens
}

func issueToken(t *testing.T, router http.Handler) string {
	t.Helper()

	body := `{"email":"cats@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestPublicRoutesBypassTokenVerification(t *testing.T) {
	router, tokens := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"email":"someone@example.com","password":"password123"}`
	req = httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Neither route consulted the verifier
	assert.EqualValues(t, 0, tokens.verifies.Load())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/breeds", "/breeds/search", "/breeds/abys", "/imagesbybreedid?breed_id=abys"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}

func TestProtectedRoutesWithValidToken(t *testing.T) {
	router, tokens := newTestRouter(t)
	token := issueToken(t, router)

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/breeds", http.StatusOK},
		{"/breeds/search?q=sib&attach_image=1", http.StatusOK},
		{"/breeds/search?attach_image=7", http.StatusBadRequest},
		{"/breeds/abys", http.StatusOK},
		{"/breeds/search?q=nope", http.StatusOK},
		{"/imagesbybreedid?breed_id=abys", http.StatusOK},
		{"/imagesbybreedid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tt.wantCode, rec.Code, "path %s", tt.path)
	}

	assert.EqualValues(t, len(tests), tokens.verifies.Load())
}

func TestBreedNotFoundIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	token := issueToken(t, router)

	req := httptest.NewRequest(http.MethodGet, "/breeds/nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
}
