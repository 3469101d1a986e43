package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"catapis/internal/user"
)

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegisterHandlerCreated(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	userID := uuid.New()
	store.On("ExistsByEmail", mock.Anything, "new@example.com").Return(false, nil)
	store.On("Create", mock.Anything, "new@example.com", mock.AnythingOfType("string")).
		Return(&user.User{ID: userID, Email: "new@example.com", IsActive: true}, nil)

	rec := postJSON(t, h.Register, `{"email":"new@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID.String(), resp.User.ID)
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.True(t, resp.User.IsActive)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotContains(t, rec.Body.String(), "password123")
}

func TestRegisterHandlerDuplicateEmail(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	store.On("ExistsByEmail", mock.Anything, "taken@example.com").Return(true, nil)

	rec := postJSON(t, h.Register, `{"email":"taken@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already registered")
}

func TestRegisterHandlerValidationBody(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	rec := postJSON(t, h.Register, `{"email":"a@b.com","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		StatusCode int      `json:"statusCode"`
		Message    []string `json:"message"`
		Error      string   `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.StatusCode)
	assert.Equal(t, []string{"password must be at least 8 characters"}, body.Message)
	assert.Equal(t, "Bad Request", body.Error)
}

func TestRegisterHandlerMalformedBody(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	rec := postJSON(t, h.Register, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterHandlerMasksInternalError(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	store.On("ExistsByEmail", mock.Anything, "new@example.com").Return(false, assert.AnError)

	rec := postJSON(t, h.Register, `{"email":"new@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not register")
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestLoginHandlerOK(t *testing.T) {
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	store.On("GetByEmail", mock.Anything, "known@example.com").
		Return(&user.User{ID: uuid.New(), Email: "known@example.com", PasswordHash: string(hash), IsActive: true}, nil)

	rec := postJSON(t, h.Login, `{"email":"known@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
}

func TestLoginHandlerInvalidCredentialsBodiesMatch(t *testing.T) {
	// Unknown email
	store := new(MockUserStore)
	h := NewHandler(newTestService(t, store))
	store.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, user.ErrNotFound)
	unknownRec := postJSON(t, h.Login, `{"email":"ghost@example.com","password":"password123"}`)

	// Wrong password
	store2 := new(MockUserStore)
	h2 := NewHandler(newTestService(t, store2))
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	require.NoError(t, err)
	store2.On("GetByEmail", mock.Anything, "known@example.com").
		Return(&user.User{ID: uuid.New(), Email: "known@example.com", PasswordHash: string(hash), IsActive: true}, nil)
	wrongRec := postJSON(t, h2.Login, `{"email":"known@example.com","password":"password123"}`)

	assert.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	assert.JSONEq(t, unknownRec.Body.String(), wrongRec.Body.String())
}
