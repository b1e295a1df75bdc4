package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pawfinder/apiserver/internal/services"
	"github.com/pawfinder/apiserver/internal/store"
	"github.com/pawfinder/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// fakeUserRepo is an in-memory UserRepository for handler tests.
type fakeUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := f.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLoginAt = &at
	f.users[id] = user
	return nil
}

func newAuthRouter(t *testing.T) (*chi.Mux, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	userService := services.NewUserService(repo)
	handler := NewAuthHandler(userService, testSecret, time.Hour)
	authMiddleware := RequireAuth(userService, testSecret)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, handler, authMiddleware)
	})
	return router, repo
}

func seedUser(t *testing.T, repo *fakeUserRepo, username, password string, active bool) types.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := repo.Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		Role:         types.RoleUser,
		PasswordHash: string(hashed),
		IsActive:     active,
	})
	require.NoError(t, err)
	return user
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterReturnsTokenAndUser(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", RegisterRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "hunter22",
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool         `json:"success"`
		Data    AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.Token)
	assert.Equal(t, "ada", resp.Data.User.Username)
	assert.Equal(t, types.RoleUser, resp.Data.User.Role)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	router, repo := newAuthRouter(t)
	seedUser(t, repo, "ada", "hunter22", true)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", RegisterRequest{
		Username: "ada",
		Email:    "other@example.com",
		Password: "hunter22",
	}, "")

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestRegisterMissingFields(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", RegisterRequest{
		Username: "  ",
		Email:    "ada@example.com",
		Password: "hunter22",
	}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFlow(t *testing.T) {
	router, repo := newAuthRouter(t)
	seedUser(t, repo, "ada", "hunter22", true)

	t.Run("valid credentials", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", LoginRequest{
			Username: "ada", Password: "hunter22",
		}, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data AuthResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Data.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", LoginRequest{
			Username: "ada", Password: "wrong",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/auth/login", LoginRequest{
			Username: "nobody", Password: "hunter22",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("records last login", func(t *testing.T) {
		user, err := repo.GetByUsername(context.Background(), "ada")
		require.NoError(t, err)
		assert.NotNil(t, user.LastLoginAt)
	})
}

func TestLoginDeactivatedAccount(t *testing.T) {
	router, repo := newAuthRouter(t)
	seedUser(t, repo, "gone", "hunter22", false)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", LoginRequest{
		Username: "gone", Password: "hunter22",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	router, repo := newAuthRouter(t)
	user := seedUser(t, repo, "ada", "hunter22", true)

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, err := issueToken(user.ID, []byte("other-secret"), time.Hour)
		require.NoError(t, err)
		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
		require.NoError(t, err)
		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, token)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data types.User `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, user.ID, resp.Data.ID)
	})

	t.Run("deactivated account", func(t *testing.T) {
		deactivated := seedUser(t, repo, "gone", "hunter22", false)
		token, err := issueToken(deactivated.ID, []byte(testSecret), time.Hour)
		require.NoError(t, err)
		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdateProfile(t *testing.T) {
	router, repo := newAuthRouter(t)
	user := seedUser(t, repo, "ada", "hunter22", true)
	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPut, "/api/auth/profile", types.Profile{
		FirstName: "Ada",
		Location:  "London",
	}, token)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Ada", resp.Data.Profile.FirstName)
	assert.Equal(t, "London", resp.Data.Profile.Location)
}

func TestExpiredTokenRejected(t *testing.T) {
	router, repo := newAuthRouter(t)
	user := seedUser(t, repo, "ada", "hunter22", true)
	token, err := issueToken(user.ID, []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
