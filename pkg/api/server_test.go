package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makar0n1/art-automation/pkg/config"
	"github.com/Makar0n1/art-automation/pkg/gateway"
	"github.com/Makar0n1/art-automation/pkg/health"
	"github.com/Makar0n1/art-automation/pkg/queue"
	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

const testSecret = "test-signing-secret-of-at-least-32-chars"

type testAPI struct {
	srv   *httptest.Server
	store storage.Store
	vault *vault.Vault
	rdb   *redis.Client
	token string
}

// apiResp mirrors the response envelope for assertions.
type apiResp struct {
	Success           bool            `json:"success"`
	Data              json.RawMessage `json:"data"`
	Error             string          `json:"error"`
	Message           string          `json:"message"`
	IsBlocked         bool            `json:"isBlocked"`
	AttemptsRemaining *int            `json:"attemptsRemaining"`
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := queue.New(rdb)

	v, err := vault.New(nil, testSecret, store)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.JWTSecret = testSecret

	tokens := NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	gw := gateway.New(tokens.Verify)
	server := NewServer(cfg, store, v, q, gw, health.New(store, q))

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	// Seed the principal every test acts as.
	hash, err := vault.HashSecret("correct-password")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(&types.User{
		ID:           "u1",
		Email:        "owner@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}))
	token, err := tokens.Issue("u1")
	require.NoError(t, err)

	return &testAPI{srv: srv, store: store, vault: v, rdb: rdb, token: token}
}

// do performs one JSON request with the test principal's bearer token.
func (a *testAPI) do(t *testing.T, method, path string, body any) (int, apiResp) {
	t.Helper()
	return a.doAs(t, a.token, method, path, body)
}

func (a *testAPI) doAs(t *testing.T, token, method, path string, body any) (int, apiResp) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestLogin(t *testing.T) {
	a := newTestAPI(t)

	status, resp := a.doAs(t, "", http.MethodPost, "/api/auth/login",
		map[string]string{"email": "owner@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid email or password", resp.Error)

	// Unknown accounts get the same message as wrong passwords.
	status, resp = a.doAs(t, "", http.MethodPost, "/api/auth/login",
		map[string]string{"email": "nobody@example.com", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid email or password", resp.Error)

	status, resp = a.doAs(t, "", http.MethodPost, "/api/auth/login",
		map[string]string{"email": "owner@example.com", "password": "correct-password"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)

	var data struct {
		Token       string                       `json:"token"`
		User        types.User                   `json:"user"`
		Credentials map[types.Provider]struct {
			Configured bool `json:"configured"`
		} `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "owner@example.com", data.User.Email)
	assert.Len(t, data.Credentials, 3)

	// The issued token is accepted by authenticated routes.
	status, _ = a.doAs(t, data.Token, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	status, resp := a.doAs(t, "", http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing bearer token", resp.Error)

	status, _ = a.doAs(t, "not-a-token", http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Health stays reachable without a token.
	status, _ = a.doAs(t, "", http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestProjectCRUDAndOwnership(t *testing.T) {
	a := newTestAPI(t)

	status, resp := a.do(t, http.MethodPost, "/api/projects",
		map[string]string{"name": "Coffee Blog", "description": "espresso content"})
	require.Equal(t, http.StatusCreated, status)

	var project types.Project
	require.NoError(t, json.Unmarshal(resp.Data, &project))
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "u1", project.UserID)

	status, resp = a.do(t, http.MethodGet, "/api/projects/"+project.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodPut, "/api/projects/"+project.ID,
		map[string]string{"name": "Renamed"})
	require.Equal(t, http.StatusOK, status)

	// An empty name is rejected.
	status, _ = a.do(t, http.MethodPost, "/api/projects", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	// A different principal cannot see or touch the project.
	require.NoError(t, a.store.CreateUser(&types.User{ID: "u2", Email: "other@example.com"}))
	otherToken, err := NewTokenIssuer(testSecret, time.Hour).Issue("u2")
	require.NoError(t, err)

	status, resp = a.doAs(t, otherToken, http.MethodGet, "/api/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "project not found", resp.Error)

	status, _ = a.doAs(t, otherToken, http.MethodDelete, "/api/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodDelete, "/api/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusOK, status)
}

func (a *testAPI) createProject(t *testing.T) string {
	t.Helper()
	status, resp := a.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "P"})
	require.Equal(t, http.StatusCreated, status)
	var project types.Project
	require.NoError(t, json.Unmarshal(resp.Data, &project))
	return project.ID
}

func TestCreateGenerationEnqueues(t *testing.T) {
	a := newTestAPI(t)
	projectID := a.createProject(t)

	status, _ := a.do(t, http.MethodPost, "/api/projects/"+projectID+"/generations",
		map[string]any{"articleType": "informational"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/api/projects/"+projectID+"/generations",
		map[string]any{"mainKeyword": "espresso", "articleType": "poetry"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp := a.do(t, http.MethodPost, "/api/projects/"+projectID+"/generations",
		map[string]any{
			"mainKeyword":   "espresso",
			"internalLinks": []map[string]string{{"url": "https://shop.example"}},
		})
	require.Equal(t, http.StatusCreated, status)

	var gen types.Generation
	require.NoError(t, json.Unmarshal(resp.Data, &gen))
	assert.Equal(t, types.StatusQueued, gen.Status)
	assert.Equal(t, "en", gen.Language)
	assert.Equal(t, "us", gen.Region)
	assert.Equal(t, types.ArticleInformational, gen.ArticleType)
	require.Len(t, gen.InternalLinks, 1)
	assert.Equal(t, types.LinkPositionAny, gen.InternalLinks[0].Position)
	assert.Equal(t, types.LinkDisplayInline, gen.InternalLinks[0].DisplayType)

	// The job landed on the queue.
	ctx := context.Background()
	raw, err := a.rdb.LPop(ctx, "queue:generations:waiting").Result()
	require.NoError(t, err)
	var msg types.QueueMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, gen.ID, msg.GenerationID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Empty(t, msg.ContinueFrom)
}

func TestContinueGeneration(t *testing.T) {
	a := newTestAPI(t)

	require.NoError(t, a.store.CreateGeneration(&types.Generation{
		ID: "g-paused", UserID: "u1", Status: types.StatusPausedAfterSerp,
	}))
	require.NoError(t, a.store.CreateGeneration(&types.Generation{
		ID: "g-running", UserID: "u1", Status: types.StatusWritingArticle,
	}))

	status, resp := a.do(t, http.MethodPost, "/api/generations/g-running/continue", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "generation is not paused", resp.Error)

	status, _ = a.do(t, http.MethodPost, "/api/generations/g-paused/continue", nil)
	require.Equal(t, http.StatusOK, status)

	raw, err := a.rdb.LPop(context.Background(), "queue:generations:waiting").Result()
	require.NoError(t, err)
	var msg types.QueueMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "g-paused", msg.GenerationID)
	assert.Equal(t, types.StatusPausedAfterSerp, msg.ContinueFrom)

	// Resuming flips the status immediately, so a repeated continue cannot
	// enqueue the same job again.
	gen, err := a.store.GetGeneration("g-paused")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, gen.Status)

	status, resp = a.do(t, http.MethodPost, "/api/generations/g-paused/continue", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "generation is not paused", resp.Error)

	waiting, err := a.rdb.LLen(context.Background(), "queue:generations:waiting").Result()
	require.NoError(t, err)
	assert.Zero(t, waiting)
}

func TestGenerationOwnership(t *testing.T) {
	a := newTestAPI(t)

	require.NoError(t, a.store.CreateGeneration(&types.Generation{
		ID: "g1", UserID: "u1", Status: types.StatusCompleted,
	}))
	require.NoError(t, a.store.CreateUser(&types.User{ID: "u2", Email: "other@example.com"}))
	otherToken, err := NewTokenIssuer(testSecret, time.Hour).Issue("u2")
	require.NoError(t, err)

	// Foreign generations answer exactly like missing ones.
	status, resp := a.doAs(t, otherToken, http.MethodGet, "/api/generations/g1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "generation not found", resp.Error)

	status2, resp2 := a.doAs(t, otherToken, http.MethodGet, "/api/generations/does-not-exist", nil)
	assert.Equal(t, status, status2)
	assert.Equal(t, resp.Error, resp2.Error)
}

func TestVerifyPinBlocking(t *testing.T) {
	a := newTestAPI(t)

	pinHash, err := vault.HashSecret("1234")
	require.NoError(t, err)
	user, err := a.store.GetUser("u1")
	require.NoError(t, err)
	user.PinHash = pinHash
	require.NoError(t, a.store.UpdateUser(user))

	for i := 1; i <= 4; i++ {
		status, resp := a.do(t, http.MethodPost, "/api/settings/api-keys/verify-pin",
			map[string]string{"pin": "0000"})
		assert.Equal(t, http.StatusForbidden, status)
		assert.False(t, resp.IsBlocked)
		require.NotNil(t, resp.AttemptsRemaining)
		assert.Equal(t, 5-i, *resp.AttemptsRemaining)
	}

	status, resp := a.do(t, http.MethodPost, "/api/settings/api-keys/verify-pin",
		map[string]string{"pin": "0000"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.True(t, resp.IsBlocked)

	// Blocked stays blocked even with the correct PIN.
	status, resp = a.do(t, http.MethodPost, "/api/settings/api-keys/verify-pin",
		map[string]string{"pin": "1234"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.True(t, resp.IsBlocked)
}

func TestSetAndListAPIKeys(t *testing.T) {
	a := newTestAPI(t)

	status, resp := a.do(t, http.MethodPut, "/api/settings/api-keys/firecrawl",
		map[string]string{"key": "fc-0123456789abcdef0123"})
	require.Equal(t, http.StatusOK, status)

	var set struct {
		Provider types.Provider `json:"provider"`
		Masked   string         `json:"masked"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &set))
	assert.Equal(t, types.ProviderFirecrawl, set.Provider)
	wantMasked := "fc-0" + strings.Repeat("*", 15) + "0123"
	assert.Equal(t, wantMasked, set.Masked)

	status, _ = a.do(t, http.MethodPut, "/api/settings/api-keys/unknown",
		map[string]string{"key": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	// The stored value is the encrypted envelope, not the plaintext.
	user, err := a.store.GetUser("u1")
	require.NoError(t, err)
	stored := user.Credentials[types.ProviderFirecrawl].Value
	assert.NotEqual(t, "fc-0123456789abcdef0123", stored)
	plain, err := a.vault.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "fc-0123456789abcdef0123", plain)

	status, resp = a.do(t, http.MethodGet, "/api/settings/api-keys", nil)
	require.Equal(t, http.StatusOK, status)
	var listed map[types.Provider]struct {
		Configured bool   `json:"configured"`
		Masked     string `json:"masked"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	assert.True(t, listed[types.ProviderFirecrawl].Configured)
	assert.Equal(t, wantMasked, listed[types.ProviderFirecrawl].Masked)
	assert.False(t, listed[types.ProviderOpenRouter].Configured)
}

func TestListGenerationsPagination(t *testing.T) {
	a := newTestAPI(t)

	base := time.Now().UTC()
	for i := 0; i < 25; i++ {
		require.NoError(t, a.store.CreateGeneration(&types.Generation{
			ID:        fmt.Sprintf("g-%02d", i),
			UserID:    "u1",
			Status:    types.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	status, resp := a.do(t, http.MethodGet, "/api/generations?page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Generations []types.Generation `json:"generations"`
		Total       int                `json:"total"`
		Page        int                `json:"page"`
		Limit       int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 25, data.Total)
	assert.Equal(t, 2, data.Page)
	assert.Len(t, data.Generations, 10)
	// Newest first; page 2 starts at the 11th newest.
	assert.Equal(t, "g-14", data.Generations[0].ID)
}
