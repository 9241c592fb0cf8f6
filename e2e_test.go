package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-task-tracker/app/logger"
	"github.com/FACorreiaa/go-task-tracker/app/middleware"
	"github.com/FACorreiaa/go-task-tracker/internal/api/auth"
	"github.com/FACorreiaa/go-task-tracker/internal/api/task"
	"github.com/FACorreiaa/go-task-tracker/internal/api/user"
	"github.com/FACorreiaa/go-task-tracker/internal/events"
	"github.com/FACorreiaa/go-task-tracker/internal/router"
	"github.com/FACorreiaa/go-task-tracker/internal/types"
)

// memAuthRepo is an in-memory AuthRepo so the full HTTP stack can be
// exercised without Postgres.
type memAuthRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*types.User

	// onDelete mimics the transactional task cascade of the real store.
	onDelete func(userID int64)
}

var _ auth.AuthRepo = (*memAuthRepo)(nil)

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{nextID: 1, users: make(map[int64]*types.User)}
}

func (r *memAuthRepo) CreateUser(_ context.Context, params types.RegisterUserParams, passwordHash string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == params.Username || u.Email == params.Email {
			return nil, types.ErrConflict
		}
	}
	u := &types.User{
		ID:           r.nextID,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: passwordHash,
		DateCreated:  time.Now().UTC(),
	}
	r.users[u.ID] = u
	r.nextID++
	clone := *u
	return &clone, nil
}

func (r *memAuthRepo) GetUserByUsernameOrEmail(_ context.Context, identifier string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == identifier || u.Email == identifier {
			clone := *u
			return &clone, nil
		}
	}
	return nil, types.ErrNotFound
}

func (r *memAuthRepo) GetUserByID(_ context.Context, userID int64) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *memAuthRepo) GetUserByToken(_ context.Context, token string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Token != nil && *u.Token == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, types.ErrNotFound
}

func (r *memAuthRepo) UpdateProfile(_ context.Context, userID int64, params types.UpdateProfileParams, passwordHash *string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	if params.FirstName != nil {
		u.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		u.LastName = *params.LastName
	}
	if params.Username != nil {
		u.Username = *params.Username
	}
	if params.Email != nil {
		u.Email = *params.Email
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	clone := *u
	return &clone, nil
}

func (r *memAuthRepo) DeleteUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	if _, ok := r.users[userID]; !ok {
		r.mu.Unlock()
		return types.ErrNotFound
	}
	delete(r.users, userID)
	onDelete := r.onDelete
	r.mu.Unlock()

	if onDelete != nil {
		onDelete(userID)
	}
	return nil
}

func (r *memAuthRepo) IssueToken(_ context.Context, userID int64, candidate string, expiresAt, cutoff time.Time) (string, time.Time, bool, *string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return "", time.Time{}, false, nil, types.ErrNotFound
	}
	if u.Token != nil && u.TokenExpiration != nil && u.TokenExpiration.After(cutoff) {
		return *u.Token, *u.TokenExpiration, false, nil, nil
	}
	prev := u.Token
	u.Token = &candidate
	u.TokenExpiration = &expiresAt
	return candidate, expiresAt, true, prev, nil
}

// expireToken force-ages a user's token so expiry paths can be tested
// without waiting.
func (r *memAuthRepo) expireToken(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok && u.TokenExpiration != nil {
		past := time.Now().Add(-time.Second)
		u.TokenExpiration = &past
	}
}

// memTaskRepo is an in-memory TaskRepo.
type memTaskRepo struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*types.Task
	auth   *memAuthRepo
}

var _ task.TaskRepo = (*memTaskRepo)(nil)

func newMemTaskRepo(authRepo *memAuthRepo) *memTaskRepo {
	return &memTaskRepo{nextID: 1, tasks: make(map[int64]*types.Task), auth: authRepo}
}

func (r *memTaskRepo) withAuthor(t *types.Task) *types.Task {
	clone := *t
	if author, err := r.auth.GetUserByID(context.Background(), t.UserID); err == nil {
		clone.Author = author
	}
	return &clone
}

func (r *memTaskRepo) CreateTask(_ context.Context, userID int64, params types.CreateTaskParams) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &types.Task{
		ID:          r.nextID,
		Title:       params.Title,
		Description: params.Description,
		CreatedAt:   time.Now().UTC(),
		DueDate:     params.DueDate,
		UserID:      userID,
	}
	r.tasks[t.ID] = t
	r.nextID++
	return r.withAuthor(t), nil
}

func (r *memTaskRepo) GetTaskByID(_ context.Context, taskID int64) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return r.withAuthor(t), nil
}

func (r *memTaskRepo) ListTasks(_ context.Context, search string) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Task, 0)
	for _, t := range r.tasks {
		if search == "" || strings.Contains(strings.ToLower(t.Title), strings.ToLower(search)) {
			out = append(out, r.withAuthor(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memTaskRepo) UpdateTask(_ context.Context, taskID int64, params types.UpdateTaskParams) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, types.ErrNotFound
	}
	if params.Title != nil {
		t.Title = *params.Title
	}
	if params.Description != nil {
		t.Description = *params.Description
	}
	if params.Completed != nil {
		t.Completed = *params.Completed
	}
	return r.withAuthor(t), nil
}

func (r *memTaskRepo) DeleteTask(_ context.Context, taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return types.ErrNotFound
	}
	delete(r.tasks, taskID)
	return nil
}

func (r *memTaskRepo) deleteByUser(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tasks {
		if t.UserID == userID {
			delete(r.tasks, id)
		}
	}
}

// E2ETestSuite runs complete user workflows through the real router,
// middleware, handlers and services, with only the storage swapped for the
// in-memory repositories above.
type E2ETestSuite struct {
	suite.Suite
	server     *httptest.Server
	client     *http.Client
	authRepo   *memAuthRepo
	tokenCache *cache.Cache
}

func (s *E2ETestSuite) SetupSuite() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.authRepo = newMemAuthRepo()
	taskRepo := newMemTaskRepo(s.authRepo)
	s.authRepo.onDelete = taskRepo.deleteByUser
	publisher := events.NewNoopPublisher()

	s.tokenCache = cache.New(time.Hour, 2*time.Hour)
	authService := auth.NewAuthService(
		s.authRepo,
		auth.NewBcryptHasher(bcrypt.MinCost),
		auth.NewHexTokenSource(),
		s.tokenCache,
		publisher,
		time.Hour,
		time.Minute,
		log,
	)

	taskService := task.NewTaskService(taskRepo, publisher, log)

	mainRouter := router.SetupRouter(&router.Config{
		AuthHandler:            auth.NewHandlerImpl(authService, log),
		UserHandler:            user.NewHandlerImpl(authService, log),
		TaskHandler:            task.NewHandlerImpl(taskService, log),
		BasicAuthMiddleware:    appMiddleware.BasicAuth(authService, log),
		AuthenticateMiddleware: appMiddleware.Authenticate(authService, log),
	})

	r := chi.NewMux()
	r.Use(chimiddleware.RequestID)
	r.Use(logger.StructuredLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Mount("/", mainRouter)

	s.server = httptest.NewServer(r)
	s.client = &http.Client{Timeout: 10 * time.Second}
}

func (s *E2ETestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *E2ETestSuite) doJSON(method, path, token, body string) (*http.Response, map[string]interface{}) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	var decoded map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (s *E2ETestSuite) registerUser(firstName, username, email, password string) {
	body := fmt.Sprintf(
		`{"firstName": %q, "lastName": "Tester", "username": %q, "email": %q, "password": %q}`,
		firstName, username, email, password)
	resp, decoded := s.doJSON(http.MethodPost, "/users", "", body)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal(username, decoded["username"])
	s.NotContains(decoded, "password")
}

func (s *E2ETestSuite) issueToken(identifier, password string) string {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/token", nil)
	s.Require().NoError(err)
	req.SetBasicAuth(identifier, password)

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var tokenResp types.TokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&tokenResp))
	s.Require().Len(tokenResp.Token, 32, "token should be 128 bits hex-encoded")
	return tokenResp.Token
}

func (s *E2ETestSuite) TestFullWorkflow() {
	// Register two users; a duplicate registration must be rejected.
	s.registerUser("Alice", "alice", "alice@example.com", "secret1")
	s.registerUser("Bob", "bob", "bob@example.com", "secret2")

	resp, decoded := s.doJSON(http.MethodPost, "/users", "",
		`{"firstName": "A", "lastName": "B", "username": "alice", "email": "other@example.com", "password": "x"}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Contains(decoded["error"], "already exists")

	// Basic auth with wrong password must fail.
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/token", nil)
	s.Require().NoError(err)
	req.SetBasicAuth("alice", "wrong")
	badResp, err := s.client.Do(req)
	s.Require().NoError(err)
	badResp.Body.Close()
	s.Equal(http.StatusUnauthorized, badResp.StatusCode)

	// Token issuance; calling twice in quick succession reuses the token.
	aliceToken := s.issueToken("alice", "secret1")
	s.Equal(aliceToken, s.issueToken("alice", "secret1"))
	s.Equal(aliceToken, s.issueToken("alice@example.com", "secret1"), "email works as identifier")
	bobToken := s.issueToken("bob", "secret2")

	// Own profile is visible with a bearer token.
	resp, decoded = s.doJSON(http.MethodGet, "/users/me", aliceToken, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("alice", decoded["username"])

	// Alice creates a task; creation without a token is rejected.
	resp, decoded = s.doJSON(http.MethodPost, "/tasks", aliceToken,
		`{"title": "write report", "description": "quarterly numbers"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	taskID := int64(decoded["id"].(float64))
	s.Equal("alice", decoded["author"].(map[string]interface{})["username"])

	resp, _ = s.doJSON(http.MethodPost, "/tasks", "", `{"title": "x", "description": "y"}`)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Reads are open: no token needed for the list or a single task.
	resp, _ = s.doJSON(http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), "", "")
	s.Equal(http.StatusOK, resp.StatusCode)

	listResp, err := s.client.Get(s.server.URL + "/tasks?search=REPORT")
	s.Require().NoError(err)
	var listed []types.Task
	s.Require().NoError(json.NewDecoder(listResp.Body).Decode(&listed))
	listResp.Body.Close()
	s.Require().Len(listed, 1)
	s.Equal("write report", listed[0].Title)

	// Bob cannot edit or delete Alice's task.
	resp, decoded = s.doJSON(http.MethodPut, fmt.Sprintf("/tasks/%d", taskID), bobToken,
		`{"completed": true}`)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Contains(decoded["error"], "not your task")

	resp, _ = s.doJSON(http.MethodDelete, fmt.Sprintf("/tasks/%d", taskID), bobToken, "")
	s.Equal(http.StatusForbidden, resp.StatusCode)

	// Alice can.
	resp, decoded = s.doJSON(http.MethodPut, fmt.Sprintf("/tasks/%d", taskID), aliceToken,
		`{"completed": true}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, decoded["completed"])

	resp, decoded = s.doJSON(http.MethodDelete, fmt.Sprintf("/tasks/%d", taskID), aliceToken, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("task deleted", decoded["success"])

	// The deleted task is gone for everyone.
	resp, _ = s.doJSON(http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *E2ETestSuite) TestTokenExpiryAndRotation() {
	s.registerUser("Carol", "carol", "carol@example.com", "secret3")
	firstToken := s.issueToken("carol", "secret3")

	// Find carol's ID through her own profile.
	_, me := s.doJSON(http.MethodGet, "/users/me", firstToken, "")
	carolID := int64(me["id"].(float64))

	// Simulate the token aging out. The cache entry's TTL tracks the token
	// expiry, so jumping the clock forward means flushing it as well.
	s.authRepo.expireToken(carolID)
	s.tokenCache.Flush()

	resp, decoded := s.doJSON(http.MethodGet, "/users/me", firstToken, "")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Contains(decoded["error"], "expired")

	secondToken := s.issueToken("carol", "secret3")
	s.NotEqual(firstToken, secondToken)

	// The old token stays dead even after rotation.
	resp, _ = s.doJSON(http.MethodGet, "/users/me", firstToken, "")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.doJSON(http.MethodGet, "/users/me", secondToken, "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *E2ETestSuite) TestAccountDeletionCascades() {
	s.registerUser("Dave", "dave", "dave@example.com", "secret4")
	daveToken := s.issueToken("dave", "secret4")

	resp, decoded := s.doJSON(http.MethodPost, "/tasks", daveToken,
		`{"title": "dave task", "description": "mine"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	taskID := int64(decoded["id"].(float64))

	resp, decoded = s.doJSON(http.MethodDelete, "/users", daveToken, "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("user deleted", decoded["success"])

	// The token dies with the account.
	resp, _ = s.doJSON(http.MethodGet, "/users/me", daveToken, "")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	// So do the owned tasks.
	resp, _ = s.doJSON(http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), "", "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestE2ETestSuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
