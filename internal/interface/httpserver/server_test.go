package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ninenotes/internal/core/apperr"
	"github.com/jinford/ninenotes/internal/core/chat"
	"github.com/jinford/ninenotes/internal/core/note"
	"github.com/jinford/ninenotes/internal/core/user"
	"github.com/jinford/ninenotes/internal/infra/auth"
	"github.com/jinford/ninenotes/internal/infra/ipinfo"
	"github.com/jinford/ninenotes/internal/platform/container"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memNoteRepo はテスト用のインメモリノートストア
type memNoteRepo struct {
	mu    sync.Mutex
	notes map[uuid.UUID]*note.Note
}

func newMemNoteRepo() *memNoteRepo {
	return &memNoteRepo{notes: make(map[uuid.UUID]*note.Note)}
}

func (r *memNoteRepo) Create(ctx context.Context, n *note.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
	return nil
}

func (r *memNoteRepo) Update(ctx context.Context, n *note.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
	return nil
}

func (r *memNoteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, id)
	return nil
}

func (r *memNoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, fmt.Errorf("%w: note not found", apperr.ErrNotFound)
	}
	return n, nil
}

func (r *memNoteRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []*note.Note
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			owned = append(owned, n)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})
	if offset >= len(owned) {
		return nil, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}
	return owned, nil
}

func (r *memNoteRepo) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (r *memNoteRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*note.Note
	for _, id := range ids {
		if n, ok := r.notes[id]; ok {
			found = append(found, n)
		}
	}
	return found, nil
}

// memUserRepo はテスト用のインメモリユーザーストア
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*user.User)}
}

func (r *memUserRepo) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email already registered", apperr.ErrValidation)
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user not found", apperr.ErrNotFound)
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user not found", apperr.ErrNotFound)
	}
	return u, nil
}

func (r *memUserRepo) UpdateProfile(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

type memIndex struct{}

func (memIndex) Upsert(ctx context.Context, noteID uuid.UUID, vector []float32, ownerID uuid.UUID) error {
	return nil
}

func (memIndex) Query(ctx context.Context, vector []float32, topK int, ownerID uuid.UUID) ([]*note.Match, error) {
	return nil, nil
}

func (memIndex) Delete(ctx context.Context, noteID uuid.UUID) error { return nil }

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type memBlobStore struct{}

func (memBlobStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	return "https://blobs.example.com/" + key, nil
}

func (memBlobStore) Delete(ctx context.Context, key string) error { return nil }

type fixedCompleter struct {
	tokens []string
}

func (c *fixedCompleter) StreamCompletion(ctx context.Context, req chat.CompletionRequest) (chat.TokenStream, error) {
	return &fixedStream{tokens: c.tokens}, nil
}

type fixedStream struct {
	tokens  []string
	pos     int
	current string
}

func (s *fixedStream) Next() bool {
	if s.pos >= len(s.tokens) {
		return false
	}
	s.current = s.tokens[s.pos]
	s.pos++
	return true
}

func (s *fixedStream) Current() string { return s.current }
func (s *fixedStream) Err() error      { return nil }
func (s *fixedStream) Close() error    { return nil }

// failingCompleter はトークンを流した後に生成が失敗するストリームを返す
type failingCompleter struct {
	tokens []string
	err    error
}

func (c *failingCompleter) StreamCompletion(ctx context.Context, req chat.CompletionRequest) (chat.TokenStream, error) {
	return &failingStream{tokens: c.tokens, err: c.err}, nil
}

type failingStream struct {
	tokens  []string
	pos     int
	current string
	err     error
}

func (s *failingStream) Next() bool {
	if s.pos >= len(s.tokens) {
		return false
	}
	s.current = s.tokens[s.pos]
	s.pos++
	return true
}

func (s *failingStream) Current() string { return s.current }
func (s *failingStream) Err() error      { return s.err }
func (s *failingStream) Close() error    { return nil }

// syncRunner はインデックス同期タスクを同期実行する
func syncRunner(task func(ctx context.Context)) {
	task(context.Background())
}

type testEnv struct {
	server   *Server
	userRepo *memUserRepo
	noteRepo *memNoteRepo
	issuer   *auth.JWTIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCompleter(t, &fixedCompleter{tokens: []string{"Hello", ", ", "world"}})
}

func newTestEnvWithCompleter(t *testing.T, completer chat.Completer) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	noteRepo := newMemNoteRepo()
	userRepo := newMemUserRepo()
	index := memIndex{}
	embedder := fixedEmbedder{}

	issuer, err := auth.NewJWTIssuer([]byte("test-secret"), "ninenotes", time.Hour)
	require.NoError(t, err)

	noteService := note.NewService(noteRepo, index, embedder,
		note.WithServiceLogger(logger),
		note.WithTaskRunner(syncRunner),
	)
	chatService := chat.NewService(noteRepo, index, embedder, completer,
		chat.WithServiceLogger(logger),
	)
	userService := user.NewService(userRepo, issuer, memBlobStore{}, noteService,
		user.WithServiceLogger(logger),
	)

	cont := &container.ServiceContainer{
		NoteService: noteService,
		ChatService: chatService,
		UserService: userService,
		Location:    ipinfo.NewClient("test-token"),
		TokenIssuer: issuer,
	}

	return &testEnv{
		server:   NewServer(cont, WithServerLogger(logger)),
		userRepo: userRepo,
		noteRepo: noteRepo,
		issuer:   issuer,
	}
}

// signUp はテスト用のユーザーを作成してトークンを返す
func (env *testEnv) signUp(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": "password123"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-up", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session struct {
		User struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.User.ID, session.Token
}

func (env *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/notes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/notes", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUp_ReturnsSessionAndSeedsWelcomeNote(t *testing.T) {
	env := newTestEnv(t)

	userID, token := env.signUp(t, "user@example.com")
	assert.NotEmpty(t, token)

	// サインアップ直後からサンプルノートが1件見える
	rec := env.do(t, http.MethodGet, "/api/notes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result note.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Notes, 1)
	assert.Equal(t, userID, result.Notes[0].OwnerID)
	assert.Contains(t, result.Notes[0].Title, "Quantum Computing")
}

func TestSignUp_RejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/sign-up", "", map[string]string{
		"email":    "user@example.com",
		"password": "password456",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignIn_RejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/sign-in", "", map[string]string{
		"email":    "user@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotes_CreateListUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	// 作成
	rec := env.do(t, http.MethodPost, "/api/notes", token, map[string]string{
		"title":   "Shopping",
		"content": "milk, eggs",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created note.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Shopping", created.Title)

	// 更新
	rec = env.do(t, http.MethodPut, "/api/notes", token, map[string]string{
		"id":      created.ID.String(),
		"title":   "Groceries",
		"content": "milk, eggs, bread",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated note.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Groceries", updated.Title)

	// 削除
	rec = env.do(t, http.MethodDelete, "/api/notes", token, map[string]string{
		"id": created.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// 削除後の一覧にはサンプルノートのみ残る
	rec = env.do(t, http.MethodGet, "/api/notes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result note.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalCount)
}

func TestNotes_CreateRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/notes", token, map[string]string{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotes_UpdateByOtherOwnerIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.signUp(t, "owner@example.com")
	_, otherToken := env.signUp(t, "other@example.com")

	rec := env.do(t, http.MethodPost, "/api/notes", ownerToken, map[string]string{
		"title": "Private",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created note.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPut, "/api/notes", otherToken, map[string]string{
		"id":    created.ID.String(),
		"title": "Hijacked",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotes_DeleteMissingNoteReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodDelete, "/api/notes", token, map[string]string{
		"id": uuid.NewString(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_StreamsCompletionTokens(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "what do my notes say?"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, world", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestChat_AbortsConnectionOnMidStreamFailure(t *testing.T) {
	env := newTestEnvWithCompleter(t, &failingCompleter{
		tokens: []string{"partial ", "answer"},
		err:    errors.New("generation interrupted"),
	})
	_, token := env.signUp(t, "user@example.com")

	// 接続の打ち切りを観測するため実サーバー経由でリクエストする
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	payload := `{"messages":[{"role":"user","content":"what do my notes say?"}]}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 送信済みトークンは届くが、ボディは正常終了として読み切れない
	body, readErr := io.ReadAll(resp.Body)
	assert.Equal(t, "partial answer", string(body))
	require.Error(t, readErr)
}

func TestChat_RejectsEmptyConversation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"messages": []map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestProfile_GetAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "user@example.com", profile.Email)
	assert.Nil(t, profile.Name)

	rec = env.do(t, http.MethodPost, "/api/profile", token, map[string]string{
		"name": "Alex",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	require.NotNil(t, profile.Name)
	assert.Equal(t, "Alex", *profile.Name)
}

func TestProfile_UploadAvatar(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("avatar", "face.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var profile user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	require.NotNil(t, profile.AvatarURL)
	assert.Contains(t, *profile.AvatarURL, "avatars/")
}

func TestProfile_UploadAvatarRequiresFile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/api/profile/avatar", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
