package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"convoyhub/config"
	"convoyhub/internal/auth"
	"convoyhub/internal/domain"
	"convoyhub/internal/handler"
	"convoyhub/internal/logger"
	"convoyhub/internal/models"
	"convoyhub/internal/repository"
	"convoyhub/internal/router"
	"convoyhub/internal/service"
	"convoyhub/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// memUsers backs both the identity store and the account store.
type memUsers struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.User
}

func newMemUsers(ids ...uint) *memUsers {
	m := &memUsers{byID: map[uint]*models.User{}}
	for _, id := range ids {
		m.byID[id] = &models.User{ID: id, Username: fmt.Sprintf("user%d", id), Email: fmt.Sprintf("user%d@example.com", id)}
		if id > m.nextID {
			m.nextID = id
		}
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	return m.GetByID(ctx, id)
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m *memUsers) IncrementUserStat(_ context.Context, id uint, field string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch field {
	case domain.StatConvoysCreated:
		u.ConvoysCreated += delta
	case domain.StatConvoysJoined:
		u.ConvoysJoined += delta
	}
	return nil
}

func (m *memUsers) UpdateUserLocation(_ context.Context, id uint, lat, lng float64, heading, speed *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Location = &models.UserLocation{UserID: id, Latitude: lat, Longitude: lng, Heading: heading, Speed: speed, LastUpdatedAt: time.Now()}
	return nil
}

type memNotifications struct {
	mu   sync.Mutex
	rows []models.Notification
}

func (m *memNotifications) CreateBatch(_ context.Context, list []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range list {
		n.ID = uint(len(m.rows) + 1)
		n.CreatedAt = time.Now()
		m.rows = append(m.rows, n)
	}
	return nil
}

func (m *memNotifications) ListByUserID(_ context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotifications) MarkRead(_ context.Context, id, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			now := time.Now()
			m.rows[i].ReadAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memNotifications) types(userID uint) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

type testEnv struct {
	t      *testing.T
	cfg    *config.Config
	users  *memUsers
	notes  *memNotifications
	hub    *ws.Hub
	engine *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, repository.NewMemoryConvoyStore())
}

func newTestEnvWithStore(t *testing.T, store repository.ConvoyStore) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		JWT: config.JWTConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
			Issuer:        "test",
		},
		Convoy: config.ConvoyConfig{LocationBroadcast: true},
	}
	log := logger.NewNop()
	users := newMemUsers(1, 2, 3, 4)
	notes := &memNotifications{}
	hub := ws.NewHub()
	bus := ws.NewLocalBus(hub)

	convoySvc := service.NewConvoyService(store, users, log)
	notifSvc := service.NewNotificationService(notes, log)
	authSvc := service.NewAuthService(&cfg.JWT, users)

	engine := router.New(cfg, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc, log),
		Me:            handler.NewMeHandler(users, log),
		Convoy:        handler.NewConvoyHandler(convoySvc, notifSvc, bus, log, true),
		ConvoyWS:      handler.NewConvoyWSHandler(&cfg.JWT, convoySvc, hub, bus, log, true),
		Notifications: handler.NewNotificationHandler(notifSvc, log),
	})
	return &testEnv{t: t, cfg: cfg, users: users, notes: notes, hub: hub, engine: engine}
}

func (e *testEnv) token(userID uint) string {
	e.t.Helper()
	tok, err := auth.GenerateAccessToken(&e.cfg.JWT, userID, fmt.Sprintf("user%d", userID))
	require.NoError(e.t, err)
	return tok
}

// do sends body as JSON. userID 0 sends no credentials.
func (e *testEnv) do(method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type convoyJSON struct {
	ID         string  `json:"id"`
	OwnerID    uint    `json:"owner_id"`
	IsLive     bool    `json:"is_live"`
	Visibility string  `json:"visibility"`
	JoinCode   *string `json:"join_code"`
	Members    []struct {
		UserID uint  `json:"user_id"`
		Seq    int64 `json:"seq"`
	} `json:"members"`
}

func decodeConvoy(t *testing.T, w *httptest.ResponseRecorder) convoyJSON {
	t.Helper()
	var out struct {
		Convoy convoyJSON `json:"convoy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out.Convoy
}

func center(lat, lng float64) map[string]interface{} {
	return map[string]interface{}{"lat": lat, "lng": lng}
}

// createConvoy creates a convoy owned by ownerID at lat/lng.
func (e *testEnv) createConvoy(ownerID uint, extra map[string]interface{}) convoyJSON {
	e.t.Helper()
	body := map[string]interface{}{"title": "Coast run", "initial_center": center(40, -74)}
	for k, v := range extra {
		body[k] = v
	}
	w := e.do(http.MethodPost, "/api/v1/convoys", ownerID, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeConvoy(e.t, w)
}
