package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dream-push-backend/config"
	"dream-push-backend/internal/db"
	"dream-push-backend/internal/model"
	"dream-push-backend/internal/notification"
	"dream-push-backend/internal/pusherr"
	"dream-push-backend/internal/store"
)

const testInternalKey = "internal-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	result notification.PassResult
	err    error
	calls  int
}

func (p *fakeProcessor) ProcessOnce(ctx context.Context) (notification.PassResult, error) {
	p.calls++
	return p.result, p.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))
	return testDB
}

func setupRouter(t *testing.T, processor Processor) (*gin.Engine, *gorm.DB) {
	t.Helper()
	testDB := newTestDB(t)
	cfg := config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 60,
		InternalAPIKey:  testInternalKey,
	}
	return NewRouter(cfg, store.NewGormStore(testDB), processor, "BPublicKey", zaptest.NewLogger(t)), testDB
}

func doJSON(r *gin.Engine, method, path string, body any, internal bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if internal {
		req.Header.Set("X-Internal-Key", testInternalKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPutDevice_Validation(t *testing.T) {
	router, _ := setupRouter(t, nil)

	testCases := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"missing token", map[string]any{"user_id": "u", "platform": "ios"}},
		{"missing user", map[string]any{"token": "t", "platform": "ios"}},
		{"unknown platform", map[string]any{"user_id": "u", "token": "t", "platform": "pager"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPut, "/api/devices", tc.body, false)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDevices_RegisterListDeactivate(t *testing.T) {
	router, testDB := setupRouter(t, nil)

	body := map[string]any{
		"user_id":     "user-1",
		"token":       "tok-a",
		"platform":    "Android 14",
		"device_info": map[string]any{"locale": "en-US"},
	}
	w := doJSON(router, http.MethodPut, "/api/devices", body, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first deviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, model.PlatformAndroid, first.Platform)
	assert.Equal(t, "en-US", first.DeviceInfo.Locale)
	assert.False(t, first.DeviceInfo.RegisteredAt.IsZero())

	// Registering the same pair again refreshes it in place.
	body["device_info"] = map[string]any{"locale": "de-DE"}
	w = doJSON(router, http.MethodPut, "/api/devices", body, false)
	require.Equal(t, http.StatusOK, w.Code)
	var second deviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "de-DE", second.DeviceInfo.Locale)

	var count int64
	require.NoError(t, testDB.Model(&model.DeviceToken{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	w = doJSON(router, http.MethodGet, "/api/devices?user_id=user-1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Devices []deviceResponse `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "tok-a", list.Devices[0].Token)

	w = doJSON(router, http.MethodDelete, "/api/devices", map[string]any{"user_id": "user-1", "token": "tok-a"}, false)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/devices?user_id=user-1", nil, false)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Devices)
}

func TestDeleteDevice_ScopedToUser(t *testing.T) {
	router, _ := setupRouter(t, nil)

	for _, userID := range []string{"user-1", "user-2"} {
		w := doJSON(router, http.MethodPut, "/api/devices", map[string]any{
			"user_id":  userID,
			"token":    "shared-token",
			"platform": "ios",
		}, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := doJSON(router, http.MethodDelete, "/api/devices", map[string]any{"user_id": "user-1", "token": "shared-token"}, false)
	require.Equal(t, http.StatusNoContent, w.Code)

	var list struct {
		Devices []deviceResponse `json:"devices"`
	}
	w = doJSON(router, http.MethodGet, "/api/devices?user_id=user-1", nil, false)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Devices)

	w = doJSON(router, http.MethodGet, "/api/devices?user_id=user-2", nil, false)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Devices, 1, "another user's registration of the same token stays active")
	assert.Equal(t, "shared-token", list.Devices[0].Token)
}

func TestGetDevices_RequiresUser(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/api/devices", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/api/vapid_public_key", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublicKey"}`, w.Body.String())

	unconfigured := NewRouter(config.ServerConfig{RateLimitPerSec: 10, RateLimitBurst: 5, CacheTTLSeconds: 60}, nil, nil, "", zaptest.NewLogger(t))
	w = doJSON(unconfigured, http.MethodGet, "/api/vapid_public_key", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInternalRoutes_RequireKey(t *testing.T) {
	router, _ := setupRouter(t, &fakeProcessor{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/internal/users/user-1/tokens"},
		{http.MethodGet, "/api/internal/notifications/pending"},
		{http.MethodPost, "/api/internal/process"},
	} {
		w := doJSON(router, route.method, route.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestGetUserTokens(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodPut, "/api/devices", map[string]any{"user_id": "user-1", "token": "tok-web", "platform": "web"}, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/internal/users/user-1/tokens", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Devices []deviceResponse `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Devices, 1)
	assert.Equal(t, model.PlatformWeb, list.Devices[0].Platform)
}

func TestGetPendingNotifications(t *testing.T) {
	router, testDB := setupRouter(t, nil)
	base := time.Now().UTC().Add(-time.Hour)
	for i, user := range []string{"user-1", "user-2", "user-3"} {
		require.NoError(t, testDB.Create(&model.QueuedNotification{
			UserID:    user,
			Title:     "New comment",
			Body:      "Someone commented on your dream",
			Data:      map[string]any{"type": "comment", "dream_id": "abc"},
			Status:    model.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	w := doJSON(router, http.MethodGet, "/api/internal/notifications/pending?limit=2", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Notifications []pendingResponse `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, "user-1", resp.Notifications[0].UserID)
	assert.Equal(t, "user-2", resp.Notifications[1].UserID)
	assert.Equal(t, "abc", resp.Notifications[0].Data["dream_id"])

	w = doJSON(router, http.MethodGet, "/api/internal/notifications/pending?limit=zero", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostProcess(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		proc := &fakeProcessor{result: notification.PassResult{Processed: 3, Succeeded: 2, Failed: 1}}
		router, _ := setupRouter(t, proc)

		w := doJSON(router, http.MethodPost, "/api/internal/process", nil, true)
		require.Equal(t, http.StatusOK, w.Code)
		var got notification.PassResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, proc.result, got)
		assert.Equal(t, 1, proc.calls)
	})

	t.Run("fatal pass error", func(t *testing.T) {
		proc := &fakeProcessor{err: pusherr.Configuration.Wrap(errors.New("service account is missing private_key"))}
		router, _ := setupRouter(t, proc)

		w := doJSON(router, http.MethodPost, "/api/internal/process", nil, true)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), `"kind":"configuration"`)
	})

	t.Run("no processor", func(t *testing.T) {
		router, _ := setupRouter(t, nil)
		w := doJSON(router, http.MethodPost, "/api/internal/process", nil, true)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
