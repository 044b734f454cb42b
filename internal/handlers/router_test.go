package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/app"
	"github.com/sekolahku/backend/internal/database/testutil"
	"github.com/sekolahku/backend/internal/models"
)

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := &app.Config{
		Server:     app.ServerConfig{Port: 8000},
		Monitoring: app.MonitoringConfig{Health: app.HealthConfig{Enabled: true}},
	}

	router, err := NewRouter(db, cfg)
	require.NoError(t, err)
	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decodeData(t, w)["status"])
}

func TestRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(nil, &app.Config{})
	require.Error(t, err)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	_, err = NewRouter(db, nil)
	require.Error(t, err)
}

func TestAssignEndpointFlow(t *testing.T) {
	router, db := newTestServer(t)

	user := models.User{Name: "Alice", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	note := models.Notification{Title: "Homework due", Type: models.TypeAssignment}
	require.NoError(t, db.Create(&note).Error)

	w := doJSON(t, router, http.MethodPost, "/api/assignments", gin.H{
		"notification_id": note.ID,
		"user_ids":        []string{user.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	require.EqualValues(t, 1, data["assigned_count"])
	require.EqualValues(t, 0, data["skipped_count"])

	// repeating the call skips the existing pair
	w = doJSON(t, router, http.MethodPost, "/api/assignments", gin.H{
		"notification_id": note.ID,
		"user_ids":        []string{user.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data = decodeData(t, w)
	require.EqualValues(t, 0, data["assigned_count"])
	require.EqualValues(t, 1, data["skipped_count"])
}

func TestAssignEndpointMissingNotification(t *testing.T) {
	router, db := newTestServer(t)

	user := models.User{Name: "Alice", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	w := doJSON(t, router, http.MethodPost, "/api/assignments", gin.H{
		"notification_id": "ghost",
		"user_ids":        []string{user.ID},
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "ghost")
}

func TestAssignEndpointValidation(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/assignments", gin.H{
		"notification_id": "anything",
		"user_ids":        []string{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "user_ids")
}

func TestMarkReadAndFeedEndpoints(t *testing.T) {
	router, db := newTestServer(t)

	user := models.User{Name: "Alice", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	note := models.Notification{Title: "Sports day", Type: models.TypeGeneral}
	require.NoError(t, db.Create(&note).Error)
	require.NoError(t, db.Create(&models.UserNotification{UserID: user.ID, NotificationID: note.ID}).Error)

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/users/%s/notifications/read", user.ID), gin.H{
		"notification_ids": []string{note.ID},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.EqualValues(t, 1, data["marked_read_count"])
	require.EqualValues(t, 0, data["already_read_count"])

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/users/%s/notifications?unread_only=true", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Empty(t, envelope.Data)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/users/%s/notifications/stats", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)
	require.EqualValues(t, 1, stats["total_notifications"])
	require.EqualValues(t, 0, stats["unread_count"])
}

func TestCatalogEndpoints(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/notifications", gin.H{
		"title": "Library opening",
		"type":  "announcement",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeData(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	// nominal is reserved for payment notifications
	w = doJSON(t, router, http.MethodPost, "/api/notifications", gin.H{
		"title":   "General with money",
		"type":    "general",
		"nominal": 1000,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/notifications?type=announcement", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/notifications/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/notifications/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/notifications/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUserEndpoints(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/users", gin.H{
		"name": "Siti Rahma",
		"role": "student",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeData(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	w = doJSON(t, router, http.MethodPost, "/api/users", gin.H{
		"name": "Bad Role",
		"role": "principal",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/users?role=student", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/users/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRecipientsEndpoint(t *testing.T) {
	router, db := newTestServer(t)

	user := models.User{Name: "Alice", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	note := models.Notification{Title: "Tuition reminder", Type: models.TypePayment}
	require.NoError(t, db.Create(&note).Error)
	require.NoError(t, db.Create(&models.UserNotification{UserID: user.ID, NotificationID: note.ID}).Error)

	w := doJSON(t, router, http.MethodGet, "/api/notifications/"+note.ID+"/recipients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Alice")

	w = doJSON(t, router, http.MethodGet, "/api/notifications/ghost/recipients", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
