package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/config"
	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/Santy1422/barcos-sub007/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() config.CaptureConfig {
	return config.CaptureConfig{
		RequestBodyLimitBytes:  10000,
		ResponseBodyLimitBytes: 5000,
		PreviewBytes:           1000,
		MaxDepth:               10,
	}
}

// newTestRouter spins up the logs surface backed by the in-memory
// buffer only (no durable store).
func newTestRouter(t *testing.T) (*gin.Engine, *service.TxLogService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := service.NewTxLogService(t.TempDir(), nil, 14*24*time.Hour)
	require.NoError(t, err)

	h := NewLogsHandler(svc, testConfig())
	r := gin.New()
	logs := r.Group("/logs")
	logs.POST("/frontend", h.IngestFrontend)
	logs.GET("", h.List)
	logs.GET("/stats", h.Stats)
	return r, svc
}

func postJSON(r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestIngestFrontendMissingErrorMessage(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/logs/frontend", map[string]interface{}{"url": "/x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
	require.Contains(t, resp["message"], "error.message")
}

func TestIngestFrontendMissingURL(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/logs/frontend", map[string]interface{}{
		"error": map[string]interface{}{"message": "boom"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp["message"], "url")
}

func TestIngestFrontendSuccess(t *testing.T) {
	r, svc := newTestRouter(t)

	w := postJSON(r, "/logs/frontend", map[string]interface{}{
		"url":   "/invoices/5f8d0d55b54764421b7156c3",
		"error": map[string]interface{}{"message": "boom"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])

	entries, total, err := svc.List(context.Background(), model.ListFilter{Source: model.SourceFrontend})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	entry := entries[0]
	require.Equal(t, model.SourceFrontend, entry.Source)
	require.Equal(t, model.MethodComponentError, entry.Method)
	require.Equal(t, "/invoices/5f8d0d55b54764421b7156c3", entry.Path)
	require.NotNil(t, entry.Error)
	require.Equal(t, "boom", entry.Error.Message)
	require.Equal(t, "FrontendError", entry.Error.Name)
	require.Equal(t, "invoicing", entry.Module)
	require.Equal(t, "5f8d0d55b54764421b7156c3", entry.EntityID)
}

func TestIngestFrontendMalformedURLKeptVerbatim(t *testing.T) {
	r, svc := newTestRouter(t)

	w := postJSON(r, "/logs/frontend", map[string]interface{}{
		"url":   "::::not a url::::",
		"error": map[string]interface{}{"message": "boom"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	entries, _, err := svc.List(context.Background(), model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "::::not a url::::", entries[0].Path)
}

func TestListPagination(t *testing.T) {
	r, svc := newTestRouter(t)

	now := time.Now().UTC()
	for i := 0; i < 12; i++ {
		status := http.StatusOK
		if i%4 == 0 {
			status = http.StatusInternalServerError
		}
		require.NoError(t, svc.Append(context.Background(), &model.TxLogEntry{
			ID:         uuid.New().String(),
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			Source:     model.SourceBackend,
			Method:     "GET",
			URL:        fmt.Sprintf("/api/records/%d", i),
			Path:       fmt.Sprintf("/api/records/%d", i),
			StatusCode: status,
			Module:     "records",
		}))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs?limit=5&page=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success    bool               `json:"success"`
		Data       []*model.TxLogEntry `json:"data"`
		Pagination model.Pagination   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 5)
	require.Equal(t, 2, resp.Pagination.Current)
	require.Equal(t, 3, resp.Pagination.Pages)
	require.EqualValues(t, 12, resp.Pagination.Total)
	require.Equal(t, 5, resp.Pagination.Limit)
}

func TestListOnlyErrors(t *testing.T) {
	r, svc := newTestRouter(t)

	now := time.Now().UTC()
	for i, status := range []int{200, 500, 404, 201} {
		require.NoError(t, svc.Append(context.Background(), &model.TxLogEntry{
			ID:         uuid.New().String(),
			Timestamp:  now,
			Source:     model.SourceBackend,
			Method:     "GET",
			URL:        fmt.Sprintf("/api/records/%d", i),
			Path:       fmt.Sprintf("/api/records/%d", i),
			StatusCode: status,
		}))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs?onlyErrors=true", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*model.TxLogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	for _, entry := range resp.Data {
		require.GreaterOrEqual(t, entry.StatusCode, 400)
	}
}

func TestStatsAggregation(t *testing.T) {
	r, svc := newTestRouter(t)

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		entry := &model.TxLogEntry{
			ID:         uuid.New().String(),
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			Source:     model.SourceBackend,
			Method:     "GET",
			URL:        "/api/records",
			Path:       "/api/records",
			StatusCode: http.StatusOK,
			Module:     "records",
		}
		if i < 3 {
			entry.StatusCode = http.StatusInternalServerError
			entry.Module = "trucking"
			entry.Error = &model.ErrorInfo{Message: "db timeout"}
		}
		require.NoError(t, svc.Append(context.Background(), entry))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool        `json:"success"`
		Data    model.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	require.EqualValues(t, 10, resp.Data.Window.Total)
	require.EqualValues(t, 3, resp.Data.Window.Errors)
	require.Equal(t, "30.00%", resp.Data.Window.ErrorRate)

	require.Len(t, resp.Data.ByModule, 2)
	require.Equal(t, "records", resp.Data.ByModule[0].ID)
	require.EqualValues(t, 7, resp.Data.ByModule[0].Count)

	require.Len(t, resp.Data.TopErrors, 1)
	require.Equal(t, "db timeout", resp.Data.TopErrors[0].ID)
	require.EqualValues(t, 3, resp.Data.TopErrors[0].Count)
}
