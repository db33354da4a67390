package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/classify"
	"github.com/Santy1422/barcos-sub007/internal/config"
	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/Santy1422/barcos-sub007/internal/redact"
	"github.com/Santy1422/barcos-sub007/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LogsHandler struct {
	svc *service.TxLogService
	cfg config.CaptureConfig
}

func NewLogsHandler(svc *service.TxLogService, cfg config.CaptureConfig) *LogsHandler {
	return &LogsHandler{svc: svc, cfg: cfg}
}

// frontendReport is the body a remote reporting client POSTs.
// url 和 error.message 必填，其余全部可选。
type frontendReport struct {
	Method        string             `json:"method"`
	URL           string             `json:"url"`
	StatusCode    int                `json:"statusCode"`
	ResponseTime  int64              `json:"responseTime"`
	Error         *model.ErrorInfo   `json:"error"`
	Module        string             `json:"module"`
	Action        string             `json:"action"`
	ComponentName string             `json:"componentName"`
	PageURL       string             `json:"pageUrl"`
	Browser       *model.BrowserInfo `json:"browserInfo"`
	RequestBody   interface{}        `json:"requestBody"`
	ResponseBody  interface{}        `json:"responseBody"`
	UserID        string             `json:"userId"`
	UserEmail     string             `json:"userEmail"`
	UserName      string             `json:"userName"`
}

// IngestFrontend accepts one client-reported error. Unlike the capture
// middleware this path awaits persistence: the write is the point of the
// call, so bad input gets 400 and a storage failure gets 500.
func (h *LogsHandler) IngestFrontend(c *gin.Context) {
	var report frontendReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid JSON body: " + err.Error(),
		})
		return
	}

	missing := []string{}
	if report.URL == "" {
		missing = append(missing, "url")
	}
	if report.Error == nil || report.Error.Message == "" {
		missing = append(missing, "error.message")
	}
	if len(missing) > 0 {
		msg := "missing required field(s): "
		for i, f := range missing {
			if i > 0 {
				msg += ", "
			}
			msg += f
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}

	method := report.Method
	if method == "" {
		method = model.MethodComponentError
	}
	if report.Error.Name == "" {
		report.Error.Name = "FrontendError"
	}

	path := pathFromURL(report.URL)
	classification := classify.Classify(method, path)
	module := report.Module
	if module == "" {
		module = classification.Module
	}
	action := report.Action
	if action == "" {
		action = classification.Action
	}

	limits := redact.Limits{
		MaxBytes:     h.cfg.RequestBodyLimitBytes,
		PreviewBytes: h.cfg.PreviewBytes,
		MaxDepth:     h.cfg.MaxDepth,
	}
	respLimits := limits
	respLimits.MaxBytes = h.cfg.ResponseBodyLimitBytes

	entry := &model.TxLogEntry{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		Source:        model.SourceFrontend,
		Method:        method,
		URL:           report.URL,
		Path:          path,
		StatusCode:    report.StatusCode,
		ResponseTime:  report.ResponseTime,
		UserID:        report.UserID,
		UserEmail:     report.UserEmail,
		UserName:      report.UserName,
		IP:            c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		RequestBody:   redact.WithLimits(report.RequestBody, limits),
		ResponseBody:  redact.WithLimits(report.ResponseBody, respLimits),
		Error:         report.Error,
		Module:        module,
		Action:        action,
		EntityType:    classification.EntityType,
		EntityID:      classification.EntityID,
		ComponentName: report.ComponentName,
		PageURL:       report.PageURL,
		Browser:       report.Browser,
	}

	if err := h.svc.Append(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to persist log entry",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "log entry recorded"})
}

// List serves the paginated, filtered log listing, newest first.
func (h *LogsHandler) List(c *gin.Context) {
	filter := model.ListFilter{
		Source: model.Source(c.Query("source")),
		Module: c.Query("module"),
		UserID: c.Query("userId"),
	}
	if raw := c.Query("statusCode"); raw != "" {
		if code, err := strconv.Atoi(raw); err == nil {
			filter.StatusCode = code
		}
	}
	if raw := c.Query("onlyErrors"); raw == "true" || raw == "1" {
		filter.OnlyErrors = true
	}
	if raw := c.Query("startDate"); raw != "" {
		if t, err := parseTime(raw); err == nil {
			filter.StartDate = &t
		}
	}
	if raw := c.Query("endDate"); raw != "" {
		if t, err := parseTime(raw); err == nil {
			filter.EndDate = &t
		}
	}
	if raw := c.Query("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			filter.Page = page
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	filter.Normalize()

	entries, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to query logs",
			"error":   err.Error(),
		})
		return
	}

	pages := int(total) / filter.Limit
	if int(total)%filter.Limit != 0 {
		pages++
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
		"pagination": model.Pagination{
			Current: filter.Page,
			Pages:   pages,
			Total:   total,
			Limit:   filter.Limit,
		},
	})
}

// Stats serves the rolling-window aggregation.
func (h *LogsHandler) Stats(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	stats, err := h.svc.Stats(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to aggregate logs",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// pathFromURL extracts the path component from a possibly-relative URL.
// Never fails: unparseable input is kept verbatim.
func pathFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
