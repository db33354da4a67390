package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/classify"
	"github.com/Santy1422/barcos-sub007/internal/config"
	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/Santy1422/barcos-sub007/internal/pkg/apperrors"
	"github.com/Santy1422/barcos-sub007/internal/pkg/logger"
	"github.com/Santy1422/barcos-sub007/internal/pkg/principal"
	"github.com/Santy1422/barcos-sub007/internal/redact"
	"github.com/Santy1422/barcos-sub007/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ContextCapturedKey = "txlog_captured"

// bodyLogWriter 包装 ResponseWriter：客户端收到什么，我们就记下什么
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyLogWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Capture observes one request/response cycle without altering its
// outcome. The entry is handed off fire-and-forget after the response
// is complete; nothing here can delay or fail the client's response.
func Capture(svc *service.TxLogService, cfg config.CaptureConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.New().String()
		c.Header("X-Request-ID", reqID)

		// 1. 读取请求体 (并写回以便后续 Bind 使用)
		var reqBodyBytes []byte
		if c.Request.Body != nil {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		// 2. 包装 ResponseWriter 以捕获响应
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		// === 执行业务逻辑 ===
		c.Next()

		// 3. 组装并投递日志。观测自身的任何异常都不允许传回业务响应。
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("txlog capture failed", "panic", fmt.Sprint(r), "path", c.Request.URL.Path)
				}
			}()
			entry := buildEntry(c, reqID, start, reqBodyBytes, blw.body.Bytes(), cfg)
			c.Set(ContextCapturedKey, true)
			svc.Record(entry)
		}()
	}
}

// ErrorBoundary is the outermost hook: it catches what the normal
// completion path could not (unhandled panics), records the entry, and
// forwards the error to the ErrorHandler chain. Observes, never swallows.
func ErrorBoundary(svc *service.TxLogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err := fmt.Errorf("panic: %v", r)
			logger.Error("unhandled panic", "error", err.Error(), "path", c.Request.URL.Path)

			if captured, _ := c.Get(ContextCapturedKey); captured != true {
				classification := classify.Classify(c.Request.Method, c.Request.URL.Path)
				entry := &model.TxLogEntry{
					ID:           uuid.New().String(),
					Timestamp:    time.Now().UTC(),
					Source:       model.SourceBackend,
					Method:       c.Request.Method,
					URL:          requestURL(c),
					Path:         c.Request.URL.Path,
					StatusCode:   500,
					ResponseTime: time.Since(start).Milliseconds(),
					IP:           c.ClientIP(),
					UserAgent:    c.Request.UserAgent(),
					Module:       classification.Module,
					Action:       classification.Action,
					EntityType:   classification.EntityType,
					EntityID:     classification.EntityID,
					Error: &model.ErrorInfo{
						Message: err.Error(),
						Stack:   string(debug.Stack()),
						Name:    "UnhandledPanic",
					},
				}
				fillPrincipal(c, entry)
				svc.Record(entry)
			}

			_ = c.Error(apperrors.New(apperrors.ErrSystemPanic, "internal server error", err))
			c.Abort()
		}()
		c.Next()
	}
}

func buildEntry(c *gin.Context, reqID string, start time.Time, reqBody, respBody []byte, cfg config.CaptureConfig) *model.TxLogEntry {
	status := c.Writer.Status()
	classification := classify.Classify(c.Request.Method, c.Request.URL.Path)

	reqLimits := redact.Limits{
		MaxBytes:     cfg.RequestBodyLimitBytes,
		PreviewBytes: cfg.PreviewBytes,
		MaxDepth:     cfg.MaxDepth,
	}
	respLimits := reqLimits
	respLimits.MaxBytes = cfg.ResponseBodyLimitBytes

	parsedRespBody := parseBody(respBody, respLimits.MaxBytes)

	entry := &model.TxLogEntry{
		ID:              reqID,
		Timestamp:       time.Now().UTC(),
		Source:          model.SourceBackend,
		Method:          c.Request.Method,
		URL:             requestURL(c),
		Path:            c.Request.URL.Path,
		StatusCode:      status,
		ResponseTime:    time.Since(start).Milliseconds(),
		IP:              c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
		RequestHeaders:  redactMap(headerMap(c.Request.Header), reqLimits),
		RequestBody:     redact.WithLimits(parseBody(reqBody, reqLimits.MaxBytes), reqLimits),
		RequestQuery:    redactMap(queryMap(c), reqLimits),
		RequestParams:   redactMap(paramMap(c), reqLimits),
		ResponseBody:    redact.WithLimits(parsedRespBody, respLimits),
		ResponseHeaders: redactMap(headerMap(c.Writer.Header()), respLimits),
		Module:          classification.Module,
		Action:          classification.Action,
		EntityType:      classification.EntityType,
		EntityID:        classification.EntityID,
	}
	fillPrincipal(c, entry)

	if status >= 400 {
		entry.Error = &model.ErrorInfo{
			Message: errorMessage(c, parsedRespBody, status),
		}
	}
	return entry
}

// errorMessage prefers a message carried in the response body, then the
// last gin error, then a plain HTTP fallback.
func errorMessage(c *gin.Context, body interface{}, status int) string {
	if m, ok := body.(map[string]interface{}); ok {
		for _, key := range []string{"message", "error"} {
			if v, ok := m[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if len(c.Errors) > 0 {
		return c.Errors.Last().Error()
	}
	return fmt.Sprintf("HTTP %d", status)
}

// parseBody best-effort parses raw as JSON; non-JSON stays text, and
// very large non-JSON collapses to a size placeholder.
func parseBody(raw []byte, limit int) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var parsed interface{}
	if json.Unmarshal(raw, &parsed) == nil {
		return parsed
	}
	if limit > 0 && len(raw) > limit {
		return map[string]interface{}{"type": "text", "size": len(raw)}
	}
	return string(raw)
}

func fillPrincipal(c *gin.Context, entry *model.TxLogEntry) {
	if p := principal.FromContext(c); p != nil {
		entry.UserID = p.ID
		entry.UserEmail = p.Email
		entry.UserName = p.Name
	}
}

// redactMap avoids storing empty objects for absent maps.
func redactMap(m map[string]interface{}, l redact.Limits) interface{} {
	if len(m) == 0 {
		return nil
	}
	return redact.WithLimits(m, l)
}

func requestURL(c *gin.Context) string {
	if c.Request.URL.RawQuery != "" {
		return c.Request.URL.Path + "?" + c.Request.URL.RawQuery
	}
	return c.Request.URL.Path
}

func headerMap(h map[string][]string) map[string]interface{} {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

func queryMap(c *gin.Context) map[string]interface{} {
	values := c.Request.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

func paramMap(c *gin.Context) map[string]interface{} {
	if len(c.Params) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(c.Params))
	for _, p := range c.Params {
		out[p.Key] = p.Value
	}
	return out
}
