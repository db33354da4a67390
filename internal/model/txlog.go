package model

import (
	"fmt"
	"sort"
	"time"
)

// Source 标识一条日志的来源
type Source string

const (
	SourceBackend  Source = "backend"
	SourceFrontend Source = "frontend"
)

// MethodComponentError 前端非网络错误（组件渲染崩溃等）的哨兵方法名
const MethodComponentError = "COMPONENT_ERROR"

// ErrorInfo 描述被观测事务的失败信息
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Code    string `json:"code,omitempty"`
	Name    string `json:"name,omitempty"`
}

// BrowserInfo 前端上报的浏览器环境
type BrowserInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`
}

// TxLogEntry 代表一次被捕获的 HTTP 事务（或一条前端错误上报）。
// 创建后不可变；删除只通过存量过期发生。
type TxLogEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Path       string    `json:"path"`
	StatusCode int       `json:"statusCode"`
	// ResponseTime 毫秒；未知时为 0
	ResponseTime int64 `json:"responseTime"`

	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	UserName  string `json:"userName,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	// 以下 JSON 字段均为脱敏且限长后的数据
	RequestHeaders  interface{} `json:"requestHeaders,omitempty"`
	RequestBody     interface{} `json:"requestBody,omitempty"`
	RequestQuery    interface{} `json:"requestQuery,omitempty"`
	RequestParams   interface{} `json:"requestParams,omitempty"`
	ResponseBody    interface{} `json:"responseBody,omitempty"`
	ResponseHeaders interface{} `json:"responseHeaders,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`

	// 派生分类
	Module     string `json:"module,omitempty"`
	Action     string `json:"action,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`

	// 仅 frontend 来源
	ComponentName string       `json:"componentName,omitempty"`
	PageURL       string       `json:"pageUrl,omitempty"`
	Browser       *BrowserInfo `json:"browserInfo,omitempty"`
}

// IsError reports whether the captured transaction is considered failed.
func (e *TxLogEntry) IsError() bool {
	return e.StatusCode >= 400 || e.Error != nil
}

// ErrorMessage returns the failure message, or "" for successful entries.
func (e *TxLogEntry) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}

// ListFilter narrows a List query. Zero values mean "not filtered".
type ListFilter struct {
	Source     Source
	Module     string
	StatusCode int
	UserID     string
	OnlyErrors bool
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	Limit      int
}

// Matches reports whether the entry passes every set filter field.
// Used by the in-memory and Redis backends; Postgres filters in SQL.
func (f ListFilter) Matches(e *TxLogEntry) bool {
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.Module != "" && e.Module != f.Module {
		return false
	}
	if f.StatusCode != 0 && e.StatusCode != f.StatusCode {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.OnlyErrors && e.StatusCode < 400 {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// Normalize clamps pagination to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
}

// Pagination echoes list paging back to the caller.
type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
}

// CountBucket 是分组聚合的一行，键名沿用前端已消费的 _id 形式
type CountBucket struct {
	ID    interface{} `json:"_id"`
	Count int64       `json:"count"`
}

// TopError 是最高频错误消息聚合的一行
type TopError struct {
	ID             string    `json:"_id"`
	Count          int64     `json:"count"`
	LastOccurrence time.Time `json:"lastOccurrence"`
}

// WindowStats 是滚动窗口内的总量统计
type WindowStats struct {
	Total     int64  `json:"total"`
	Errors    int64  `json:"errors"`
	ErrorRate string `json:"errorRate"`
}

// Stats 是 /logs/stats 的聚合结果
type Stats struct {
	Window       WindowStats   `json:"last24h"`
	ByModule     []CountBucket `json:"byModule"`
	ByStatusCode []CountBucket `json:"byStatusCode"`
	TopErrors    []TopError    `json:"topErrors"`
}

// Aggregate computes Stats over entries captured at or after since.
// The SQL store aggregates in the database; the Redis and in-memory
// backends feed their recent window through here instead.
func Aggregate(entries []*TxLogEntry, since time.Time) *Stats {
	stats := &Stats{
		ByModule:     []CountBucket{},
		ByStatusCode: []CountBucket{},
		TopErrors:    []TopError{},
	}

	moduleCounts := make(map[string]int64)
	statusCounts := make(map[int]int64)
	type errAgg struct {
		count int64
		last  time.Time
	}
	errCounts := make(map[string]*errAgg)

	for _, e := range entries {
		if e == nil || e.Timestamp.Before(since) {
			continue
		}
		stats.Window.Total++
		if e.StatusCode >= 400 {
			stats.Window.Errors++
		}
		mod := e.Module
		if mod == "" {
			mod = "other"
		}
		moduleCounts[mod]++
		statusCounts[e.StatusCode]++
		if msg := e.ErrorMessage(); msg != "" {
			agg := errCounts[msg]
			if agg == nil {
				agg = &errAgg{}
				errCounts[msg] = agg
			}
			agg.count++
			if e.Timestamp.After(agg.last) {
				agg.last = e.Timestamp
			}
		}
	}

	stats.Window.ErrorRate = FormatErrorRate(stats.Window.Errors, stats.Window.Total)

	for mod, n := range moduleCounts {
		stats.ByModule = append(stats.ByModule, CountBucket{ID: mod, Count: n})
	}
	sort.Slice(stats.ByModule, func(i, j int) bool {
		if stats.ByModule[i].Count != stats.ByModule[j].Count {
			return stats.ByModule[i].Count > stats.ByModule[j].Count
		}
		return stats.ByModule[i].ID.(string) < stats.ByModule[j].ID.(string)
	})

	for code, n := range statusCounts {
		stats.ByStatusCode = append(stats.ByStatusCode, CountBucket{ID: code, Count: n})
	}
	sort.Slice(stats.ByStatusCode, func(i, j int) bool {
		return stats.ByStatusCode[i].ID.(int) < stats.ByStatusCode[j].ID.(int)
	})

	for msg, agg := range errCounts {
		stats.TopErrors = append(stats.TopErrors, TopError{ID: msg, Count: agg.count, LastOccurrence: agg.last})
	}
	sort.Slice(stats.TopErrors, func(i, j int) bool {
		if stats.TopErrors[i].Count != stats.TopErrors[j].Count {
			return stats.TopErrors[i].Count > stats.TopErrors[j].Count
		}
		return stats.TopErrors[i].ID < stats.TopErrors[j].ID
	})
	if len(stats.TopErrors) > 10 {
		stats.TopErrors = stats.TopErrors[:10]
	}

	return stats
}

// FormatErrorRate renders errors/total as a percentage string like "30.00%".
func FormatErrorRate(errors, total int64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(errors)/float64(total)*100)
}
