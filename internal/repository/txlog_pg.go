package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/Santy1422/barcos-sub007/internal/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// PostgresTxLogRepo is the primary durable store. Expiry is owned here:
// a periodic sweep deletes rows past retention, and List filters the
// cutoff so an expired row is never served between sweeps.
type PostgresTxLogRepo struct {
	db        *sqlx.DB
	retention time.Duration
}

func NewPostgresTxLogRepo(db *sqlx.DB, retention time.Duration) *PostgresTxLogRepo {
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	repo := &PostgresTxLogRepo{db: db, retention: retention}
	if err := repo.ensureSchema(context.Background()); err != nil {
		logger.Error("txlog schema bootstrap failed", "error", err.Error())
	}
	return repo
}

func (r *PostgresTxLogRepo) Insert(ctx context.Context, entry *model.TxLogEntry) error {
	if entry == nil {
		return nil
	}
	reqHeaders, _ := jsonOrNil(entry.RequestHeaders)
	reqBody, _ := jsonOrNil(entry.RequestBody)
	reqQuery, _ := jsonOrNil(entry.RequestQuery)
	reqParams, _ := jsonOrNil(entry.RequestParams)
	respBody, _ := jsonOrNil(entry.ResponseBody)
	respHeaders, _ := jsonOrNil(entry.ResponseHeaders)
	errJSON, _ := jsonOrNil(entry.Error)
	browserJSON, _ := jsonOrNil(entry.Browser)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_logs (
			id, timestamp, source, method, url, path, status_code, response_time_ms,
			user_id, user_email, user_name, ip, user_agent,
			request_headers, request_body, request_query, request_params,
			response_body, response_headers,
			error, error_message,
			module, action, entity_type, entity_id,
			component_name, page_url, browser
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,
			$9,$10,$11,$12,$13,
			$14,$15,$16,$17,
			$18,$19,
			$20,$21,
			$22,$23,$24,$25,
			$26,$27,$28
		)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.Timestamp, entry.Source, entry.Method, entry.URL, entry.Path, entry.StatusCode, entry.ResponseTime,
		nullable(entry.UserID), nullable(entry.UserEmail), nullable(entry.UserName), nullable(entry.IP), nullable(entry.UserAgent),
		reqHeaders, reqBody, reqQuery, reqParams,
		respBody, respHeaders,
		errJSON, nullable(entry.ErrorMessage()),
		nullable(entry.Module), nullable(entry.Action), nullable(entry.EntityType), nullable(entry.EntityID),
		nullable(entry.ComponentName), nullable(entry.PageURL), browserJSON)
	return err
}

func (r *PostgresTxLogRepo) List(ctx context.Context, filter model.ListFilter) ([]*model.TxLogEntry, int64, error) {
	filter.Normalize()

	clauses := []string{"timestamp >= $1"}
	args := []interface{}{time.Now().UTC().Add(-r.retention)}
	idx := 2

	if filter.Source != "" {
		clauses = append(clauses, fmt.Sprintf("source = $%d", idx))
		args = append(args, filter.Source)
		idx++
	}
	if filter.Module != "" {
		clauses = append(clauses, fmt.Sprintf("module = $%d", idx))
		args = append(args, filter.Module)
		idx++
	}
	if filter.StatusCode != 0 {
		clauses = append(clauses, fmt.Sprintf("status_code = $%d", idx))
		args = append(args, filter.StatusCode)
		idx++
	}
	if filter.UserID != "" {
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.OnlyErrors {
		clauses = append(clauses, "status_code >= 400")
	}
	if filter.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", idx))
		args = append(args, *filter.StartDate)
		idx++
	}
	if filter.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", idx))
		args = append(args, *filter.EndDate)
		idx++
	}

	where := " WHERE " + strings.Join(clauses, " AND ")

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM transaction_logs"+where, args...); err != nil {
		return nil, 0, err
	}

	query := selectColumns + where +
		fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*model.TxLogEntry, 0, filter.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (r *PostgresTxLogRepo) Stats(ctx context.Context, window time.Duration) (*model.Stats, error) {
	since := time.Now().UTC().Add(-window)
	stats := &model.Stats{
		ByModule:     []model.CountBucket{},
		ByStatusCode: []model.CountBucket{},
		TopErrors:    []model.TopError{},
	}

	var totals struct {
		Total  int64 `db:"total"`
		Errors int64 `db:"errors"`
	}
	if err := r.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status_code >= 400) AS errors
		FROM transaction_logs WHERE timestamp >= $1
	`, since); err != nil {
		return nil, err
	}
	stats.Window.Total = totals.Total
	stats.Window.Errors = totals.Errors
	stats.Window.ErrorRate = model.FormatErrorRate(totals.Errors, totals.Total)

	moduleRows, err := r.db.QueryxContext(ctx, `
		SELECT COALESCE(module, 'other') AS id, COUNT(*) AS count
		FROM transaction_logs WHERE timestamp >= $1
		GROUP BY 1 ORDER BY 2 DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer moduleRows.Close()
	for moduleRows.Next() {
		var id string
		var count int64
		if err := moduleRows.Scan(&id, &count); err != nil {
			return nil, err
		}
		stats.ByModule = append(stats.ByModule, model.CountBucket{ID: id, Count: count})
	}

	statusRows, err := r.db.QueryxContext(ctx, `
		SELECT status_code, COUNT(*) AS count
		FROM transaction_logs WHERE timestamp >= $1
		GROUP BY 1 ORDER BY 1 ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var code int
		var count int64
		if err := statusRows.Scan(&code, &count); err != nil {
			return nil, err
		}
		stats.ByStatusCode = append(stats.ByStatusCode, model.CountBucket{ID: code, Count: count})
	}

	errRows, err := r.db.QueryxContext(ctx, `
		SELECT error_message, COUNT(*) AS count, MAX(timestamp) AS last_occurrence
		FROM transaction_logs
		WHERE timestamp >= $1 AND error_message IS NOT NULL AND error_message <> ''
		GROUP BY 1 ORDER BY 2 DESC, 1 ASC LIMIT 10
	`, since)
	if err != nil {
		return nil, err
	}
	defer errRows.Close()
	for errRows.Next() {
		var top model.TopError
		if err := errRows.Scan(&top.ID, &top.Count, &top.LastOccurrence); err != nil {
			return nil, err
		}
		stats.TopErrors = append(stats.TopErrors, top)
	}

	return stats, nil
}

// Cleanup removes entries past retention. Idempotent.
func (r *PostgresTxLogRepo) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-r.retention)
	res, err := r.db.ExecContext(ctx, `DELETE FROM transaction_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartSweeper runs the expiry policy on a ticker until ctx is done.
func (r *PostgresTxLogRepo) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := r.Cleanup(ctx)
				if err != nil {
					logger.Error("txlog retention sweep failed", "error", err.Error())
				} else if removed > 0 {
					logger.Info("txlog retention sweep", "removed", removed)
				}
			}
		}
	}()
}

const selectColumns = `SELECT id, timestamp, source, method, url, path, status_code, response_time_ms,
	user_id, user_email, user_name, ip, user_agent,
	request_headers, request_body, request_query, request_params,
	response_body, response_headers,
	error, module, action, entity_type, entity_id,
	component_name, page_url, browser
	FROM transaction_logs`

func scanEntry(rows *sqlx.Rows) (*model.TxLogEntry, error) {
	var entry model.TxLogEntry
	var userID, userEmail, userName, ip, userAgent *string
	var module, action, entityType, entityID *string
	var componentName, pageURL *string
	var reqHeaders, reqBody, reqQuery, reqParams []byte
	var respBody, respHeaders, errJSON, browserJSON []byte

	if err := rows.Scan(
		&entry.ID, &entry.Timestamp, &entry.Source, &entry.Method, &entry.URL, &entry.Path,
		&entry.StatusCode, &entry.ResponseTime,
		&userID, &userEmail, &userName, &ip, &userAgent,
		&reqHeaders, &reqBody, &reqQuery, &reqParams,
		&respBody, &respHeaders,
		&errJSON, &module, &action, &entityType, &entityID,
		&componentName, &pageURL, &browserJSON,
	); err != nil {
		return nil, err
	}

	entry.UserID = deref(userID)
	entry.UserEmail = deref(userEmail)
	entry.UserName = deref(userName)
	entry.IP = deref(ip)
	entry.UserAgent = deref(userAgent)
	entry.Module = deref(module)
	entry.Action = deref(action)
	entry.EntityType = deref(entityType)
	entry.EntityID = deref(entityID)
	entry.ComponentName = deref(componentName)
	entry.PageURL = deref(pageURL)

	entry.RequestHeaders = unmarshalAny(reqHeaders)
	entry.RequestBody = unmarshalAny(reqBody)
	entry.RequestQuery = unmarshalAny(reqQuery)
	entry.RequestParams = unmarshalAny(reqParams)
	entry.ResponseBody = unmarshalAny(respBody)
	entry.ResponseHeaders = unmarshalAny(respHeaders)

	if len(errJSON) > 0 {
		var info model.ErrorInfo
		if json.Unmarshal(errJSON, &info) == nil {
			entry.Error = &info
		}
	}
	if len(browserJSON) > 0 {
		var browser model.BrowserInfo
		if json.Unmarshal(browserJSON, &browser) == nil {
			entry.Browser = &browser
		}
	}
	return &entry, nil
}

func (r *PostgresTxLogRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transaction_logs (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			response_time_ms BIGINT NOT NULL DEFAULT 0,
			user_id TEXT,
			user_email TEXT,
			user_name TEXT,
			ip TEXT,
			user_agent TEXT,
			request_headers JSONB,
			request_body JSONB,
			request_query JSONB,
			request_params JSONB,
			response_body JSONB,
			response_headers JSONB,
			error JSONB,
			error_message TEXT,
			module TEXT,
			action TEXT,
			entity_type TEXT,
			entity_id TEXT,
			component_name TEXT,
			page_url TEXT,
			browser JSONB
		)
	`)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_txlog_timestamp ON transaction_logs(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_source ON transaction_logs(source, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_method_path ON transaction_logs(method, path)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_status ON transaction_logs(status_code, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_user ON transaction_logs(user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_module ON transaction_logs(module, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_action ON transaction_logs(action, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_txlog_error_message ON transaction_logs(error_message)`,
	} {
		_, _ = r.db.ExecContext(ctx, stmt)
	}
	return nil
}

func jsonOrNil(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case *model.ErrorInfo:
		if t == nil {
			return nil, nil
		}
	case *model.BrowserInfo:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func unmarshalAny(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var out interface{}
	if json.Unmarshal(raw, &out) != nil {
		return string(raw)
	}
	return out
}
