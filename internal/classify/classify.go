// Package classify derives coarse business labels (module, action, entity)
// from an HTTP method and path. Pure functions, no I/O.
package classify

import (
	"net/http"
	"regexp"
	"strings"
)

// Result carries the labels derived from one (method, path) pair.
type Result struct {
	Module     string
	Action     string
	EntityType string
	EntityID   string
}

// objectIDPattern matches a 24 位十六进制 document id anywhere in the path.
var objectIDPattern = regexp.MustCompile(`[0-9a-fA-F]{24}`)

type rule struct {
	re    *regexp.Regexp
	label string
}

// modulePatterns is evaluated top to bottom, first match wins.
// 顺序即优先级：/users 必须排在 /user 之前，否则会被 auth 吞掉。
var modulePatterns = []rule{
	{regexp.MustCompile(`/trucking`), "trucking"},
	{regexp.MustCompile(`/agency`), "agency"},
	{regexp.MustCompile(`/users`), "users"},
	{regexp.MustCompile(`/user`), "auth"},
	{regexp.MustCompile(`/invoice`), "invoicing"},
	{regexp.MustCompile(`/client`), "clients"},
	{regexp.MustCompile(`/container`), "containers"},
	{regexp.MustCompile(`/service`), "services"},
	{regexp.MustCompile(`/record`), "records"},
	{regexp.MustCompile(`/excel`), "excel"},
	{regexp.MustCompile(`/logs`), "logs"},
	{regexp.MustCompile(`/ftp|/sftp|/sap`), "sap-ftp"},
}

var entityPatterns = []rule{
	{regexp.MustCompile(`invoice`), "invoice"},
	{regexp.MustCompile(`record`), "record"},
	{regexp.MustCompile(`client`), "client"},
	{regexp.MustCompile(`user`), "user"},
	{regexp.MustCompile(`route`), "route"},
	{regexp.MustCompile(`service`), "service"},
	{regexp.MustCompile(`excel`), "excel"},
	{regexp.MustCompile(`container`), "container"},
}

// Classify maps a request to its business labels. It is total: any
// (method, path) pair yields a result, falling back to module "other".
func Classify(method, path string) Result {
	lower := strings.ToLower(path)

	res := Result{Module: "other"}
	for _, r := range modulePatterns {
		if r.re.MatchString(lower) {
			res.Module = r.label
			break
		}
	}

	res.EntityID = objectIDPattern.FindString(path)
	for _, r := range entityPatterns {
		if r.re.MatchString(lower) {
			res.EntityType = r.label
			break
		}
	}

	res.Action = actionFor(strings.ToUpper(method), lower, res.EntityID != "")
	return res
}

func actionFor(method, lower string, hasEntityID bool) string {
	switch {
	case strings.Contains(lower, "/login"):
		return "login"
	case strings.Contains(lower, "/logout"):
		return "logout"
	case strings.Contains(lower, "/register"):
		return "register"
	case strings.Contains(lower, "/bulk"):
		if method == http.MethodPost {
			return "bulk-create"
		}
		return "bulk-update"
	case strings.Contains(lower, "/upload"):
		return "upload"
	case strings.Contains(lower, "/export"):
		return "export"
	case strings.Contains(lower, "/download"):
		return "download"
	}

	switch method {
	case http.MethodGet:
		if hasEntityID {
			return "get-one"
		}
		return "get-list"
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "partial-update"
	case http.MethodDelete:
		return "delete"
	default:
		return "unknown"
	}
}
