// Package errors keeps internal detail out of the error messages the
// API hands back to clients.
package errors

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Evidence and system paths, Linux or Windows style.
	pathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// Fragments that mean a backend error leaked through whole.
	backendPattern = regexp.MustCompile(`(?i)(sql:|database:|clickhouse|connection string|password=|secret=|token=|api[_-]?key=)`)
)

// productionMode gates sanitization. In development the raw error text
// passes through so failures stay debuggable.
var productionMode = false

// SetProductionMode turns sanitization on or off. Call it once during
// startup, before any request is served.
func SetProductionMode(on bool) {
	productionMode = on
}

// clientSafePrefixes are error texts the handlers deliberately produce
// for clients. They carry no internal detail and pass through verbatim.
var clientSafePrefixes = []string{
	"rule not found",
	"artifact not found",
	"invalid rule document",
	"rule is disabled",
	"scan cancelled",
	"invalid request",
	"unauthorized",
	"forbidden",
	"not found",
}

// SafeErrorMessage returns err's message with anything that maps the
// deployment removed. Known client-facing errors pass through untouched.
func SafeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, safe := range clientSafePrefixes {
		if strings.Contains(lower, safe) {
			return msg
		}
	}

	return sanitize(msg)
}

// sanitize strips deployment detail from one message: evidence paths
// collapse to their base filename, IPs lose their host octets, and
// anything that smells like a raw backend error is replaced wholesale.
func sanitize(s string) string {
	if !productionMode {
		return s
	}

	s = pathPattern.ReplaceAllStringFunc(s, filepath.Base)

	s = ipPattern.ReplaceAllStringFunc(s, func(ip string) string {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.x.x", parts[0], parts[1])
		}
		return "x.x.x.x"
	})

	if backendPattern.MatchString(s) {
		return "storage operation failed"
	}

	if strings.Contains(s, "goroutine") || strings.Count(s, "\n") > 3 {
		return "internal server error"
	}

	return s
}
