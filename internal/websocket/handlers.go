package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates the Origin header of websocket upgrade requests
type OriginChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOriginChecker normalizes the configured origins. "*" allows every origin;
// an empty list allows only same-origin and origin-less requests.
func NewOriginChecker(origins []string, logger *slog.Logger) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			oc.allowAll = true
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				logger.Warn("Ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			oc.allowed[normalized] = struct{}{}
		}
	}
	return oc
}

// Check reports whether r may be upgraded
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		// Non-browser clients do not send an Origin
		return true
	}
	origin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}
	if _, ok := oc.allowed[origin]; ok {
		return true
	}
	return strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
