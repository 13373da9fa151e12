package middleware

import (
	"net/http"
	"strings"
	"time"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type idempotencyRule struct {
	method   string
	segments []string
	critical bool
}

func rule(method, template string, critical bool) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(template), critical: critical}
}

// Submit and approve change what downstream systems see, so their replay
// window outlives the default.
var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/v1/tokenizations", false),
	rule(http.MethodPost, "/api/v1/tokenizations/{draftId}/submit", true),
	rule(http.MethodPost, "/api/v1/tokenizations/{draftId}/cancel", false),
	rule(http.MethodPost, "/api/v1/admin/tokenizations/{draftId}/approve", true),
	rule(http.MethodPost, "/api/v1/admin/tokenizations/{draftId}/reject", false),
	rule(http.MethodPost, "/api/v1/admin/tokenizations/{draftId}/cancel", false),
	rule(http.MethodPost, "/api/v1/notifications/{notificationId}/read", false),
	rule(http.MethodPost, "/api/v1/notifications/read-all", false),
}

// matches compares segment by segment. A {name} segment takes any single
// non-empty segment. Middleware on a sub-router runs before chi has the final
// route pattern, so rules are checked against the concrete path.
func (r idempotencyRule) matches(method string, path []string) bool {
	if r.method != method || len(path) != len(r.segments) {
		return false
	}
	for i, want := range r.segments {
		if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if path[i] != want {
			return false
		}
	}
	return true
}

// routeTTL reports the replay window for a guarded route.
func routeTTL(method, path string, defaultTTL time.Duration) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	segments := splitPath(path)
	for _, rule := range idempotencyRules {
		if !rule.matches(method, segments) {
			continue
		}
		if rule.critical {
			return max(criticalIdempotencyTTL, defaultTTL), true
		}
		return defaultTTL, true
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
