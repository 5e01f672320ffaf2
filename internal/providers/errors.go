package providers

import (
	"net/http"
	"strings"
)

var statusPatterns = []struct {
	code   string
	status int
}{
	{"429", http.StatusTooManyRequests},
	{"500", http.StatusInternalServerError},
	{"502", http.StatusBadGateway},
	{"503", http.StatusServiceUnavailable},
	{"504", http.StatusGatewayTimeout},
	{"529", http.StatusServiceUnavailable}, // anthropic "overloaded"
	{"401", http.StatusUnauthorized},
	{"403", http.StatusForbidden},
	{"402", http.StatusPaymentRequired},
	{"408", http.StatusRequestTimeout},
	{"400", http.StatusBadRequest},
}

// extractErrorMetadata returns the HTTP status and Retry-After hint carried by
// an SDK error. Typed errors are read first, the message text second.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	status := openAIStatus(err)
	errStr := err.Error()
	if status == 0 {
		for _, p := range statusPatterns {
			if strings.Contains(errStr, "status code: "+p.code) || strings.Contains(errStr, "status code "+p.code) ||
				strings.Contains(errStr, "HTTP "+p.code) {
				status = p.status
				break
			}
		}
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after:", "retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			if parts := strings.Fields(errStr[idx+len(marker):]); len(parts) > 0 {
				retryAfter = strings.TrimRight(parts[0], "s.,;")
			}
			break
		}
	}
	return status, retryAfter
}
