package reliability

import "strings"

// compatibilityMarkers are the substrings that mark a provider error as a
// compatibility failure worth one relaxed retry. The matching is deliberately
// coarse: providers disagree on error shapes, and a structured taxonomy would
// have to guess. Kept behind this single predicate so it can be swapped later.
var compatibilityMarkers = []string{
	"400",
	"bad request",
	"model",
	"unsupported",
	"not found",
	"invalid",
}

// IsCompatibilityError reports whether a provider error message indicates a
// request/model compatibility problem rather than a terminal failure.
func IsCompatibilityError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range compatibilityMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes from
// bibliographic and extraction upstreams.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
