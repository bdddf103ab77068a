package queue

import "strings"

const (
	msgRateLimited   = "Rate limited by the classification service; slowing down automatically"
	msgModelNotFound = "Classification model not found; check the configured model name"
)

var rateLimitPatterns = []string{"429", "rate limit", "too many requests", "quota"}

// DescribeError turns an analyzer failure into the message stored on the
// record. Rate limit and missing model errors get actionable wording; all
// other errors pass through.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return msgRateLimited
		}
	}
	if strings.Contains(lower, "model") && (strings.Contains(lower, "404") || strings.Contains(lower, "not found")) {
		return msgModelNotFound
	}
	return msg
}
