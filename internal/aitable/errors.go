package aitable

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// APIError is a failed AITable call. Its message format is relied on by
// callers that only see the error string.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AITable API error (%d): %s", e.StatusCode, e.Message)
}

var statusPattern = regexp.MustCompile(`AITable API error \((\d{3})\)`)

// StatusFromError recovers the HTTP status embedded in err, first through
// errors.As and then by matching the message text.
func StatusFromError(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode, true
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
