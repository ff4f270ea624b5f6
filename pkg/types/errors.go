package types

import "fmt"

// APIError represents an unexpected response from the Polymarket API.
// StatusCode is zero for transport-level failures (connection, timeout).
// Terminal marks status-less errors that retrying cannot fix, such as a
// 2xx response whose body has the wrong shape.
type APIError struct {
	StatusCode int
	Message    string
	Terminal   bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("polymarket api error (status %d): %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("polymarket api error: %s", e.Message)
}

// Transient reports whether the error is worth retrying: transport
// failures and 5xx responses are; 4xx and malformed bodies are terminal.
func (e *APIError) Transient() bool {
	if e.Terminal {
		return false
	}

	return e.StatusCode == 0 || (e.StatusCode >= 500 && e.StatusCode < 600)
}
