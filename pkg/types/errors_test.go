package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       *APIError
		transient bool
	}{
		{name: "transport-failure", err: &APIError{Message: "connection refused"}, transient: true},
		{name: "server-error", err: &APIError{StatusCode: 503, Message: "unavailable"}, transient: true},
		{name: "client-error", err: &APIError{StatusCode: 404, Message: "not found"}, transient: false},
		{name: "malformed-body", err: &APIError{Message: "expected array response from API", Terminal: true}, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, tt.err.Transient())
		})
	}
}
