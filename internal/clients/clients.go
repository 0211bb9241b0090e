// Package clients talks to the HTTP collaborators: the hosted emotion
// classifier and the question-generation service.
package clients

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request; question generation can sit on a slow model.
const DefaultTimeout = 60 * time.Second

type HTTP struct{ c *http.Client }

// NewHTTP returns a client whose requests give up after timeout. Requests are never retried.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}
