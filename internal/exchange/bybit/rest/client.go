package rest

import (
	"net/http"
	"time"

	"arbot/internal/logger"
)

func New(baseURL, apiKey, secret, accountType string, log *logger.Logger) *Client {
	if accountType == "" {
		accountType = "UNIFIED"
	}
	return &Client{
		baseURL:     baseURL,
		accountType: accountType,
		apiKey:      apiKey,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log:           log,
		now:           time.Now,
		retryAttempts: 5,
		retryBackoff:  time.Second,
	}
}

// SetRetry changes how read requests are retried. Attempts below one mean a single attempt.
func (c *Client) SetRetry(attempts int, backoff time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	c.retryAttempts = attempts
	c.retryBackoff = backoff
}
