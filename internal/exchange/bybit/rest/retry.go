package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	codeRateLimit      = 10006
	codeOrderNotExists = 170213
	codeDuplicateLink  = 170141
	maxBackoff         = 30 * time.Second
)

// withRetry repeats read requests on transport errors, rate limits and 5xx responses.
// Orders are never sent through it.
func withRetry[T any](ctx context.Context, c *Client, what string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := c.retryBackoff
	for i := 0; i < c.retryAttempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) || i == c.retryAttempts-1 {
			break
		}

		wait := backoff
		if IsRateLimit(err) {
			wait = backoff * 4
		}
		if wait > maxBackoff {
			wait = maxBackoff
		}
		c.log.WithComponent("bybit_rest").WithError(err).WithFields(map[string]interface{}{
			"request": what,
			"attempt": i + 1,
			"wait":    wait.String(),
		}).Warn("Ошибка, повторяем запрос.")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return zero, lastErr
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeRateLimit
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeRateLimit {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(err.Error(), "Too many visits!")
}

func IsOrderNotExists(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeOrderNotExists
	}
	return err != nil && strings.Contains(err.Error(), "Order does not exist")
}

func IsDuplicateLinkID(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeDuplicateLink
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate clientOrderId")
}

// IsRefusal reports a definitive answer from bybit other than a duplicate link id.
func IsRefusal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code != codeDuplicateLink
}
