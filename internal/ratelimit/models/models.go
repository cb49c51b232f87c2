// Package models holds the rate limiting value types.
package models

import "time"

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set only when the request was refused.
	RetryAfter time.Duration
}

// RegistrationKey buckets registration attempts by client IP.
func RegistrationKey(clientIP string) string {
	return "ratelimit:register:" + clientIP
}
