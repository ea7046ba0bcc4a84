package types

// contextKey is a private type so context values set here cannot collide
// with other packages.
type contextKey string

// Context keys attached by serving layers and read by telemetry.
const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyIntent    contextKey = "intent"
)
