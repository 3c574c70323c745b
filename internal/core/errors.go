package core

// Error codes for domain errors.
const (
	ErrCodeChannelNotFound = "channel_not_found"
	ErrCodeAlreadyJoined   = "already_joined"
	ErrCodeNotMember       = "not_member"
	ErrCodeNotGroup        = "not_group"
	ErrCodeUnknownHandle   = "unknown_handle"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeRateLimited     = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
