package chessdto

// User-facing error codes. The formatter maps each one to an error.* catalog key.
const (
	CodeNoSession      = "no_session"
	CodeAlreadyActive  = "already_active"
	CodeExpired        = "expired"
	CodeNotYourTurn    = "not_your_turn"
	CodeEmptyMove      = "empty_move"
	CodeIllegalMove    = "illegal_move"
	CodeBadSide        = "bad_side"
	CodeBotUnavailable = "bot_unavailable"
	CodeInternal       = "internal"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}
