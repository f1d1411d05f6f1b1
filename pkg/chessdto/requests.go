package chessdto

// RequestMeta identifies who sent a command and where replies go.
type RequestMeta struct {
	UserID string
	Room   string
	Sender string
}
