// Package transport holds the small set of outbound messaging types shared by
// the log sinks and the concrete chat adapters.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers a plain text message to a chat.
// Implementations must be safe for concurrent use.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
