package driven

import "context"

// Notifier defines the driven port for paging moderators with a plain-text alert.
type Notifier interface {
	Alert(ctx context.Context, message string) error
}
