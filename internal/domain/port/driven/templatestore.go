package driven

import "context"

// TemplateStore defines the driven port for deployment-specific message
// template overrides. found is false when no override exists for name.
type TemplateStore interface {
	GetOverride(ctx context.Context, name string) (text string, found bool, err error)
}
