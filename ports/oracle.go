package ports

import "context"

// Oracle answers a single free-text reasoning prompt. Implementations
// own throttling/backoff; callers see only the final outcome.
type Oracle interface {
	Ask(ctx context.Context, prompt string) (string, error)
}
