package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// ErrDocumentBusy is returned when another request holds the document lock.
var ErrDocumentBusy = fmt.Errorf("%w: document is being processed by another request", shared.ErrInvalidStateTransition)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// DocumentLocker is a redis SET NX lock keyed by document. Row locks in the
// database still serialize postings; this lock only rejects concurrent
// submissions of the same document early.
type DocumentLocker struct {
	client *redis.Client
}

// NewDocumentLocker constructs DocumentLocker.
func NewDocumentLocker(client *redis.Client) *DocumentLocker {
	return &DocumentLocker{client: client}
}

// Acquire takes key for ttl. The returned release only deletes the key while
// it still holds this holder's token.
func (l *DocumentLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("posting: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentBusy, key)
	}
	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("posting: release %s: %w", key, err)
		}
		return nil
	}, nil
}
