package cache

import (
	"context"
	"sync"
)

// Invalidator drops cached entities after a write. A deferred invalidator
// queues the keys until Flush so a transaction can invalidate once it has
// committed; Discard forgets them on rollback.
type Invalidator struct {
	cm       *CacheManager
	deferred bool

	mu      sync.Mutex
	pending map[*CacheHelper][]string
}

func NewInvalidator(cm *CacheManager) *Invalidator {
	return &Invalidator{cm: cm}
}

func NewDeferredInvalidator(cm *CacheManager) *Invalidator {
	return &Invalidator{cm: cm, deferred: true, pending: make(map[*CacheHelper][]string)}
}

func (i *Invalidator) Test(ctx context.Context, testID string) {
	i.drop(ctx, i.cm.Test, IDKey(testID))
}

func (i *Invalidator) Question(ctx context.Context, questionIDs ...string) {
	keys := make([]string, 0, len(questionIDs))
	for _, id := range questionIDs {
		keys = append(keys, IDKey(id))
	}
	i.drop(ctx, i.cm.Question, keys...)
}

func (i *Invalidator) Group(ctx context.Context, groupID string) {
	i.drop(ctx, i.cm.Group, IDKey(groupID))
}

func (i *Invalidator) drop(ctx context.Context, helper *CacheHelper, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if !i.deferred {
		SafeDelete(ctx, helper, keys...)
		return
	}
	i.mu.Lock()
	i.pending[helper] = append(i.pending[helper], keys...)
	i.mu.Unlock()
}

// Flush deletes every queued key
func (i *Invalidator) Flush(ctx context.Context) {
	i.mu.Lock()
	pending := i.pending
	i.pending = make(map[*CacheHelper][]string)
	i.mu.Unlock()

	for helper, keys := range pending {
		SafeDelete(ctx, helper, keys...)
	}
}

func (i *Invalidator) Discard() {
	i.mu.Lock()
	i.pending = make(map[*CacheHelper][]string)
	i.mu.Unlock()
}

// AfterCommit runs txn with a deferred invalidator and flushes it only when txn
// returns nil, which for a database transaction means it has committed.
func AfterCommit(ctx context.Context, cm *CacheManager, txn func(inv *Invalidator) error) error {
	inv := NewDeferredInvalidator(cm)
	if err := txn(inv); err != nil {
		inv.Discard()
		return err
	}
	inv.Flush(ctx)
	return nil
}
