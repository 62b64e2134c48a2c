package ports

import "context"

// Locker serializes scheduled triggers across instances.
type Locker interface {
	// TryLock acquires key for the locker's TTL. ok is false when another
	// holder owns it.
	// unlock releases the lock only if it is still ours.
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, ok bool, err error)
}
