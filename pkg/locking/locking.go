// Package locking provides mutual exclusion around workflow instance mutations.
package locking

import (
	"context"
	"errors"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker serialises work on a key. Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// InstanceKey is the lock key of a workflow instance.
func InstanceKey(instanceID string) string {
	return "docstates:workflow_instance:" + instanceID
}
