package hub

import "sync"

// Kmutex is a keyed mutex: Lock(key) blocks only other callers locking the
// same key, never callers locking a different one. Adapted from the
// teacher's paymentchannels.Kmutex, generalized from an interface{} key to
// a plain string since every hub channel is addressed by its deposit
// address.
type Kmutex struct {
	locks *sync.Map
}

// NewKmutex returns a ready-to-use Kmutex.
func NewKmutex() Kmutex {
	return Kmutex{locks: &sync.Map{}}
}

// Lock acquires the lock for key, blocking until it is available.
func (k Kmutex) Lock(key string) {
	mu := &sync.Mutex{}
	actual, _ := k.locks.LoadOrStore(key, mu)
	held := actual.(*sync.Mutex)
	held.Lock()
	if held != mu {
		// Lost the race to install this key's mutex; someone else's is
		// now held and may already be unlocked and deleted. Retry.
		held.Unlock()
		k.Lock(key)
		return
	}
}

// Unlock releases the lock for key and removes it from the registry.
func (k Kmutex) Unlock(key string) {
	actual, ok := k.locks.Load(key)
	if !ok {
		panic("hub: unlock of unlocked channel " + key)
	}
	k.locks.Delete(key)
	actual.(*sync.Mutex).Unlock()
}
