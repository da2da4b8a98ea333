package core

import "sync"

// instanceLocks serializes lifecycle operations per server instance so a
// start cannot race a delete on the same server. Locks are never removed;
// the map is bounded by the fleet ceiling.
type instanceLocks struct {
	locks sync.Map
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{}
}

// Lock acquires the mutex for the given server id and returns its unlock
// function.
func (l *instanceLocks) Lock(serverID string) func() {
	mu, _ := l.locks.LoadOrStore(serverID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}
