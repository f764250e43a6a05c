package mute

import "sync"

// memberLocks serializes operations per member. Entries are reference
// counted and dropped when the last holder leaves, so the map only holds
// members with in-flight operations.
type memberLocks struct {
	mu sync.Mutex
	m  map[int64]*memberLock
}

type memberLock struct {
	sync.Mutex
	refs int
}

func (l *memberLocks) lock(id int64) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = map[int64]*memberLock{}
	}
	ml := l.m[id]
	if ml == nil {
		ml = &memberLock{}
		l.m[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
