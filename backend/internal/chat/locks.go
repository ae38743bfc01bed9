package chat

import (
	"hash/fnv"
	"sync"
)

// userLocks serializes graph-mode turns per user so one turn's
// retrieve-then-write window cannot interleave with another turn of
// the same user. Locks are striped over a fixed pool, so memory stays
// bounded no matter how many user ids pass through; unrelated users
// sharing a stripe just contend occasionally.
type userLocks struct {
	stripes []sync.Mutex
}

func newUserLocks(n int) *userLocks {
	if n <= 0 {
		n = 64
	}
	return &userLocks{stripes: make([]sync.Mutex, n)}
}

func (l *userLocks) forUser(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}
