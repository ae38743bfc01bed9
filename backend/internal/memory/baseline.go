package memory

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"graphrag/backend/pkg/logger"
)

// BaselineMemory is the non-graph comparison strategy: a short-term
// buffer of the last few raw messages per user. Nothing persists;
// restarts lose all of it. User buffers live in a bounded LRU so a
// long-running process with many users cannot grow without limit.
// Evicting a user drops their whole buffer.
type BaselineMemory struct {
	mu      sync.Mutex
	users   *lru.Cache[string, []string]
	perUser int
	logger  *zap.Logger
}

// NewBaselineMemory creates a baseline memory keeping perUser messages
// for each of at most maxUsers users
func NewBaselineMemory(perUser, maxUsers int) (*BaselineMemory, error) {
	users, err := lru.New[string, []string](maxUsers)
	if err != nil {
		return nil, err
	}
	return &BaselineMemory{
		users:   users,
		perUser: perUser,
		logger:  logger.Get(),
	}, nil
}

// AppendAndGet records the message in the user's buffer and returns
// the buffer including it, oldest first. Appending past capacity
// evicts exactly the oldest message.
func (m *BaselineMemory) AppendAndGet(userID, message string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, _ := m.users.Get(userID)
	buf = append(buf, message)
	if len(buf) > m.perUser {
		buf = buf[len(buf)-m.perUser:]
	}
	m.users.Add(userID, buf)

	out := make([]string, len(buf))
	copy(out, buf)
	return out
}

// History returns the user's buffered messages, oldest first, without
// recording anything
func (m *BaselineMemory) History(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, _ := m.users.Get(userID)
	out := make([]string, len(buf))
	copy(out, buf)
	return out
}

// UserCount returns how many users currently hold a buffer
func (m *BaselineMemory) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users.Len()
}
