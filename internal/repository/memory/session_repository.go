package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Runtime is whatever lives behind a session id. Close is invoked when the
// entry expires so background work (the transcript poller) is torn down with
// the session.
type Runtime interface {
	Close()
}

// SessionRepository keeps live session runtimes in memory. Sessions have no
// durability: expiry or process exit destroys them.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	// Expired entries are purged every 10 minutes; eviction closes the runtime.
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(_ string, value interface{}) {
		if rt, ok := value.(Runtime); ok {
			rt.Close()
		}
	})
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(sessionId string, rt Runtime) {
	r.cache.Set(sessionId, rt, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionId string) (Runtime, bool) {
	if x, found := r.cache.Get(sessionId); found {
		return x.(Runtime), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionId string) {
	r.cache.Delete(sessionId)
}
