package store

import (
	"context"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/notify"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Session bundles what one visitor owns: its store and its toast board.
type Session struct {
	ID    string
	Store *Store
	Board *notify.Board

	lastUsed time.Time
}

type RegistryOptions struct {
	Keys         Keys
	DismissAfter time.Duration
	// Notifier receives every notification in addition to the session board.
	Notifier notify.Notifier
	// OnChange is called after every mutation of any session.
	OnChange func(sessionID string, snap model.Snapshot)
	// Shared reloads a cached session from storage on every Get, for
	// backends that other instances write to as well.
	Shared bool
	Log    *logrus.Logger
}

// loadTimeout bounds a session load that is detached from the caller.
const loadTimeout = 10 * time.Second

// Registry hands out one Session per visitor id. A session is loaded from
// storage on first use; concurrent first uses share one load. Without
// Shared, the cached session is the source of truth, which holds only while
// a single instance writes to the backend.
type Registry struct {
	kv   storage.KV
	opts RegistryOptions
	sf   singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(kv storage.KV, opts RegistryOptions) *Registry {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Registry{
		kv:       kv,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastUsed = time.Now()
		r.mu.Unlock()
		if r.opts.Shared {
			if err := s.Store.Load(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	r.mu.Unlock()

	// 聚合同一会话的并发加载
	v, err, _ := r.sf.Do(id, func() (interface{}, error) {
		r.mu.Lock()
		if s, ok := r.sessions[id]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		// the load is shared by every waiter, so it must not die with the
		// first caller's request
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		s := r.newSession(id)
		if err := s.Store.Load(loadCtx); err != nil {
			return nil, err
		}

		r.mu.Lock()
		s.lastUsed = time.Now()
		r.sessions[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) newSession(id string) *Session {
	log := r.opts.Log.WithField("session", id)
	board := notify.NewBoard(r.opts.DismissAfter)

	notifiers := notify.Multi{board}
	if r.opts.Notifier != nil {
		notifiers = append(notifiers, r.opts.Notifier)
	}
	opts := Options{
		Keys:     r.opts.Keys,
		Notifier: notifiers,
		Log:      log,
	}
	if r.opts.OnChange != nil {
		onChange := r.opts.OnChange
		opts.OnChange = func(snap model.Snapshot) { onChange(id, snap) }
	}
	st := New(storage.Namespace(r.kv, id), opts)
	return &Session{ID: id, Store: st, Board: board}
}

// Len reports how many sessions are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than idle. Their state stays in
// storage and is loaded again on the next request.
func (r *Registry) Sweep(idle time.Duration) int {
	threshold := time.Now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.lastUsed.Before(threshold) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// StartJanitor sweeps idle sessions every interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, wg *sync.WaitGroup, interval, idle time.Duration) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.opts.Log.Info("[Janitor] Shutting down")
				return
			case <-ticker.C:
				if n := r.Sweep(idle); n > 0 {
					r.opts.Log.Debugf("[Janitor] evicted %d idle sessions", n)
				}
			}
		}
	}()
}
