package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"
)

type countingKV struct {
	storage.KV
	gets int64
}

func (c *countingKV) Get(ctx context.Context, key string) (string, error) {
	atomic.AddInt64(&c.gets, 1)
	time.Sleep(5 * time.Millisecond)
	return c.KV.Get(ctx, key)
}

func TestRegistrySessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	reg := NewRegistry(kv, RegistryOptions{Log: quietLogger(), DismissAfter: time.Minute})

	a, err := reg.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Get(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	_ = a.Store.AddItem(ctx, "1", "Red roses", 2500)

	if b.Store.Snapshot().Count != 0 {
		t.Fatalf("session b sees session a's cart")
	}
	if len(a.Board.Pending()) != 1 || len(b.Board.Pending()) != 0 {
		t.Fatalf("notifications leaked between boards")
	}
	if _, err := kv.Get(ctx, "a:"+DefaultCartKey); err != nil {
		t.Fatalf("expected namespaced cart key, got %v", err)
	}

	again, _ := reg.Get(ctx, "a")
	if again != a {
		t.Fatalf("expected cached session")
	}
}

func TestRegistryCollapsesConcurrentLoads(t *testing.T) {
	kv := &countingKV{KV: storage.NewMemory()}
	reg := NewRegistry(kv, RegistryOptions{Log: quietLogger()})

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Get(context.Background(), "same")
			if err != nil {
				t.Error(err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatalf("expected every caller to get the same session")
		}
	}
	// one load reads the cart key and the user key
	if n := atomic.LoadInt64(&kv.gets); n != 2 {
		t.Fatalf("expected 2 storage reads, got %d", n)
	}
}

func TestRegistrySweepReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	var refreshed []string
	var mu sync.Mutex
	reg := NewRegistry(kv, RegistryOptions{
		Log: quietLogger(),
		OnChange: func(id string, snap model.Snapshot) {
			mu.Lock()
			refreshed = append(refreshed, id)
			mu.Unlock()
		},
	})

	s, _ := reg.Get(ctx, "visitor")
	_ = s.Store.AddItem(ctx, "2", "Orchid", 3200)

	time.Sleep(2 * time.Millisecond)
	if n := reg.Sweep(time.Millisecond); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry")
	}

	reloaded, err := reg.Get(ctx, "visitor")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded == s {
		t.Fatalf("expected a fresh session after sweep")
	}
	if reloaded.Store.Snapshot().Count != 1 {
		t.Fatalf("expected cart to be reloaded from storage")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(refreshed) != 1 || refreshed[0] != "visitor" {
		t.Fatalf("unexpected refresh calls %v", refreshed)
	}
}

func TestRegistryJanitorStops(t *testing.T) {
	reg := NewRegistry(storage.NewMemory(), RegistryOptions{Log: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	reg.StartJanitor(ctx, &wg, time.Millisecond, time.Hour)
	cancel()
	wg.Wait()
}

// ctxKV fails every call whose context is already done, like a network backend.
type ctxKV struct{ storage.KV }

func (c ctxKV) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.KV.Get(ctx, key)
}

func TestRegistryLoadIgnoresCallerCancel(t *testing.T) {
	kv := storage.NewMemory()
	_ = kv.Set(context.Background(), "gone:"+DefaultCartKey, `[{"id":"1","name":"Red roses","price":2500,"quantity":1}]`)
	reg := NewRegistry(ctxKV{kv}, RegistryOptions{Log: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := reg.Get(ctx, "gone")
	if err != nil {
		t.Fatalf("expected load to finish after the caller left, got %v", err)
	}
	if s.Store.Snapshot().Count != 1 {
		t.Fatalf("expected the stored cart to be loaded")
	}
}

func TestRegistrySharedReloadsOnGet(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	a := NewRegistry(kv, RegistryOptions{Log: quietLogger(), Shared: true})
	b := NewRegistry(kv, RegistryOptions{Log: quietLogger(), Shared: true})

	sa, _ := a.Get(ctx, "visitor")
	_ = sa.Store.AddItem(ctx, "1", "Red roses", 2500)

	sb, err := b.Get(ctx, "visitor")
	if err != nil {
		t.Fatal(err)
	}
	_ = sb.Store.AddItem(ctx, "1", "Red roses", 2500)

	sa, err = a.Get(ctx, "visitor")
	if err != nil {
		t.Fatal(err)
	}
	if n := sa.Store.Snapshot().Count; n != 2 {
		t.Fatalf("expected instance a to see both adds, got count %d", n)
	}
}
