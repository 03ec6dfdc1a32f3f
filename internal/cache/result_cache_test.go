package cache

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/standardbeagle/medlink/internal/types"
)

func testHandler(name, file string) types.HandlerDescriptor {
	return types.HandlerDescriptor{
		Handler:  &types.TypeRef{Name: name, Namespace: "App.Handlers", AssemblyName: "App"},
		Request:  &types.TypeRef{Name: "Ping", Namespace: "App.Requests", AssemblyName: "App"},
		Role:     types.RoleCommand,
		Location: types.SymbolLocation{FilePath: file, Line: 10, Column: 5},
	}
}

func TestGetPut(t *testing.T) {
	c := New("cb-1", Options{})

	t.Run("miss on empty cache", func(t *testing.T) {
		if _, ok := c.Get("App.Requests.Ping, App"); ok {
			t.Fatal("unexpected hit")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		c.Put("App.Requests.Ping, App", []types.HandlerDescriptor{testHandler("PingHandler", "PingHandler.cs")})
		got, ok := c.Get("App.Requests.Ping, App")
		if !ok || len(got) != 1 {
			t.Fatalf("got %v %v", got, ok)
		}
		if got[0].Handler.Name != "PingHandler" {
			t.Fatalf("got %+v", got[0])
		}
	})

	t.Run("hit returns a copy", func(t *testing.T) {
		got, _ := c.Get("App.Requests.Ping, App")
		got[0] = types.HandlerDescriptor{}
		again, _ := c.Get("App.Requests.Ping, App")
		if again[0].Handler == nil {
			t.Fatal("caller mutation leaked into the cache")
		}
	})

	t.Run("empty results are never stored", func(t *testing.T) {
		c.Put("App.Requests.Missing, App", nil)
		c.Put("App.Requests.Missing, App", []types.HandlerDescriptor{})
		if _, ok := c.Get("App.Requests.Missing, App"); ok {
			t.Fatal("negative result must not be cached")
		}
	})

	t.Run("empty identity is rejected", func(t *testing.T) {
		c.Put("", []types.HandlerDescriptor{testHandler("X", "X.cs")})
		if _, ok := c.Get(""); ok {
			t.Fatal("empty identity must never hit")
		}
	})
}

func TestInvalidate(t *testing.T) {
	c := New("cb-1", Options{})
	c.Put("a", []types.HandlerDescriptor{testHandler("A", "A.cs")})
	c.Put("b", []types.HandlerDescriptor{testHandler("B", "B.cs")})
	c.Put("c", []types.HandlerDescriptor{testHandler("C", "A.cs")})

	t.Run("single identity", func(t *testing.T) {
		c.Invalidate("b")
		if _, ok := c.Get("b"); ok {
			t.Fatal("entry survived invalidation")
		}
	})

	t.Run("by file drops every entry backed by it", func(t *testing.T) {
		if n := c.InvalidateFile("A.cs"); n != 2 {
			t.Fatalf("dropped %d entries, want 2", n)
		}
		if c.Len() != 0 {
			t.Fatalf("got %d entries, want 0", c.Len())
		}
	})

	t.Run("clear empties everything", func(t *testing.T) {
		c.Put("a", []types.HandlerDescriptor{testHandler("A", "A.cs")})
		c.Clear()
		if c.Len() != 0 {
			t.Fatal("clear left entries behind")
		}
	})
}

func TestSweep(t *testing.T) {
	existing := map[string]bool{"Alive.cs": true}
	c := New("cb-1", Options{
		ValidateThreshold: time.Nanosecond,
		FileExists:        func(path string) bool { return existing[path] },
	})

	c.Put("alive", []types.HandlerDescriptor{testHandler("Alive", "Alive.cs")})
	c.Put("stale", []types.HandlerDescriptor{testHandler("Stale", "Gone.cs")})
	time.Sleep(2 * time.Nanosecond)

	if purged := c.Sweep(); purged != 1 {
		t.Fatalf("purged %d entries, want 1", purged)
	}
	if _, ok := c.Get("stale"); ok {
		t.Fatal("stale entry survived the sweep")
	}
	if _, ok := c.Get("alive"); !ok {
		t.Fatal("live entry was purged")
	}
}

func TestSweepRespectsValidateThreshold(t *testing.T) {
	c := New("cb-1", Options{
		ValidateThreshold: time.Hour,
		FileExists:        func(string) bool { return false },
	})
	c.Put("fresh", []types.HandlerDescriptor{testHandler("Fresh", "Gone.cs")})

	if purged := c.Sweep(); purged != 0 {
		t.Fatalf("purged %d entries, want 0 inside the threshold", purged)
	}
}

func TestSweeperLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New("cb-1", Options{SweepInterval: 10 * time.Millisecond})
	c.StartSweeper()
	time.Sleep(25 * time.Millisecond)
	c.Stop()

	// Stop is idempotent.
	c.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	c := New("cb-1", Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("shared", []types.HandlerDescriptor{testHandler("H", "H.cs")})
				c.Get("shared")
				c.InvalidateFile("H.cs")
				c.Sweep()
			}
		}()
	}
	wg.Wait()
}
