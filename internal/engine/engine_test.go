package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/medlink/internal/codebase"
	"github.com/standardbeagle/medlink/internal/types"
)

// countingCodebase wraps Memory and counts Units calls to observe rescans.
type countingCodebase struct {
	*codebase.Memory
	calls int
}

func (c *countingCodebase) Units(ctx context.Context) ([]codebase.Unit, error) {
	c.calls++
	return c.Memory.Units(ctx)
}

func buildCodebase() (*countingCodebase, *types.TypeRef) {
	ping := &types.TypeRef{Name: "Ping", Namespace: "App.Requests", AssemblyName: "App", DeclID: 1}

	mem := codebase.NewMemory()
	mem.AddUnit("App", true).
		AddDecl(&codebase.TypeDecl{
			Ref: ping,
			Declared: []types.InterfaceRef{
				{Name: "IRequest", Namespace: "MediatR"},
			},
			Loc: types.SymbolLocation{FilePath: "Ping.cs", Line: 3},
		}).
		AddDecl(&codebase.TypeDecl{
			Ref: &types.TypeRef{Name: "PingHandler", Namespace: "App.Handlers", AssemblyName: "App", DeclID: 2},
			Declared: []types.InterfaceRef{
				{Name: "IRequestHandler", Namespace: "MediatR", TypeArgs: []*types.TypeRef{ping}},
			},
			Loc: types.SymbolLocation{FilePath: "PingHandler.cs", Line: 8},
			MethodLocs: map[string]types.SymbolLocation{
				"Handle": {FilePath: "PingHandler.cs", Line: 12},
			},
		}).
		AddCall(codebase.CallSite{
			Dispatch:        types.DispatchSend,
			ArgType:         ping,
			EnclosingMethod: "Run",
			EnclosingType:   "Worker",
			Loc:             types.SymbolLocation{FilePath: "Worker.cs", Line: 20},
		})

	return &countingCodebase{Memory: mem}, ping
}

func TestHandlersCached(t *testing.T) {
	cb, ping := buildCodebase()
	e := New(cb, "cb-test", Options{
		FileExists: func(string) bool { return true },
	})
	defer e.Close()

	ctx := context.Background()

	first, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "PingHandler", first[0].Handler.Name)

	scansAfterFirst := cb.calls

	second, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, scansAfterFirst, cb.calls, "second lookup must be served from the cache")
}

func TestHandlersStaleEntryRescans(t *testing.T) {
	cb, ping := buildCodebase()
	exists := true
	e := New(cb, "cb-test", Options{
		FileExists: func(string) bool { return exists },
	})
	defer e.Close()

	ctx := context.Background()

	_, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	scansAfterFirst := cb.calls

	// The backing file disappears; the cached entry must not be served.
	exists = false
	handlers, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	require.Len(t, handlers, 1, "rescan still finds the declaration in the model")
	assert.Greater(t, cb.calls, scansAfterFirst, "stale hit must trigger a rescan")
}

func TestNegativeResultNotCached(t *testing.T) {
	cb, _ := buildCodebase()
	e := New(cb, "cb-test", Options{
		FileExists: func(string) bool { return true },
	})
	defer e.Close()

	ctx := context.Background()
	unknown := &types.TypeRef{Name: "Unknown", Namespace: "App.Requests", AssemblyName: "App", DeclID: 99}

	handlers, err := e.Handlers(ctx, unknown)
	require.NoError(t, err)
	assert.Empty(t, handlers)
	assert.Equal(t, 0, e.Cache().Len(), "empty results must not occupy the cache")
}

func TestHandlerAddedAfterNegativeLookup(t *testing.T) {
	late := &types.TypeRef{Name: "Late", Namespace: "App.Requests", AssemblyName: "App", DeclID: 50}

	mem := codebase.NewMemory()
	unit := mem.AddUnit("App", true)
	cb := &countingCodebase{Memory: mem}

	e := New(cb, "cb-test", Options{
		FileExists: func(string) bool { return true },
	})
	defer e.Close()

	ctx := context.Background()

	handlers, err := e.Handlers(ctx, late)
	require.NoError(t, err)
	require.Empty(t, handlers)

	// A handler appears after the miss; the next lookup must see it because
	// the empty result was never cached.
	unit.AddDecl(&codebase.TypeDecl{
		Ref: &types.TypeRef{Name: "LateHandler", Namespace: "App.Handlers", AssemblyName: "App", DeclID: 51},
		Declared: []types.InterfaceRef{
			{Name: "IRequestHandler", Namespace: "MediatR", TypeArgs: []*types.TypeRef{late}},
		},
		Loc: types.SymbolLocation{FilePath: "LateHandler.cs", Line: 4},
	})

	handlers, err = e.Handlers(ctx, late)
	require.NoError(t, err)
	require.Len(t, handlers, 1)
	assert.Equal(t, "LateHandler", handlers[0].Handler.Name)
}

func TestFrameworkNamespaceOption(t *testing.T) {
	ping := &types.TypeRef{Name: "Ping", Namespace: "App.Requests", AssemblyName: "App", DeclID: 1}

	mem := codebase.NewMemory()
	mem.AddUnit("App", true).
		AddDecl(&codebase.TypeDecl{
			Ref: ping,
			Declared: []types.InterfaceRef{
				{Name: "IRequest", Namespace: "Custom.Mediation"},
			},
			Loc: types.SymbolLocation{FilePath: "Ping.cs", Line: 3},
		}).
		AddDecl(&codebase.TypeDecl{
			Ref: &types.TypeRef{Name: "PingHandler", Namespace: "App.Handlers", AssemblyName: "App", DeclID: 2},
			Declared: []types.InterfaceRef{
				{Name: "IRequestHandler", Namespace: "Custom.Mediation", TypeArgs: []*types.TypeRef{ping}},
			},
			Loc: types.SymbolLocation{FilePath: "PingHandler.cs", Line: 8},
		})
	cb := &countingCodebase{Memory: mem}

	e := New(cb, "cb-test", Options{CacheDisabled: true, FrameworkNamespace: "Custom.Mediation"})
	defer e.Close()

	ctx := context.Background()

	handlers, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	require.Len(t, handlers, 1)
	assert.Equal(t, "PingHandler", handlers[0].Handler.Name)

	// The same codebase under the default namespace yields nothing.
	d := New(cb, "cb-test", Options{CacheDisabled: true})
	defer d.Close()
	handlers, err = d.Handlers(ctx, ping)
	require.NoError(t, err)
	assert.Empty(t, handlers)
}

func TestCacheDisabled(t *testing.T) {
	cb, ping := buildCodebase()
	e := New(cb, "cb-test", Options{CacheDisabled: true})
	defer e.Close()

	ctx := context.Background()
	handlers, err := e.Handlers(ctx, ping)
	require.NoError(t, err)
	require.Len(t, handlers, 1)
	assert.Nil(t, e.Cache())
}

func TestUsages(t *testing.T) {
	cb, ping := buildCodebase()
	e := New(cb, "cb-test", Options{CacheDisabled: true})
	defer e.Close()

	usages, err := e.Usages(context.Background(), ping)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, "Worker", usages[0].TypeName)
	assert.Equal(t, types.DispatchSend, usages[0].Dispatch)
}

func TestLookupRequest(t *testing.T) {
	cb, _ := buildCodebase()
	e := New(cb, "cb-test", Options{CacheDisabled: true})
	defer e.Close()

	ctx := context.Background()

	t.Run("simple name", func(t *testing.T) {
		ref, roles, err := e.LookupRequest(ctx, "Ping")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "App.Requests.Ping", ref.DisplayString())
		require.Len(t, roles, 1)
		assert.Equal(t, types.RoleCommand, roles[0].Role)
	})

	t.Run("qualified name", func(t *testing.T) {
		ref, _, err := e.LookupRequest(ctx, "App.Requests.Ping")
		require.NoError(t, err)
		require.NotNil(t, ref)
	})

	t.Run("unknown name", func(t *testing.T) {
		ref, roles, err := e.LookupRequest(ctx, "Nope")
		require.NoError(t, err)
		assert.Nil(t, ref)
		assert.Empty(t, roles)
	})
}

func TestRequestNames(t *testing.T) {
	cb, _ := buildCodebase()
	e := New(cb, "cb-test", Options{CacheDisabled: true})
	defer e.Close()

	names, err := e.RequestNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ping"}, names)
}

func TestScanStats(t *testing.T) {
	cb, _ := buildCodebase()
	e := New(cb, "cb-test", Options{CacheDisabled: true})
	defer e.Close()

	stats, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Units)
	assert.Equal(t, 1, stats.FrameworkUnits)
	assert.Equal(t, 2, stats.Types)
	assert.Equal(t, 1, stats.RequestTypes)
	assert.Equal(t, 1, stats.HandlerTypes)
	assert.Equal(t, 1, stats.CallSites)
}

func TestClosePersistsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	cb, ping := buildCodebase()
	e := New(cb, "cb-test", Options{
		CachePath:  path,
		FileExists: func(string) bool { return true },
	})

	_, err := e.Handlers(context.Background(), ping)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// A fresh engine over the same codebase ID restores the entry.
	cb2, _ := buildCodebase()
	e2 := New(cb2, "cb-test", Options{
		CachePath:  path,
		FileExists: func(string) bool { return true },
	})
	defer e2.Close()
	assert.Equal(t, 1, e2.Cache().Len())
}
