// Package csharp is the tree-sitter backend for the codebase abstraction:
// it discovers .csproj units under a workspace root, parses their C# files
// and produces type declarations and dispatch call sites.
package csharp

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/medlink/internal/classify"
	"github.com/standardbeagle/medlink/internal/codebase"
	naverrors "github.com/standardbeagle/medlink/internal/errors"
	"github.com/standardbeagle/medlink/internal/types"
)

// frameworkMarkers are byte patterns whose absence from every file of a unit
// proves the unit cannot declare a conforming handler or dispatch site. The
// scan is a performance filter only.
var frameworkMarkers = [][]byte{
	[]byte("MediatR"),
	[]byte("IRequest"),
	[]byte("INotification"),
	[]byte("IMediator"),
	[]byte("ISender"),
	[]byte("IPublisher"),
}

// DefaultMaxFileSize bounds how large a source file the scanner will read.
const DefaultMaxFileSize int64 = 4 * 1024 * 1024

// Options configures workspace discovery.
type Options struct {
	// Include restricts scanning to files matching any of these doublestar
	// globs (relative to the root, forward slashes). Empty means all .cs.
	Include []string

	// Exclude drops files matching any of these globs. bin/ and obj/ output
	// directories are always excluded.
	Exclude []string

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64

	// Workers bounds parse parallelism across units; zero means one per CPU.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Workspace is a C# codebase rooted at a directory. It implements
// codebase.Codebase. Parsing happens once, on the first Units call.
type Workspace struct {
	root string
	opts Options

	loadOnce sync.Once
	loadErr  error
	units    []*Unit

	// registry maps simple type names to their declarations across the
	// whole workspace, for name resolution.
	registry map[string][]*codebase.TypeDecl

	declSeq atomic.Uint64
}

// Open creates a workspace rooted at dir. Discovery and parsing are
// deferred to the first Units call.
func Open(dir string, opts Options) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, naverrors.Workspace("open", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, naverrors.Workspace("open", abs, err)
	}
	if !info.IsDir() {
		return nil, naverrors.Workspace("open", abs, os.ErrInvalid)
	}
	return &Workspace{
		root:     abs,
		opts:     opts.withDefaults(),
		registry: make(map[string][]*codebase.TypeDecl),
	}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Units implements codebase.Codebase.
func (w *Workspace) Units(ctx context.Context) ([]codebase.Unit, error) {
	w.loadOnce.Do(func() {
		w.loadErr = w.load(ctx)
	})
	if w.loadErr != nil {
		return nil, w.loadErr
	}
	units := make([]codebase.Unit, len(w.units))
	for i, u := range w.units {
		units[i] = u
	}
	return units, nil
}

// ID returns a stable identifier for this codebase: a hash of the root path
// and the sorted unit project paths. It keys the persisted cache to the
// workspace it was built from.
func (w *Workspace) ID() string {
	h := xxhash.New()
	_, _ = h.WriteString(w.root)

	projects, _ := w.findProjectFiles()
	sort.Strings(projects)
	for _, p := range projects {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(p)
	}
	return "cs-" + strconvHex(h.Sum64())
}

func strconvHex(v uint64) string {
	const digits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

// load discovers units and parses every retained file.
func (w *Workspace) load(ctx context.Context) error {
	projects, err := w.findProjectFiles()
	if err != nil {
		return err
	}

	csFiles, err := w.findSourceFiles()
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		// No project files: the whole root is one unit named after the
		// directory.
		unit := newUnit(filepath.Base(w.root), w.root)
		unit.files = csFiles
		w.units = []*Unit{unit}
	} else {
		sort.Strings(projects)
		units := make([]*Unit, 0, len(projects))
		dirToUnit := make(map[string]*Unit, len(projects))
		for _, proj := range projects {
			unit := newUnit(assemblyNameFromProject(proj), filepath.Dir(proj))
			units = append(units, unit)
			dirToUnit[unit.dir] = unit
		}

		// Assign each source file to the unit with the longest matching
		// directory prefix; files outside every project directory belong
		// to no unit and are skipped.
		for _, file := range csFiles {
			var best *Unit
			for dir, unit := range dirToUnit {
				if !strings.HasPrefix(file, dir+string(filepath.Separator)) {
					continue
				}
				if best == nil || len(dir) > len(best.dir) {
					best = unit
				}
			}
			if best != nil {
				best.files = append(best.files, file)
			}
		}
		w.units = units
	}

	// Marker prefilter and parse fan out across units; each goroutine only
	// touches its own unit.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)
	for _, unit := range w.units {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return naverrors.ScanCancelled(err)
			}
			unit.refsFramework = w.scanForMarkers(unit.files)
			if !unit.refsFramework {
				return nil
			}
			return w.parseUnit(gctx, unit)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return naverrors.ScanCancelled(err)
	}

	var allDecls []*codebase.TypeDecl
	for _, unit := range w.units {
		allDecls = append(allDecls, unit.decls...)
	}

	for _, d := range allDecls {
		w.registry[d.Ref.Name] = append(w.registry[d.Ref.Name], d)
	}

	codebase.ResolveTransitiveInterfaces(allDecls)

	// Second pass: with the registry complete, bind interface type
	// arguments and call-site argument types to their declarations.
	for _, unit := range w.units {
		if !unit.refsFramework {
			continue
		}
		w.bindUnit(unit)
	}

	return nil
}

// findProjectFiles locates every .csproj under the root.
func (w *Workspace) findProjectFiles() ([]string, error) {
	var projects []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if d.IsDir() {
			if w.isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".csproj") {
			projects = append(projects, path)
		}
		return nil
	})
	if err != nil {
		return nil, naverrors.Workspace("discover", w.root, err)
	}
	return projects, nil
}

// findSourceFiles locates every retained .cs file under the root.
func (w *Workspace) findSourceFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".cs") {
			return nil
		}
		if !w.retainFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, naverrors.Workspace("discover", w.root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (w *Workspace) isExcludedDir(name string) bool {
	switch name {
	case "bin", "obj", ".git", ".vs", "node_modules":
		return true
	}
	return false
}

// retainFile applies include/exclude globs against the root-relative path.
func (w *Workspace) retainFile(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	if len(w.opts.Include) == 0 {
		return true
	}
	for _, pattern := range w.opts.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// scanForMarkers reports whether any file mentions a framework marker. Reads
// raw bytes; no parsing.
func (w *Workspace) scanForMarkers(files []string) bool {
	for _, file := range files {
		data, err := w.readSource(file)
		if err != nil {
			continue
		}
		for _, marker := range frameworkMarkers {
			if bytes.Contains(data, marker) {
				return true
			}
		}
	}
	return false
}

func (w *Workspace) readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > w.opts.MaxFileSize {
		return nil, os.ErrInvalid
	}
	return os.ReadFile(path)
}

// parseUnit parses every file of a unit into declarations and raw call
// sites. Files that fail to read or parse are skipped; partial information
// is the normal case.
func (w *Workspace) parseUnit(ctx context.Context, unit *Unit) error {
	for _, file := range unit.files {
		if err := ctx.Err(); err != nil {
			return naverrors.ScanCancelled(err)
		}
		data, err := w.readSource(file)
		if err != nil {
			continue
		}
		model, err := extractFile(file, data, unit.assembly, w.allocDeclIDs)
		if err != nil {
			continue
		}
		unit.decls = append(unit.decls, model.decls...)
		unit.rawCalls = append(unit.rawCalls, model.calls...)
		unit.fileUsings[file] = model.usings
	}
	return nil
}

// allocDeclIDs hands out workspace-unique declaration IDs; units parse in
// parallel, so the counter is atomic.
func (w *Workspace) allocDeclIDs() types.DeclID {
	return types.DeclID(w.declSeq.Add(1))
}

// bindUnit resolves names recorded during extraction against the workspace
// registry: interface type arguments and call-site argument types.
func (w *Workspace) bindUnit(unit *Unit) {
	for _, d := range unit.decls {
		w.bindInterfaceArgs(d.Declared, d)
		w.bindInterfaceArgs(d.All, d)
	}
	for _, raw := range unit.rawCalls {
		if !raw.dispatcherKnown && !w.implementsDispatcher(raw.receiverType, raw.namespace, raw.usings) {
			continue
		}
		call := codebase.CallSite{
			Dispatch:        raw.dispatch,
			EnclosingMethod: raw.method,
			EnclosingType:   raw.typeName,
			Loc:             raw.loc,
			Context:         raw.context,
		}
		if raw.argTypeName != "" {
			call.ArgType = w.resolveTypeName(raw.argTypeName, raw.namespace, raw.usings)
		}
		unit.calls = append(unit.calls, call)
	}
}

// bindInterfaceArgs upgrades interface type arguments that were extracted
// as bare names into registry-bound references where possible.
func (w *Workspace) bindInterfaceArgs(ifaces []types.InterfaceRef, owner *codebase.TypeDecl) {
	for i := range ifaces {
		for j, arg := range ifaces[i].TypeArgs {
			if arg == nil || arg.DeclID != 0 {
				continue
			}
			bound := w.resolveTypeName(arg.DisplayString(), owner.Ref.Namespace, ifaces[i].ImportedNamespaces)
			if bound != nil {
				ifaces[i].TypeArgs[j] = bound
			}
		}
	}
}

// implementsDispatcher reports whether the named receiver type resolves to a
// workspace declaration whose interface closure reaches a framework
// dispatcher role. Covers application wrappers like IAppMediator : IMediator.
func (w *Workspace) implementsDispatcher(name, fromNamespace string, usings []string) bool {
	start := w.lookupDecl(name, fromNamespace, usings)
	if start == nil {
		return false
	}

	visited := make(map[*codebase.TypeDecl]bool)
	queue := []*codebase.TypeDecl{start}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if visited[d] {
			continue
		}
		visited[d] = true

		for _, iface := range d.Interfaces() {
			if classify.IsDispatcherType(iface.Name) {
				return true
			}
			if next := w.lookupDecl(iface.Name, d.Ref.Namespace, iface.ImportedNamespaces); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return false
}

// lookupDecl resolves an unqualified type name to its declaration, with the
// same preference order resolveTypeName uses: the referencing namespace,
// then an imported namespace, then a unique workspace-wide match.
func (w *Workspace) lookupDecl(name, fromNamespace string, usings []string) *codebase.TypeDecl {
	candidates := w.registry[name]
	for _, d := range candidates {
		if d.Ref.Namespace == fromNamespace {
			return d
		}
	}
	for _, d := range candidates {
		for _, ns := range usings {
			if d.Ref.Namespace == ns {
				return d
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	return nil
}

// resolveTypeName binds a source-level type name to a declaration reference.
// Qualified names match on display string; unqualified names prefer the
// referencing file's namespace, then an imported namespace, then a unique
// workspace-wide match. An unbindable name degrades to a bare reference,
// which the identity resolver treats as "never a match".
func (w *Workspace) resolveTypeName(name, fromNamespace string, usings []string) *types.TypeRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		simple := name[idx+1:]
		for _, d := range w.registry[simple] {
			if d.Ref.DisplayString() == name {
				return d.Ref
			}
		}
		return types.ParseDisplayString(name, "")
	}

	candidates := w.registry[name]
	for _, d := range candidates {
		if d.Ref.Namespace == fromNamespace {
			return d.Ref
		}
	}
	for _, d := range candidates {
		for _, ns := range usings {
			if d.Ref.Namespace == ns {
				return d.Ref
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0].Ref
	}
	return &types.TypeRef{Name: name}
}

// Unit is one C# project. It implements codebase.Unit.
type Unit struct {
	assembly string
	dir      string
	files    []string

	refsFramework bool
	decls         []*codebase.TypeDecl
	rawCalls      []rawCall
	calls         []codebase.CallSite
	fileUsings    map[string][]string
}

func newUnit(assembly, dir string) *Unit {
	return &Unit{
		assembly:   assembly,
		dir:        dir,
		fileUsings: make(map[string][]string),
	}
}

// Name implements codebase.Unit.
func (u *Unit) Name() string { return u.assembly }

// ReferencesFramework implements codebase.Unit.
func (u *Unit) ReferencesFramework() bool { return u.refsFramework }

// TypeDecls implements codebase.Unit.
func (u *Unit) TypeDecls() ([]*codebase.TypeDecl, error) { return u.decls, nil }

// CallSites implements codebase.Unit.
func (u *Unit) CallSites() ([]codebase.CallSite, error) { return u.calls, nil }

// Files returns the unit's source files.
func (u *Unit) Files() []string { return u.files }
