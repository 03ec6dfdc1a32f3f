package csharp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/medlink/internal/classify"
	"github.com/standardbeagle/medlink/internal/identity"
	"github.com/standardbeagle/medlink/internal/index"
	"github.com/standardbeagle/medlink/internal/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const appProject = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <AssemblyName>App</AssemblyName>
  </PropertyGroup>
</Project>
`

func buildWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "src/App/App.csproj", appProject)
	writeFile(t, root, "src/App/Requests/Ping.cs", `
using MediatR;

namespace App.Requests
{
    public class Ping : IRequest<Pong> { }
    public class Pong { }
}
`)
	writeFile(t, root, "src/App/Handlers/PingHandler.cs", `
using MediatR;
using App.Requests;

namespace App.Handlers
{
    public class PingHandler : IRequestHandler<Ping, Pong>
    {
        public Task<Pong> Handle(Ping request, CancellationToken cancellationToken)
        {
            return Task.FromResult(new Pong());
        }
    }
}
`)
	writeFile(t, root, "src/App/Services/OrderService.cs", `
using MediatR;
using App.Requests;

namespace App.Services
{
    public class OrderService
    {
        private readonly IMediator _mediator;

        public OrderService(IMediator mediator)
        {
            _mediator = mediator;
        }

        public async Task Run()
        {
            var ping = new Ping();
            await _mediator.Send(ping);
        }
    }
}
`)
	// A second project that never touches the framework.
	writeFile(t, root, "src/Tools/Tools.csproj", `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
	writeFile(t, root, "src/Tools/Formatter.cs", `
namespace Tools
{
    public class Formatter { }
}
`)

	ws, err := Open(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestWorkspaceUnits(t *testing.T) {
	ws := buildWorkspace(t)

	units, err := ws.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}

	byName := map[string]bool{}
	for _, u := range units {
		byName[u.Name()] = u.ReferencesFramework()
	}
	if !byName["App"] {
		t.Fatal("App unit must reference the framework")
	}
	if refs, ok := byName["Tools"]; !ok || refs {
		t.Fatalf("Tools unit: ok=%v refs=%v, want present and not referencing", ok, refs)
	}
}

func TestWorkspaceBindsHandlerToRequestDecl(t *testing.T) {
	ws := buildWorkspace(t)

	units, err := ws.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var pingID types.DeclID
	var handlerArg *types.TypeRef
	for _, u := range units {
		decls, _ := u.TypeDecls()
		for _, d := range decls {
			switch d.Ref.Name {
			case "Ping":
				pingID = d.Ref.DeclID
			case "PingHandler":
				handlerArg = d.Declared[0].TypeArgs[0]
			}
		}
	}

	if pingID == 0 {
		t.Fatal("Ping declaration not found")
	}
	if handlerArg == nil || handlerArg.DeclID != pingID {
		t.Fatalf("handler's request argument not bound to the Ping declaration: %+v", handlerArg)
	}
}

func TestWorkspaceEndToEndQueries(t *testing.T) {
	ws := buildWorkspace(t)
	ctx := context.Background()

	units, err := ws.Units(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var ping *types.TypeRef
	for _, u := range units {
		decls, _ := u.TypeDecls()
		for _, d := range decls {
			if d.Ref.Name == "Ping" {
				ping = d.Ref
			}
		}
	}
	if ping == nil {
		t.Fatal("Ping not found")
	}

	f := index.NewFinder(classify.NewClassifier(), identity.NewResolver(), 2)

	handlers, err := f.FindHandlers(ctx, ws, ping, types.RoleQuery)
	if err != nil {
		t.Fatal(err)
	}
	if len(handlers) != 1 {
		t.Fatalf("got %d handlers, want 1", len(handlers))
	}
	h := handlers[0]
	if h.Handler.DisplayString() != "App.Handlers.PingHandler" {
		t.Fatalf("got %q", h.Handler.DisplayString())
	}
	if h.Response == nil || h.Response.Name != "Pong" {
		t.Fatalf("got response %+v", h.Response)
	}
	if filepath.Base(h.Location.FilePath) != "PingHandler.cs" || h.Location.Line == 0 {
		t.Fatalf("got location %+v", h.Location)
	}

	usages, err := f.FindUsages(ctx, ws, ping)
	if err != nil {
		t.Fatal(err)
	}
	if len(usages) != 1 {
		t.Fatalf("got %d usages, want 1", len(usages))
	}
	u := usages[0]
	if u.TypeName != "OrderService" || u.MethodName != "Run" || u.Dispatch != types.DispatchSend {
		t.Fatalf("got %+v", u)
	}
}

func TestWorkspaceParallelParseUniqueDeclIDs(t *testing.T) {
	root := t.TempDir()
	source := `
using MediatR;
namespace App%d
{
    public class Ping%d : IRequest { }
    public class Pong%d { }
    public class Extra%d { }
}
`
	for i := 0; i < 6; i++ {
		proj := fmt.Sprintf("src/P%d/P%d.csproj", i, i)
		writeFile(t, root, proj, `<Project Sdk="Microsoft.NET.Sdk"></Project>`)
		writeFile(t, root, fmt.Sprintf("src/P%d/Types.cs", i), fmt.Sprintf(source, i, i, i, i))
	}

	ws, err := Open(root, Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	units, err := ws.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[types.DeclID]string)
	total := 0
	for _, u := range units {
		decls, _ := u.TypeDecls()
		for _, d := range decls {
			if d.Ref.DeclID == 0 {
				t.Fatalf("%s has no declaration ID", d.Ref.Name)
			}
			if other, dup := seen[d.Ref.DeclID]; dup {
				t.Fatalf("declaration ID %d shared by %s and %s", d.Ref.DeclID, other, d.Ref.Name)
			}
			seen[d.Ref.DeclID] = d.Ref.Name
			total++
		}
	}
	if total != 18 {
		t.Fatalf("got %d declarations, want 18", total)
	}
}

func TestWorkspaceDispatchThroughWrapperInterface(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App.csproj", appProject)
	writeFile(t, root, "Ping.cs", `
using MediatR;
namespace App { public class Ping : IRequest { } }
`)
	writeFile(t, root, "IAppMediator.cs", `
using MediatR;
namespace App
{
    public interface IAppMediator : IMediator { }
}
`)
	writeFile(t, root, "Worker.cs", `
using MediatR;
namespace App
{
    public class Worker
    {
        private readonly IAppMediator _mediator;

        public async Task Run()
        {
            await _mediator.Send(new Ping());
        }
    }
}
`)

	ws, err := Open(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	units, err := ws.Units(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ping *types.TypeRef
	for _, u := range units {
		decls, _ := u.TypeDecls()
		for _, d := range decls {
			if d.Ref.Name == "Ping" {
				ping = d.Ref
			}
		}
	}
	if ping == nil {
		t.Fatal("Ping not found")
	}

	f := index.NewFinder(classify.NewClassifier(), identity.NewResolver(), 2)
	usages, err := f.FindUsages(ctx, ws, ping)
	if err != nil {
		t.Fatal(err)
	}
	if len(usages) != 1 {
		t.Fatalf("got %d calls, want 1: receiver type implements IMediator", len(usages))
	}
	if usages[0].TypeName != "Worker" || usages[0].Dispatch != types.DispatchSend {
		t.Fatalf("got %+v", usages[0])
	}
}

func TestWorkspaceDropsNonDispatcherSendAtBinding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App.csproj", appProject)
	writeFile(t, root, "Mail.cs", `
using MediatR;
namespace App
{
    public class Envelope : IRequest { }

    public class MailQueue
    {
        public void Send(Envelope e) { }
    }

    public class SmtpClient
    {
        private readonly MailQueue _queue;

        public void Flush()
        {
            _queue.Send(new Envelope());
        }
    }
}
`)

	ws, err := Open(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	units, err := ws.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range units {
		calls, _ := u.CallSites()
		if len(calls) != 0 {
			t.Fatalf("got %d call sites, want 0: MailQueue implements no dispatcher role", len(calls))
		}
	}
}

func TestWorkspaceIDStable(t *testing.T) {
	ws := buildWorkspace(t)
	if ws.ID() != ws.ID() {
		t.Fatal("workspace ID must be deterministic")
	}
	if ws.ID() == "" {
		t.Fatal("workspace ID must not be empty")
	}
}

func TestWorkspaceExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App.csproj", appProject)
	writeFile(t, root, "Ping.cs", `
using MediatR;
namespace App { public class Ping : IRequest { } }
`)
	writeFile(t, root, "Generated/Ping.g.cs", `
using MediatR;
namespace App.Generated { public class GenPing : IRequest { } }
`)

	ws, err := Open(root, Options{Exclude: []string{"**/*.g.cs"}})
	if err != nil {
		t.Fatal(err)
	}
	units, err := ws.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, u := range units {
		decls, _ := u.TypeDecls()
		for _, d := range decls {
			if d.Ref.Name == "GenPing" {
				t.Fatal("excluded file was parsed")
			}
		}
	}
}

func TestAssemblyNameFromProject(t *testing.T) {
	root := t.TempDir()

	t.Run("explicit assembly name", func(t *testing.T) {
		path := filepath.Join(root, "A.csproj")
		if err := os.WriteFile(path, []byte(appProject), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := assemblyNameFromProject(path); got != "App" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("falls back to file stem", func(t *testing.T) {
		path := filepath.Join(root, "Orders.Api.csproj")
		if err := os.WriteFile(path, []byte(`<Project></Project>`), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := assemblyNameFromProject(path); got != "Orders.Api" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("malformed project is tolerated", func(t *testing.T) {
		path := filepath.Join(root, "Broken.csproj")
		if err := os.WriteFile(path, []byte(`<Project`), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := assemblyNameFromProject(path); got != "Broken" {
			t.Fatalf("got %q", got)
		}
	})
}
