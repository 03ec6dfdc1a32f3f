package codebase

import (
	"testing"

	"github.com/standardbeagle/medlink/internal/types"
)

func decl(name, namespace string, bases []string, ifaces ...types.InterfaceRef) *TypeDecl {
	return &TypeDecl{
		Ref:       &types.TypeRef{Name: name, Namespace: namespace, AssemblyName: "App"},
		Declared:  ifaces,
		BaseTypes: bases,
	}
}

func TestResolveTransitiveInterfaces(t *testing.T) {
	t.Run("inherited interface surfaces on the derived type", func(t *testing.T) {
		base := decl("CommandBase", "App", nil, types.InterfaceRef{Name: "IRequest", Namespace: "MediatR"})
		derived := decl("CreateOrder", "App", []string{"CommandBase"})

		ResolveTransitiveInterfaces([]*TypeDecl{base, derived})

		all := derived.Interfaces()
		if len(all) != 1 || all[0].Name != "IRequest" {
			t.Fatalf("got %+v", all)
		}
	})

	t.Run("chains through several bases", func(t *testing.T) {
		a := decl("A", "App", nil, types.InterfaceRef{Name: "INotification", Namespace: "MediatR"})
		b := decl("B", "App", []string{"A"})
		c := decl("C", "App", []string{"B"})

		ResolveTransitiveInterfaces([]*TypeDecl{a, b, c})

		if len(c.Interfaces()) != 1 {
			t.Fatalf("got %+v", c.Interfaces())
		}
	})

	t.Run("cycles terminate", func(t *testing.T) {
		a := decl("A", "App", []string{"B"}, types.InterfaceRef{Name: "IRequest", Namespace: "MediatR"})
		b := decl("B", "App", []string{"A"})

		ResolveTransitiveInterfaces([]*TypeDecl{a, b})

		if len(b.Interfaces()) != 1 {
			t.Fatalf("got %+v", b.Interfaces())
		}
	})

	t.Run("unknown base names are skipped", func(t *testing.T) {
		d := decl("Orphan", "App", []string{"LibraryBase"})
		ResolveTransitiveInterfaces([]*TypeDecl{d})
		if len(d.Interfaces()) != 0 {
			t.Fatalf("got %+v", d.Interfaces())
		}
	})

	t.Run("duplicate interfaces collapse", func(t *testing.T) {
		iface := types.InterfaceRef{Name: "IRequest", Namespace: "MediatR"}
		base := decl("CommandBase", "App", nil, iface)
		derived := decl("CreateOrder", "App", []string{"CommandBase"}, iface)

		ResolveTransitiveInterfaces([]*TypeDecl{base, derived})

		if len(derived.Interfaces()) != 1 {
			t.Fatalf("got %+v", derived.Interfaces())
		}
	})

	t.Run("same-namespace base preferred over foreign", func(t *testing.T) {
		appBase := decl("Base", "App", nil, types.InterfaceRef{Name: "IRequest", Namespace: "MediatR"})
		otherBase := decl("Base", "Other", nil)
		derived := decl("CreateOrder", "App", []string{"Base"})

		ResolveTransitiveInterfaces([]*TypeDecl{appBase, otherBase, derived})

		all := derived.Interfaces()
		if len(all) != 1 || all[0].Name != "IRequest" {
			t.Fatalf("got %+v", all)
		}
	})
}
