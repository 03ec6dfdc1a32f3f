package csharp

import (
	"errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"

	"github.com/standardbeagle/medlink/internal/codebase"
	"github.com/standardbeagle/medlink/internal/types"
)

// fileModel is everything extraction recovers from one source file.
type fileModel struct {
	decls  []*codebase.TypeDecl
	calls  []rawCall
	usings []string
}

// rawCall is a candidate dispatch call site before name binding: the
// argument and receiver types are still source-level names. dispatcherKnown
// marks receivers whose type is a literal dispatcher role; the rest are kept
// until binding can check the receiver's interface closure.
type rawCall struct {
	dispatch        types.DispatchKind
	argTypeName     string
	receiverType    string
	dispatcherKnown bool
	method          string
	typeName        string
	loc             types.SymbolLocation
	context         string
	namespace       string
	usings          []string
}

// extractFile parses one C# file and extracts type declarations and
// candidate dispatch call sites.
func extractFile(path string, content []byte, assembly string, allocID func() types.DeclID) (*fileModel, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	_ = parser.SetLanguage(sitter.NewLanguage(tree_sitter_csharp.Language()))

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, errors.New("failed to parse content")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.New("root node is nil")
	}

	ex := &extractor{
		path:     path,
		content:  content,
		assembly: assembly,
		allocID:  allocID,
	}
	ex.walk(root, "", nil)

	return &fileModel{decls: ex.decls, calls: ex.calls, usings: ex.usings}, nil
}

type extractor struct {
	path     string
	content  []byte
	assembly string
	allocID  func() types.DeclID

	usings []string
	decls  []*codebase.TypeDecl
	calls  []rawCall
}

// walk traverses top-level structure: usings, namespaces, type declarations.
func (ex *extractor) walk(node *sitter.Node, namespace string, nesting []string) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "using_directive":
		if path := ex.usingPath(node); path != "" {
			ex.usings = append(ex.usings, path)
		}
		return

	case "namespace_declaration", "file_scoped_namespace_declaration":
		name := ex.namespaceName(node)
		inner := namespace
		if name != "" {
			if inner != "" {
				inner += "." + name
			} else {
				inner = name
			}
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			ex.walk(node.Child(i), inner, nesting)
		}
		return

	case "class_declaration", "interface_declaration", "struct_declaration", "record_declaration":
		ex.extractType(node, namespace, nesting)
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		ex.walk(node.Child(i), namespace, nesting)
	}
}

// usingPath extracts the namespace of a using directive, skipping aliases.
func (ex *extractor) usingPath(node *sitter.Node) string {
	hasAlias := false
	path := ""
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "name_equals":
			hasAlias = true
		case "qualified_name", "identifier":
			path = ex.text(child)
		}
	}
	if hasAlias {
		return ""
	}
	return path
}

func (ex *extractor) namespaceName(node *sitter.Node) string {
	name := childByKind(node, "qualified_name")
	if name == nil {
		name = childByKind(node, "identifier")
	}
	return ex.text(name)
}

// extractType extracts one type declaration plus its nested types and the
// dispatch call sites inside its members.
func (ex *extractor) extractType(node *sitter.Node, namespace string, nesting []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = childByKind(node, "identifier")
	}
	if nameNode == nil {
		return
	}
	typeName := ex.text(nameNode)

	decl := &codebase.TypeDecl{
		Ref: &types.TypeRef{
			Name:         typeName,
			Namespace:    namespace,
			AssemblyName: ex.assembly,
			Nesting:      append([]string(nil), nesting...),
			DeclID:       ex.allocID(),
		},
		Loc:        ex.location(nameNode),
		MethodLocs: make(map[string]types.SymbolLocation),
	}

	usings := append([]string(nil), ex.usings...)
	if base := childByKind(node, "base_list"); base != nil {
		ex.extractBaseList(base, decl, usings)
	}

	ex.decls = append(ex.decls, decl)

	members := newMemberScope()

	body := childByKind(node, "declaration_list")
	if body == nil {
		return
	}

	// First pass over members: fields, properties and constructor
	// parameters feed receiver-type resolution for dispatch calls.
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "field_declaration":
			ex.collectFieldTypes(child, members)
		case "property_declaration":
			ex.collectPropertyType(child, members)
		case "constructor_declaration":
			ex.collectParameterTypes(child, members)
		}
	}

	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "class_declaration", "interface_declaration", "struct_declaration", "record_declaration":
			ex.extractType(child, namespace, append(nesting, typeName))

		case "method_declaration":
			methodName := ex.memberName(child)
			if methodName != "" {
				if _, seen := decl.MethodLocs[methodName]; !seen {
					decl.MethodLocs[methodName] = ex.locationOf(child)
				}
			}
			ex.collectCallsInMember(child, methodName, typeName, namespace, usings, members)

		case "constructor_declaration":
			ex.collectCallsInMember(child, typeName, typeName, namespace, usings, members)
		}
	}
}

// locationOf points at a member's name when possible, else the node itself.
func (ex *extractor) locationOf(node *sitter.Node) types.SymbolLocation {
	if name := node.ChildByFieldName("name"); name != nil {
		return ex.location(name)
	}
	return ex.location(node)
}

func (ex *extractor) memberName(node *sitter.Node) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return ex.text(name)
	}
	return ex.text(childByKind(node, "identifier"))
}

// extractBaseList splits a base list into interface references (I-prefixed
// names, the C# convention) and base types used for closure resolution.
func (ex *extractor) extractBaseList(base *sitter.Node, decl *codebase.TypeDecl, usings []string) {
	for i := uint(0); i < base.ChildCount(); i++ {
		entry := base.Child(i)
		if entry == nil {
			continue
		}
		typeNode := entry
		if entry.Kind() == "primary_constructor_base_type" {
			typeNode = firstTypeChild(entry)
			if typeNode == nil {
				continue
			}
		}

		name, qualifier, args := ex.splitTypeName(typeNode)
		if name == "" {
			continue
		}

		if looksLikeInterface(name) {
			iface := types.InterfaceRef{
				Name:               name,
				Namespace:          qualifier,
				ImportedNamespaces: usings,
			}
			for _, arg := range args {
				iface.TypeArgs = append(iface.TypeArgs, types.ParseDisplayString(arg, ""))
			}
			decl.Declared = append(decl.Declared, iface)
		} else {
			display := name
			if qualifier != "" {
				display = qualifier + "." + name
			}
			decl.BaseTypes = append(decl.BaseTypes, display)
		}
	}
}

// splitTypeName decomposes a type node into simple name, namespace
// qualifier and generic argument texts.
func (ex *extractor) splitTypeName(node *sitter.Node) (name, qualifier string, args []string) {
	if node == nil {
		return "", "", nil
	}
	switch node.Kind() {
	case "identifier":
		return ex.text(node), "", nil

	case "qualified_name":
		// The rightmost segment may itself be generic.
		right := node.ChildByFieldName("name")
		left := node.ChildByFieldName("qualifier")
		n, _, a := ex.splitTypeName(right)
		return n, ex.text(left), a

	case "generic_name":
		n := ex.text(childByKind(node, "identifier"))
		if argList := childByKind(node, "type_argument_list"); argList != nil {
			for i := uint(0); i < argList.ChildCount(); i++ {
				arg := argList.Child(i)
				if arg == nil || !isTypeKind(arg.Kind()) {
					continue
				}
				args = append(args, ex.text(arg))
			}
		}
		return n, "", args
	}
	return "", "", nil
}

// looksLikeInterface applies the C# naming convention: an uppercase letter
// after a leading I.
func looksLikeInterface(name string) bool {
	return len(name) >= 2 && name[0] == 'I' && name[1] >= 'A' && name[1] <= 'Z'
}

func isTypeKind(kind string) bool {
	switch kind {
	case "identifier", "qualified_name", "generic_name", "predefined_type",
		"nullable_type", "array_type", "tuple_type":
		return true
	}
	return false
}

func firstTypeChild(node *sitter.Node) *sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && isTypeKind(child.Kind()) {
			return child
		}
	}
	return nil
}

// text returns a node's source text.
func (ex *extractor) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > uint(len(ex.content)) || end > uint(len(ex.content)) || start > end {
		return ""
	}
	return string(ex.content[start:end])
}

// location converts a node position to a 1-based source location.
func (ex *extractor) location(node *sitter.Node) types.SymbolLocation {
	if node == nil {
		return types.SymbolLocation{}
	}
	pos := node.StartPosition()
	return types.SymbolLocation{
		FilePath: ex.path,
		Line:     int(pos.Row) + 1,
		Column:   int(pos.Column) + 1,
	}
}

// childByKind finds the first direct child of the given kind.
func childByKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}
