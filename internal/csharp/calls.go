package csharp

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/medlink/internal/classify"
	"github.com/standardbeagle/medlink/internal/types"
)

// memberScope tracks declared member and parameter types within one class,
// for resolving dispatch receivers and arguments.
type memberScope struct {
	members map[string]string // field/property/ctor-param name -> type text
}

func newMemberScope() *memberScope {
	return &memberScope{members: make(map[string]string)}
}

// localVar is one local variable inside a member body.
type localVar struct {
	declared    string // declared type text, empty for var
	constructed string // type constructed in the initializer, when traceable
}

// callScope layers a member body's locals and parameters over the class
// member scope.
type callScope struct {
	locals  map[string]localVar
	params  map[string]string
	members *memberScope
}

// receiverType resolves an identifier to its declared type text, walking
// locals, then parameters, then class members.
func (s *callScope) receiverType(name string) string {
	if v, ok := s.locals[name]; ok && v.declared != "" {
		return v.declared
	}
	if t, ok := s.params[name]; ok {
		return t
	}
	if t, ok := s.members.members[name]; ok {
		return t
	}
	return ""
}

// argumentType resolves an identifier to the concrete type it holds: the
// initializer's construction type when traceable, the declared type
// otherwise.
func (s *callScope) argumentType(name string) string {
	if v, ok := s.locals[name]; ok {
		if v.constructed != "" {
			return v.constructed
		}
		return v.declared
	}
	if t, ok := s.params[name]; ok {
		return t
	}
	if t, ok := s.members.members[name]; ok {
		return t
	}
	return ""
}

// collectFieldTypes records field names and their declared types.
func (ex *extractor) collectFieldTypes(node *sitter.Node, scope *memberScope) {
	varDecl := childByKind(node, "variable_declaration")
	if varDecl == nil {
		return
	}
	typeText := ex.text(firstTypeChild(varDecl))
	if typeText == "" {
		return
	}
	for i := uint(0); i < varDecl.ChildCount(); i++ {
		child := varDecl.Child(i)
		if child == nil || child.Kind() != "variable_declarator" {
			continue
		}
		name := ex.text(childByKind(child, "identifier"))
		if name != "" {
			scope.members[name] = typeText
		}
	}
}

// collectPropertyType records a property name and its declared type.
func (ex *extractor) collectPropertyType(node *sitter.Node, scope *memberScope) {
	name := ex.memberName(node)
	typeText := ex.text(firstTypeChild(node))
	if name != "" && typeText != "" {
		scope.members[name] = typeText
	}
}

// collectParameterTypes records constructor parameter types at the class
// level: injected dependencies are commonly used from the constructor body
// before assignment to a field.
func (ex *extractor) collectParameterTypes(node *sitter.Node, scope *memberScope) {
	params := childByKind(node, "parameter_list")
	if params == nil {
		return
	}
	for i := uint(0); i < params.ChildCount(); i++ {
		param := params.Child(i)
		if param == nil || param.Kind() != "parameter" {
			continue
		}
		name := ex.text(param.ChildByFieldName("name"))
		typeText := ex.text(param.ChildByFieldName("type"))
		if name != "" && typeText != "" {
			if _, exists := scope.members[name]; !exists {
				scope.members[name] = typeText
			}
		}
	}
}

// collectCallsInMember walks one method or constructor body for dispatch
// call sites.
func (ex *extractor) collectCallsInMember(node *sitter.Node, methodName, typeName, namespace string, usings []string, members *memberScope) {
	scope := &callScope{
		locals:  make(map[string]localVar),
		params:  make(map[string]string),
		members: members,
	}

	if params := childByKind(node, "parameter_list"); params != nil {
		for i := uint(0); i < params.ChildCount(); i++ {
			param := params.Child(i)
			if param == nil || param.Kind() != "parameter" {
				continue
			}
			name := ex.text(param.ChildByFieldName("name"))
			typeText := ex.text(param.ChildByFieldName("type"))
			if name != "" && typeText != "" {
				scope.params[name] = typeText
			}
		}
	}

	body := childByKind(node, "block")
	if body == nil {
		body = childByKind(node, "arrow_expression_clause")
	}
	if body == nil {
		return
	}
	ex.collectCalls(body, scope, methodName, typeName, namespace, usings)
}

// collectCalls traverses statements in document order, tracking local
// declarations as it goes so later dispatch arguments can be traced back to
// their construction site.
func (ex *extractor) collectCalls(node *sitter.Node, scope *callScope, methodName, typeName, namespace string, usings []string) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "variable_declaration":
		ex.recordLocals(node, scope)

	case "invocation_expression":
		ex.handleInvocation(node, scope, methodName, typeName, namespace, usings)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		ex.collectCalls(node.Child(i), scope, methodName, typeName, namespace, usings)
	}
}

// recordLocals registers the declarators of one variable declaration.
func (ex *extractor) recordLocals(node *sitter.Node, scope *callScope) {
	declaredType := ex.text(firstTypeChild(node))
	if declaredType == "var" {
		declaredType = ""
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "variable_declarator" {
			continue
		}
		name := ex.text(childByKind(child, "identifier"))
		if name == "" {
			continue
		}

		v := localVar{declared: declaredType}
		if init := childByKind(child, "equals_value_clause"); init != nil {
			if value := lastExpressionChild(init); value != nil {
				v.constructed = ex.resolveExpressionType(value, scope)
			}
		}
		scope.locals[name] = v
	}
}

// handleInvocation records a candidate call site when the method name is a
// known dispatch kind and the receiver's static type is known. Receivers
// that are not literal dispatcher types are not dropped here: binding checks
// whether their declaration's interface closure reaches a dispatcher role.
func (ex *extractor) handleInvocation(node *sitter.Node, scope *callScope, methodName, typeName, namespace string, usings []string) {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "member_access_expression" {
		return
	}

	callName := ex.text(fn.ChildByFieldName("name"))
	dispatch, ok := types.DispatchKindFromMethod(callName)
	if !ok {
		return
	}

	receiver := ex.receiverIdentifier(fn.ChildByFieldName("expression"))
	if receiver == "" {
		return
	}
	receiverType := simpleTypeName(scope.receiverType(receiver))
	if receiverType == "" {
		return
	}

	argType := ""
	if args := node.ChildByFieldName("arguments"); args != nil {
		if first := childByKind(args, "argument"); first != nil {
			if expr := lastExpressionChild(first); expr != nil {
				argType = ex.resolveExpressionType(expr, scope)
			}
		}
	}

	ex.calls = append(ex.calls, rawCall{
		dispatch:        dispatch,
		argTypeName:     argType,
		receiverType:    receiverType,
		dispatcherKnown: classify.IsDispatcherType(receiverType),
		method:          methodName,
		typeName:        typeName,
		loc:             ex.location(node),
		context:         ex.callContext(node),
		namespace:       namespace,
		usings:          usings,
	})
}

// receiverIdentifier extracts the identifier a dispatch call is made on,
// unwrapping a this-qualified access.
func (ex *extractor) receiverIdentifier(expr *sitter.Node) string {
	if expr == nil {
		return ""
	}
	switch expr.Kind() {
	case "identifier":
		return ex.text(expr)
	case "member_access_expression":
		if inner := expr.ChildByFieldName("expression"); inner != nil && inner.Kind() == "this_expression" {
			return ex.text(expr.ChildByFieldName("name"))
		}
	}
	return ""
}

// resolveExpressionType traces an argument expression to the concrete type
// it carries: implicit conversions and awaits are unwrapped, identifiers
// are followed to their declaration-site initializer. Returns "" when the
// origin cannot be established; an unresolved argument is simply not a
// match, never an error.
func (ex *extractor) resolveExpressionType(expr *sitter.Node, scope *callScope) string {
	for expr != nil {
		switch expr.Kind() {
		case "await_expression", "parenthesized_expression", "cast_expression", "checked_expression":
			expr = lastExpressionChild(expr)
			continue

		case "object_creation_expression":
			return ex.text(expr.ChildByFieldName("type"))

		case "identifier":
			return scope.argumentType(ex.text(expr))

		case "member_access_expression":
			if inner := expr.ChildByFieldName("expression"); inner != nil && inner.Kind() == "this_expression" {
				return scope.argumentType(ex.text(expr.ChildByFieldName("name")))
			}
			return ""

		default:
			return ""
		}
	}
	return ""
}

// lastExpressionChild returns the last expression-like child, skipping
// keywords and punctuation.
func lastExpressionChild(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := node.ChildCount(); i > 0; i-- {
		child := node.Child(i - 1)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case ",", "(", ")", ";", "=", "await", "checked", "name_colon":
			continue
		}
		return child
	}
	return nil
}

// callContext produces the human-readable call text, collapsed to one line.
func (ex *extractor) callContext(node *sitter.Node) string {
	text := ex.text(node)
	text = strings.Join(strings.Fields(text), " ")
	const maxContext = 120
	if len(text) > maxContext {
		text = text[:maxContext] + "..."
	}
	return text
}

// simpleTypeName strips namespace qualification, generic arguments and
// nullability from a type text.
func simpleTypeName(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "?")
	if idx := strings.IndexByte(text, '<'); idx >= 0 {
		text = text[:idx]
	}
	if idx := strings.LastIndexByte(text, '.'); idx >= 0 {
		text = text[idx+1:]
	}
	return text
}
