package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// CallSpec describes a call or macro that declares a signature.
type CallSpec struct {
	Name string `yaml:"name"`

	// OwnerArg is the 0-based argument naming the owner. A negative value
	// takes the name of the enclosing function instead.
	OwnerArg int `yaml:"owner_arg"`

	// SignatureArg is the 0-based argument holding the signature.
	SignatureArg int `yaml:"signature_arg"`

	// Variadic takes the raw text from SignatureArg to the closing paren,
	// commas included. Used by macros that accept an unquoted signature.
	Variadic bool `yaml:"variadic"`
}

// DefaultCalls is the call table used when none is configured.
var DefaultCalls = []CallSpec{
	{Name: "ECS_SYSTEM", OwnerArg: 1, SignatureArg: 3, Variadic: true},
	{Name: "ECS_TYPE", OwnerArg: 1, SignatureArg: 2, Variadic: true},
	{Name: "ecs_new_system", OwnerArg: 1, SignatureArg: 3},
	{Name: "ecs_query_new", OwnerArg: -1, SignatureArg: 1},
}

// Site is one signature found in a source file. Line and Col are 0-based.
type Site struct {
	Call      string
	Owner     string
	Signature string
	Line      int
	Col       int
	Offset    int
}

const callQuery = `(call_expression function: (identifier) @fn arguments: (argument_list) @args)`

// ExtractSignatures parses src with the grammar for lang and returns every
// signature declared through one of calls, in source order. A nil calls
// uses DefaultCalls.
func ExtractSignatures(ctx context.Context, src []byte, lang string, calls []CallSpec) ([]Site, error) {
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("extract: unsupported language %q", lang)
	}
	if calls == nil {
		calls = DefaultCalls
	}
	byName := make(map[string]CallSpec, len(calls))
	for _, c := range calls {
		byName[c.Name] = c
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("extract: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(callQuery), grammar)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid query: %w", err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, tree.RootNode())

	var sites []Site
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)

		var fn, args *sitter.Node
		for _, capture := range match.Captures {
			switch q.CaptureNameForId(capture.Index) {
			case "fn":
				fn = capture.Node
			case "args":
				args = capture.Node
			}
		}
		if fn == nil || args == nil {
			continue
		}
		spec, ok := byName[fn.Content(src)]
		if !ok {
			continue
		}
		site, ok := siteFromCall(src, spec, fn, args)
		if ok {
			sites = append(sites, site)
		}
	}
	return sites, nil
}

func siteFromCall(src []byte, spec CallSpec, fn, args *sitter.Node) (Site, bool) {
	spans := splitArguments(src, int(args.StartByte()))
	if spec.SignatureArg >= len(spans) {
		return Site{}, false
	}

	sigSpan := spans[spec.SignatureArg]
	if spec.Variadic {
		sigSpan.end = spans[len(spans)-1].end
	}
	raw := string(src[sigSpan.start:sigSpan.end])

	site := Site{Call: spec.Name, Offset: sigSpan.start}
	if spec.Variadic {
		site.Signature = raw
	} else {
		lit, ok := stringLiteral(raw)
		if !ok {
			return Site{}, false
		}
		site.Signature = lit
	}

	switch {
	case spec.OwnerArg < 0:
		site.Owner = enclosingFunction(fn, src)
	case spec.OwnerArg < len(spans):
		s := spans[spec.OwnerArg]
		owner := string(src[s.start:s.end])
		if lit, ok := stringLiteral(owner); ok {
			owner = lit
		}
		site.Owner = owner
	}

	site.Line, site.Col = lineCol(src, site.Offset)
	return site, true
}

type span struct{ start, end int }

// splitArguments splits the argument list starting at the '(' at open into
// trimmed top-level argument spans. Nested brackets and string or char
// literals are skipped. The raw text is used instead of the parse tree
// because unquoted signatures are rarely valid C expressions.
func splitArguments(src []byte, open int) []span {
	if open >= len(src) || src[open] != '(' {
		return nil
	}
	var spans []span
	depth := 0
	start := open + 1
	for i := open + 1; i < len(src); i++ {
		switch ch := src[i]; ch {
		case '"', '\'':
			i = skipLiteral(src, i)
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				if ch == ')' {
					if s, ok := trimSpan(src, start, i); ok || len(spans) > 0 {
						spans = append(spans, s)
					}
					return spans
				}
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				s, _ := trimSpan(src, start, i)
				spans = append(spans, s)
				start = i + 1
			}
		}
	}
	return spans
}

func skipLiteral(src []byte, i int) int {
	quote := src[i]
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote, '\n':
			return i
		}
	}
	return i
}

func trimSpan(src []byte, start, end int) (span, bool) {
	for start < end && isSpaceByte(src[start]) {
		start++
	}
	for end > start && isSpaceByte(src[end-1]) {
		end--
	}
	return span{start, end}, end > start
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// stringLiteral decodes a C string literal, joining adjacent literals.
// Returns false if text is not made only of string literals.
func stringLiteral(text string) (string, bool) {
	var b strings.Builder
	rest := strings.TrimSpace(text)
	if rest == "" || rest[0] != '"' {
		return "", false
	}
	for rest != "" {
		if rest[0] != '"' {
			return "", false
		}
		end := skipLiteral([]byte(rest), 0)
		if end >= len(rest) || rest[end] != '"' {
			return "", false
		}
		lit := rest[:end+1]
		s, err := strconv.Unquote(lit)
		if err != nil {
			s = lit[1 : len(lit)-1]
		}
		b.WriteString(s)
		rest = strings.TrimSpace(rest[end+1:])
	}
	return b.String(), true
}

// enclosingFunction returns the name of the function definition containing
// node, or "" at file scope.
func enclosingFunction(node *sitter.Node, src []byte) string {
	for n := node.Parent(); n != nil; n = n.Parent() {
		if n.Type() != "function_definition" {
			continue
		}
		decl := n.ChildByFieldName("declarator")
		for decl != nil {
			switch decl.Type() {
			case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
				return decl.Content(src)
			}
			decl = decl.ChildByFieldName("declarator")
		}
		return ""
	}
	return ""
}

func lineCol(src []byte, offset int) (line, col int) {
	lineStart := 0
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, offset - lineStart
}
