package ecsig

import "strings"

// sourceKeywords maps dotted qualifier prefixes to element sources.
// Matching is exact and case-sensitive.
var sourceKeywords = map[string]ElementSource{
	"CONTAINER": FromContainer,
	"SYSTEM":    FromSystem,
	"SELF":      FromSelf,
	"OWNED":     FromOwned,
	"SHARED":    FromShared,
	"CASCADE":   FromCascade,
}

// qualifier is the result of splitting one term into its prefix
// operator, source and identifier.
type qualifier struct {
	oper     Operator
	hasOper  bool
	source   ElementSource
	sourceID string
	ident    string
}

// parseQualifier handles the '!'/'?' prefix and the "SOURCE." qualifier
// of a term whose text has already been isolated. Fault positions are
// indexes into text.
func parseQualifier(text string) (qualifier, *syntaxFault) {
	q := qualifier{source: FromSelf}
	rest := text
	skip := 0

	if len(rest) > 0 && (rest[0] == '!' || rest[0] == '?') {
		q.hasOper = true
		q.oper = OperNot
		if rest[0] == '?' {
			q.oper = OperOptional
		}
		if len(rest) == 1 {
			return q, &syntaxFault{reason: "operator '" + rest + "' must be followed by a component", at: 0}
		}
		rest = rest[1:]
		skip = 1
	}

	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		q.ident = rest
		return q, nil
	}

	prefix := rest[:dot]
	switch src, ok := sourceKeywords[prefix]; {
	case prefix == "":
		q.source = FromEmpty
	case ok:
		q.source = src
	default:
		q.source = FromEntity
		q.sourceID = prefix
	}

	q.ident = rest[dot+1:]
	if q.ident == "" {
		return q, &syntaxFault{reason: "missing component after '" + prefix + ".'", at: skip + dot}
	}
	return q, nil
}
