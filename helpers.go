package ecsig

// RequiresTableMatching reports whether at least one term of signature
// must be satisfied by scanning entity tables (self, owned, shared or
// container sources), as opposed to singleton, system, named entity or
// cascade lookups only.
func RequiresTableMatching(signature string) (bool, error) {
	return defaultParser.RequiresTableMatching(signature)
}

// RequiresTableMatching is the Parser-configured form of the package function.
func (p *Parser) RequiresTableMatching(signature string) (bool, error) {
	var needs bool
	err := p.Parse(signature, func(t Term) error {
		if t.Source.MatchesTables() {
			needs = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return needs, nil
}

// CountTerms returns a quick textual count of the terms in signature:
// one plus the number of ',' and '|' separators outside annotation
// brackets. It does not validate the grammar; use it as a sizing hint.
func CountTerms(signature string) int {
	if signature == "" {
		return 0
	}
	count := 1
	depth := 0
	for i := 0; i < len(signature); i++ {
		switch signature[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',', '|':
			if depth == 0 {
				count++
			}
		}
	}
	return count
}

// Terms compiles signature with default options and returns all terms.
func Terms(signature string) ([]Term, error) {
	return defaultParser.Terms(signature)
}

// Terms compiles signature and returns all terms in order.
func (p *Parser) Terms(signature string) ([]Term, error) {
	terms := make([]Term, 0, CountTerms(signature))
	err := p.Parse(signature, func(t Term) error {
		terms = append(terms, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return terms, nil
}

// Validate reports the first structural error in signature, if any.
func Validate(signature string) error {
	return defaultParser.Parse(signature, func(Term) error { return nil })
}
