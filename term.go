package ecsig

import "fmt"

// ElementSource says where, relative to the matched entity, a term's
// component must be found.
type ElementSource int

const (
	FromSelf ElementSource = iota
	FromOwned
	FromShared
	FromContainer
	FromSystem
	FromEntity
	FromEmpty
	FromCascade
)

var elementSourceNames = [...]string{
	FromSelf:      "self",
	FromOwned:     "owned",
	FromShared:    "shared",
	FromContainer: "container",
	FromSystem:    "system",
	FromEntity:    "entity",
	FromEmpty:     "empty",
	FromCascade:   "cascade",
}

func (s ElementSource) String() string {
	if s < 0 || int(s) >= len(elementSourceNames) {
		return fmt.Sprintf("ElementSource(%d)", int(s))
	}
	return elementSourceNames[s]
}

// MatchesTables reports whether terms with this source are satisfied by
// scanning entity tables rather than by a singleton or relational lookup.
func (s ElementSource) MatchesTables() bool {
	switch s {
	case FromSelf, FromOwned, FromShared, FromContainer:
		return true
	}
	return false
}

func (s ElementSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ElementSource) UnmarshalText(b []byte) error {
	v, err := lookupName(elementSourceNames[:], string(b), "element source")
	if err != nil {
		return err
	}
	*s = ElementSource(v)
	return nil
}

// Operator says how a term combines with adjacent terms.
type Operator int

const (
	OperAnd Operator = iota
	OperOr
	OperNot
	OperOptional
)

var operatorNames = [...]string{
	OperAnd:      "and",
	OperOr:       "or",
	OperNot:      "not",
	OperOptional: "optional",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(b []byte) error {
	v, err := lookupName(operatorNames[:], string(b), "operator")
	if err != nil {
		return err
	}
	*o = Operator(v)
	return nil
}

// Access is the declared read/write intent of a term.
type Access int

const (
	InOut Access = iota
	In
	Out
)

var accessNames = [...]string{
	InOut: "inout",
	In:    "in",
	Out:   "out",
}

func (a Access) String() string {
	if a < 0 || int(a) >= len(accessNames) {
		return fmt.Sprintf("Access(%d)", int(a))
	}
	return accessNames[a]
}

// Reads reports whether the term reads its component.
func (a Access) Reads() bool { return a == In || a == InOut }

// Writes reports whether the term writes its component.
func (a Access) Writes() bool { return a == Out || a == InOut }

func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Access) UnmarshalText(b []byte) error {
	v, err := lookupName(accessNames[:], string(b), "access")
	if err != nil {
		return err
	}
	*a = Access(v)
	return nil
}

func lookupName(names []string, name, what string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, name)
}

// Term is one comma or pipe separated unit of a signature.
type Term struct {
	Source   ElementSource `json:"source"`
	Operator Operator      `json:"operator"`
	Access   Access        `json:"access"`

	// Identifier is the component name or handle text. Never empty.
	Identifier string `json:"identifier"`

	// SourceIdentifier names the source entity; set only for FromEntity.
	SourceIdentifier string `json:"source_identifier,omitempty"`

	Index  int `json:"index"`
	Offset int `json:"offset"`
}

func (t Term) String() string {
	src := t.Source.String()
	if t.Source == FromEntity {
		src = t.SourceIdentifier
	}
	return fmt.Sprintf("%s [%s] %s.%s", t.Operator, t.Access, src, t.Identifier)
}
