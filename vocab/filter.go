package vocab

import mapset "github.com/deckarep/golang-set/v2"

// Filter keeps the tokens that are sentinels or members of universe, in
// input order. Anything else is a name the model could not ground and is
// dropped silently.
func Filter(tokens []string, universe mapset.Set[string]) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == TokenAll || tok == TokenNull || universe.Contains(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// SelectionKind tags a Selection.
type SelectionKind int

const (
	// Literal is a list of concrete identifiers, possibly empty.
	Literal SelectionKind = iota
	// All means every identifier in the universe.
	All
	// None means the model matched nothing.
	None
)

func (k SelectionKind) String() string {
	switch k {
	case All:
		return TokenAll
	case None:
		return TokenNull
	default:
		return "literal"
	}
}

// Selection is a filtered identifier list with the sentinel tokens lifted out.
type Selection struct {
	Kind SelectionKind
	IDs  []string
}

// LiteralOf returns a Literal selection of ids.
func LiteralOf(ids ...string) Selection {
	return Selection{Kind: Literal, IDs: ids}
}

// Classify turns a filtered token list into a Selection. Only a list that is
// exactly ["ALL"] or ["NULL"] becomes All or None; otherwise sentinels are
// discarded and the remaining identifiers are deduplicated.
func Classify(filtered []string) Selection {
	if len(filtered) == 1 {
		switch filtered[0] {
		case TokenAll:
			return Selection{Kind: All}
		case TokenNull:
			return Selection{Kind: None}
		}
	}
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(filtered))
	ids := make([]string, 0, len(filtered))
	for _, tok := range filtered {
		if tok == TokenAll || tok == TokenNull {
			continue
		}
		if seen.Add(tok) {
			ids = append(ids, tok)
		}
	}
	return Selection{Kind: Literal, IDs: ids}
}
