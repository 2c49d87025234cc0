// Package symbols holds the tradeable symbol catalog. The catalog is
// an external collaborator of the matching core; this static
// implementation is fed from configuration.
package symbols

// Static is a fixed symbol set.
type Static struct {
	set map[string]struct{}
}

// NewStatic builds the catalog from a symbol list.
func NewStatic(list []string) *Static {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return &Static{set: set}
}

// IsValid reports whether symbol is tradeable.
func (s *Static) IsValid(symbol string) bool {
	_, ok := s.set[symbol]
	return ok
}

// All returns the symbol list.
func (s *Static) All() []string {
	out := make([]string, 0, len(s.set))
	for sym := range s.set {
		out = append(out, sym)
	}
	return out
}
