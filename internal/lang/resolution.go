package lang

import "github.com/kapu/modeltrans-go/internal/util"

// ResolutionOrder returns the languages to consult, most preferred first,
// when reading a translated field under the given active language. With
// fallbacks disabled the order is just the active language. Otherwise the
// active language is followed by its own chain and then the "default" chain.
// An override replaces the configured chain for the keys it names; per-model
// options pass their chains through here.
func (r *Resolver) ResolutionOrder(active string, override map[string][]string) []string {
	canonical, ok := r.lookup(active)
	if !ok {
		canonical = r.defaultCode
	}

	if !r.enableFallbacks {
		return []string{canonical}
	}

	order := make([]string, 0, len(r.codes))
	order = append(order, canonical)
	order = append(order, r.chainFor(canonical, override)...)
	order = append(order, r.chainFor("default", override)...)

	out := util.Unique(order)
	filtered := out[:0]
	for _, code := range out {
		if _, known := r.index[code]; known {
			filtered = append(filtered, code)
		}
	}
	return filtered
}

func (r *Resolver) chainFor(key string, override map[string][]string) []string {
	if override != nil {
		if chain, ok := override[key]; ok {
			return chain
		}
	}
	return r.fallbacks[key]
}
