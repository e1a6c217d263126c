// Package lang resolves the active display language for a request context.
//
// A Resolver is built from the configured language allow-list. Every accessor
// on it is total: whatever the input (missing context value, unknown code,
// garbage Accept-Language header, or no request context at all), the result
// is a member of the allow-list, falling back to the configured default.
package lang

import (
	"context"
	"fmt"
	"strings"

	"github.com/kapu/modeltrans-go/internal/util"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type activeKey struct{}

// Resolver holds the configured language allow-list. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	codes           []string
	tags            []language.Tag
	index           map[string]int
	defaultCode     string
	enableFallbacks bool
	fallbacks       map[string][]string
	matcher         language.Matcher
	namer           display.Namer
}

func NewResolver(codes []string, defaultCode string, enableFallbacks bool, fallbacks map[string][]string) (*Resolver, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}

	r := &Resolver{
		codes:           make([]string, 0, len(codes)),
		tags:            make([]language.Tag, 0, len(codes)),
		index:           make(map[string]int, len(codes)),
		enableFallbacks: enableFallbacks,
		fallbacks:       make(map[string][]string, len(fallbacks)+1),
	}

	for _, code := range codes {
		canonical := canonicalCode(code)
		if canonical == "" {
			return nil, fmt.Errorf("empty language code in list")
		}
		if _, dup := r.index[canonical]; dup {
			return nil, fmt.Errorf("duplicate language code %q", canonical)
		}
		tag, err := language.Parse(canonical)
		if err != nil {
			return nil, fmt.Errorf("invalid language code %q: %w", code, err)
		}
		r.index[canonical] = len(r.codes)
		r.codes = append(r.codes, canonical)
		r.tags = append(r.tags, tag)
	}

	if defaultCode == "" {
		r.defaultCode = r.codes[0]
	} else {
		canonical, ok := r.lookup(defaultCode)
		if !ok {
			return nil, fmt.Errorf("default language %q is not in the configured list", defaultCode)
		}
		r.defaultCode = canonical
	}

	for key, chain := range fallbacks {
		canonicalKey := canonicalCode(key)
		if canonicalKey != "default" {
			var ok bool
			canonicalKey, ok = r.lookup(key)
			if !ok {
				return nil, fmt.Errorf("fallback chain for unknown language %q", key)
			}
		}
		canonicalChain := make([]string, 0, len(chain))
		for _, code := range chain {
			canonical, ok := r.lookup(code)
			if !ok {
				return nil, fmt.Errorf("fallback chain for %q references unknown language %q", key, code)
			}
			canonicalChain = append(canonicalChain, canonical)
		}
		r.fallbacks[canonicalKey] = canonicalChain
	}

	// Every chain ends at the default language unless configured otherwise.
	if _, ok := r.fallbacks["default"]; !ok {
		r.fallbacks["default"] = []string{r.defaultCode}
	}

	r.matcher = language.NewMatcher(r.tags)
	r.namer = display.English.Languages()

	return r, nil
}

// Default returns the default language code.
func (r *Resolver) Default() string {
	return r.defaultCode
}

// Languages returns the configured allow-list in order.
func (r *Resolver) Languages() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

// FallbackChains returns a copy of the configured fallback chains.
func (r *Resolver) FallbackChains() map[string][]string {
	out := make(map[string][]string, len(r.fallbacks))
	for k, v := range r.fallbacks {
		chain := make([]string, len(v))
		copy(chain, v)
		out[k] = chain
	}
	return out
}

func (r *Resolver) FallbacksEnabled() bool {
	return r.enableFallbacks
}

// Normalize reports whether code names a configured language and returns its
// canonical form ("PT_br" matches as "pt-br").
func (r *Resolver) Normalize(code string) (string, bool) {
	return r.lookup(code)
}

// Active returns the language stored on the context. The result is always a
// member of the allow-list: a missing or unknown value, and a nil context
// (any call site outside request scope), yield the default language.
func (r *Resolver) Active(ctx context.Context) string {
	if ctx == nil {
		return r.defaultCode
	}
	code, ok := ctx.Value(activeKey{}).(string)
	if !ok {
		return r.defaultCode
	}
	if canonical, known := r.lookup(code); known {
		return canonical
	}
	return r.defaultCode
}

// WithActive stores code as the active language. Codes outside the allow-list
// are replaced by the default so that Active stays total.
func (r *Resolver) WithActive(ctx context.Context, code string) context.Context {
	canonical, ok := r.lookup(code)
	if !ok {
		canonical = r.defaultCode
	}
	return context.WithValue(ctx, activeKey{}, canonical)
}

// Match resolves an Accept-Language header against the allow-list.
func (r *Resolver) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return r.defaultCode
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return r.defaultCode
	}
	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No {
		return r.defaultCode
	}
	return r.codes[idx]
}

// DisplayName returns the English display name of a configured language
// ("de" yields "German"). Unknown codes return the code itself.
func (r *Resolver) DisplayName(code string) string {
	canonical, ok := r.lookup(code)
	if !ok {
		return code
	}
	name := r.namer.Name(r.tags[r.index[canonical]])
	if name == "" {
		return canonical
	}
	return name
}

func (r *Resolver) lookup(code string) (string, bool) {
	canonical := canonicalCode(code)
	_, ok := r.index[canonical]
	return canonical, ok
}

func canonicalCode(code string) string {
	return strings.ReplaceAll(util.Normalize(code), "_", "-")
}
