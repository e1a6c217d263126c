package mt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

var htmlMarkupRe = regexp.MustCompile(`<(/?[A-Za-z]|!--)`)

// KindOf guesses whether a field value carries markup. Values without tags
// travel to providers as plain text.
func KindOf(value string) domain.TranslationKind {
	if htmlMarkupRe.MatchString(value) {
		return domain.TranslationKindHTML
	}
	return domain.TranslationKindText
}

// Segmenter cuts field values into translatable text segments. HTML values
// are parsed and only their text nodes travel to the provider; the markup
// itself never leaves the process.
type Segmenter struct {
	maxSegmentLength int
}

func NewSegmenter() *Segmenter {
	return &Segmenter{maxSegmentLength: constants.MTInputLimits.MaxSegmentLength}
}

// Segments holds the translatable pieces of one value and enough state to
// put translations back where the pieces came from. An empty Texts slice
// means there is nothing to translate.
type Segments struct {
	Texts []string

	doc   *goquery.Document
	nodes []*goquery.Selection
	raw   []string
	plain bool
}

func (s *Segmenter) Split(value string, kind domain.TranslationKind) (*Segments, error) {
	if kind != domain.TranslationKindHTML {
		if len(value) > s.maxSegmentLength {
			return nil, errors.NewValidationError("value too long to translate", "text", len(value))
		}
		if strings.TrimSpace(value) == "" {
			return &Segments{plain: true}, nil
		}
		return &Segments{Texts: []string{value}, plain: true}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("HTML parse failed: %w", err)
	}

	seg := &Segments{doc: doc}

	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			switch goquery.NodeName(child) {
			case "#text":
				text := child.Get(0).Data
				trimmed := strings.TrimSpace(text)
				if trimmed == "" {
					return
				}
				seg.nodes = append(seg.nodes, child)
				seg.raw = append(seg.raw, text)
				seg.Texts = append(seg.Texts, trimmed)
			case "script", "style", "#comment":
				return
			default:
				walk(child)
			}
		})
	}
	walk(doc.Selection)

	for _, text := range seg.Texts {
		if len(text) > s.maxSegmentLength {
			return nil, errors.NewValidationError("segment too long to translate", "segment", len(text))
		}
	}

	return seg, nil
}

// Join writes the translations back over the original segments and renders
// the value. Each segment keeps its surrounding whitespace so inline markup
// keeps its spacing.
func (s *Segments) Join(translations []string) (string, error) {
	if len(translations) != len(s.Texts) {
		return "", errors.NewValidationError("translation count does not match segment count", "translations", len(translations))
	}

	if s.plain {
		if len(translations) == 0 {
			return "", nil
		}
		return translations[0], nil
	}

	for i, sel := range s.nodes {
		node := sel.Get(0)
		node.Data = edgeWhitespace(s.raw[i], strings.TrimSpace(translations[i]))
	}

	return s.doc.Find("body").Html()
}

// edgeWhitespace transfers the original segment's surrounding whitespace
// onto the translated text.
func edgeWhitespace(original, translated string) string {
	lead := original[:len(original)-len(strings.TrimLeft(original, " \t\r\n"))]
	trail := original[len(strings.TrimRight(original, " \t\r\n")):]
	return lead + translated + trail
}
