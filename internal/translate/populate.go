package translate

import (
	"fmt"

	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/lang"
)

// PopulateMode controls how base-field values are distributed into language
// slots when a record is created.
type PopulateMode string

const (
	// PopulateOff leaves slots exactly as given.
	PopulateOff PopulateMode = "off"
	// PopulateAll copies the base value into every language's slot.
	PopulateAll PopulateMode = "all"
	// PopulateDefault copies the base value into the default language's slot.
	PopulateDefault PopulateMode = "default"
	// PopulateRequired copies into the default slot plus each field's
	// required languages.
	PopulateRequired PopulateMode = "required"
)

func ParsePopulateMode(s string) (PopulateMode, error) {
	switch PopulateMode(s) {
	case PopulateOff, PopulateAll, PopulateDefault, PopulateRequired:
		return PopulateMode(s), nil
	case "":
		return PopulateOff, nil
	}
	return "", fmt.Errorf("unknown populate mode %q", s)
}

// Populate fills language slots from base-field values on a new record.
// Slots that already carry an explicit value always win; the base column
// itself keeps its value as legacy source data.
func Populate(rec *domain.Record, mode PopulateMode, mt *ModelTranslation, resolver *lang.Resolver) {
	if mode == PopulateOff || mt == nil || resolver == nil {
		return
	}

	for _, field := range mt.Options.Fields {
		base, ok := rec.Get(field)
		if !ok {
			continue
		}

		var targets []string
		switch mode {
		case PopulateAll:
			targets = resolver.Languages()
		case PopulateDefault:
			targets = []string{resolver.Default()}
		case PopulateRequired:
			targets = append([]string{resolver.Default()}, mt.Options.requiredFor(field)...)
		}

		for _, code := range targets {
			slot := LocalizedFieldName(field, code)
			if _, exists := rec.Get(slot); !exists {
				rec.Set(slot, base)
			}
		}
	}
}
