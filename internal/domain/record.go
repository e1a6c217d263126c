package domain

// Record is a row of a registered model. Values holds every column of the
// row, including one slot per configured language for each translated field
// (a field "title" with languages de and en is stored under "title_de" and
// "title_en" next to the legacy base column "title").
type Record struct {
	Table  string         `json:"table"`
	PK     int64          `json:"pk"`
	Values map[string]any `json:"values"`
}

func NewRecord(table string) *Record {
	return &Record{
		Table:  table,
		Values: make(map[string]any),
	}
}

func (r *Record) Get(column string) (any, bool) {
	if r.Values == nil {
		return nil, false
	}
	v, ok := r.Values[column]
	return v, ok
}

func (r *Record) Set(column string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[column] = value
}

func (r *Record) Clone() *Record {
	clone := &Record{
		Table:  r.Table,
		PK:     r.PK,
		Values: make(map[string]any, len(r.Values)),
	}
	for k, v := range r.Values {
		clone.Values[k] = v
	}
	return clone
}

// FieldResolution describes which slot actually served a translated field in
// a localized view.
type FieldResolution struct {
	Language     string `json:"language"`
	FallbackUsed bool   `json:"fallbackUsed"`
}

// LanguageMeta accompanies every localized view so clients can tell which
// language each field resolved to.
type LanguageMeta struct {
	Requested string                     `json:"requested"`
	Fields    map[string]FieldResolution `json:"fields,omitempty"`
}

// LocalizedRecord is a record rendered for one active language: translated
// fields are collapsed to a single resolved value.
type LocalizedRecord struct {
	Table    string         `json:"table"`
	PK       int64          `json:"pk"`
	Values   map[string]any `json:"values"`
	Language LanguageMeta   `json:"_language"`
}
