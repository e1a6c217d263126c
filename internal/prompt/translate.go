package prompt

// GlossaryEntry pins one term to a fixed target-language rendering.
type GlossaryEntry struct {
	Term        string
	Translation string
}

// TranslateVars provides dynamic values for building a translation prompt.
// Segments are translated index-aligned, so the model's answer can be mapped
// back onto the markup they were cut from.
type TranslateVars struct {
	SourceName       string
	SourceCode       string
	TargetName       string
	TargetCode       string
	Segments         []string
	Glossary         []GlossaryEntry
	MaxSegmentLength int
}

// BuildTranslate renders the named translation prompt using the shared
// builder.
func BuildTranslate(name TemplateName, vars TranslateVars) (string, error) {
	if vars.MaxSegmentLength <= 0 {
		vars.MaxSegmentLength = 4000
	}
	return DefaultPromptBuilder().Render(name, vars)
}
