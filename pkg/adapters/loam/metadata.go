package loam

// TemplateMetadata is the frontmatter of a template document.
// The document body is the user template.
type TemplateMetadata struct {
	// Path overrides the state path derived from the file name.
	Path    string   `json:"path" mapstructure:"path"`
	System  string   `json:"system" mapstructure:"system"`
	Prefill string   `json:"prefill" mapstructure:"prefill"`
	Stop    []string `json:"stop" mapstructure:"stop"`
}
