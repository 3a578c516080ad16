package prompt

// Template holds the text/template sources for one generation turn.
type Template struct {
	Path    string   `json:"path" yaml:"path"`
	System  string   `json:"system" yaml:"system"`
	User    string   `json:"user" yaml:"user"`
	Prefill string   `json:"prefill,omitempty" yaml:"prefill,omitempty"`
	Stop    []string `json:"stop,omitempty" yaml:"stop,omitempty"`
}

// Turn is a rendered Template.
type Turn struct {
	System  string
	User    string
	Prefill string
	Stop    []string
}

// Vars are the interpolation variables of a render.
type Vars map[string]any
