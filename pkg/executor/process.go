package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InterpreterConfig allow-lists an external interpreter for one language.
type InterpreterConfig struct {
	Language string            `yaml:"language" json:"language" koanf:"language"`
	Command  string            `yaml:"command" json:"command" koanf:"command"`
	Args     []string          `yaml:"args" json:"args" koanf:"args"`
	Ext      string            `yaml:"ext" json:"ext" koanf:"ext"`
	Comment  string            `yaml:"comment" json:"comment" koanf:"comment"`
	Env      map[string]string `yaml:"env" json:"env" koanf:"env"`
}

// interpretersFile is the structure of interpreters.yaml.
type interpretersFile struct {
	Interpreters []InterpreterConfig `yaml:"interpreters"`
}

// LoadInterpreters reads an allow-list file. A missing file means no
// interpreters are configured.
func LoadInterpreters(path string) ([]InterpreterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read interpreters config: %w", err)
	}

	var f interpretersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse interpreters config: %w", err)
	}

	out := make([]InterpreterConfig, 0, len(f.Interpreters))
	for _, c := range f.Interpreters {
		if c.Language == "" || c.Command == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Interpreter runs step files through an allow-listed external command.
// Unlike the Lua runtime, each run is a fresh process: only files written to
// the session directory persist between steps.
type Interpreter struct {
	cfg InterpreterConfig
	dir string
}

// NewInterpreter creates an interpreter runtime rooted at dir.
func NewInterpreter(cfg InterpreterConfig, dir string) *Interpreter {
	if cfg.Ext == "" {
		cfg.Ext = "." + strings.ToLower(cfg.Language)
	}
	if !strings.HasPrefix(cfg.Ext, ".") {
		cfg.Ext = "." + cfg.Ext
	}
	if cfg.Comment == "" {
		cfg.Comment = "#"
	}
	return &Interpreter{cfg: cfg, dir: dir}
}

func (p *Interpreter) Language() string { return strings.ToLower(p.cfg.Language) }
func (p *Interpreter) Ext() string      { return p.cfg.Ext }
func (p *Interpreter) Comment() string  { return p.cfg.Comment }
func (p *Interpreter) Close() error     { return nil }

// Run executes the configured command with the step file as its last argument.
func (p *Interpreter) Run(ctx context.Context, path, _ string, stdout, stderr io.Writer) error {
	args := append(append([]string{}, p.cfg.Args...), filepath.Base(path))
	cmd := exec.CommandContext(ctx, p.cfg.Command, args...)
	cmd.Dir = p.dir

	env := make([]string, 0, len(p.cfg.Env))
	for k, v := range p.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Environ(), env...)

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s exited: %w", p.cfg.Command, err)
	}
	return nil
}
