package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns step Markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour-backed renderer.
// It falls back to plain text when glamour cannot be initialized.
func NewRenderer() Renderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return PlainRenderer
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// PlainRenderer returns the Markdown unchanged.
func PlainRenderer(markdown string) (string, error) {
	return markdown, nil
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// RendererFor picks glamour for terminals and plain text otherwise.
func RendererFor(f *os.File) Renderer {
	if IsInteractive(f) {
		return NewRenderer()
	}
	return PlainRenderer
}
