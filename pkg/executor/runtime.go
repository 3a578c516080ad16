package executor

import (
	"context"
	"io"
)

// Runtime evaluates step code for one language.
type Runtime interface {
	// Language is the fenced-code tag this runtime serves (e.g. "lua").
	Language() string
	// Ext is the step file extension, including the dot.
	Ext() string
	// Comment is the line-comment prefix used when condensing code.
	Comment() string
	// Run evaluates code read from path. A returned error means the code
	// itself failed; the executor renders it into stderr.
	Run(ctx context.Context, path, code string, stdout, stderr io.Writer) error
	// Close releases the execution context.
	Close() error
}
