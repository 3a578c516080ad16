package runner_test

import (
	"io"
	"testing"
)

// ioPipe returns a reader that blocks until the writer is closed.
func ioPipe(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pr.Close() })
	return pr, pw
}
