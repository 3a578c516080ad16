package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestOptions_RenamesErrorKey(t *testing.T) {
	a := options(slog.LevelInfo).ReplaceAttr(nil, slog.String("error", "boom"))
	assert.Equal(t, "err", a.Key)
}
