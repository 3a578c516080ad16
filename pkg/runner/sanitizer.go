package runner

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize is 16KB; tasks may paste code
	DefaultMaxInputSize = 16384
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "CANOPY_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// ansiEscape matches CSI and OSC terminal sequences, which show up when
// compiler output or a colored log is pasted into a task.
var ansiEscape = regexp.MustCompile(`\x1b(\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(\x07|\x1b\\))`)

// SanitizeInput turns a raw line into task text for prompts and step logs.
// Oversized or invalid UTF-8 input is rejected. Terminal escape sequences are
// removed whole, line endings become "\n", other control characters except
// tab are dropped and surrounding whitespace is trimmed.
func SanitizeInput(input string) (string, error) {
	if limit := maxInputSize(); len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	input = ansiEscape.ReplaceAllString(input, "")
	input = strings.ReplaceAll(input, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == '\r':
			b.WriteRune('\n')
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
