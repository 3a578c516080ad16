package parse

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(\\w+)\\n(.*?)```")

// ExtractCode returns the language tag and body of the first fenced code block.
func ExtractCode(text string) (lang, code string, ok bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Fence wraps code in a fenced block tagged with lang.
func Fence(lang, code string) string {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return "```" + lang + "\n" + code + "```"
}

var stepTagPattern = regexp.MustCompile(`(?s)<step_\d+>(.*?)</step_\d+>`)

// StripStepTags removes <step_N> wrappers, keeping their content.
func StripStepTags(text string) string {
	return stepTagPattern.ReplaceAllString(text, "$1")
}
