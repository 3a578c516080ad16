package parse

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned when text is not a well-formed fragment.
var ErrMalformed = errors.New("malformed structured text")

// RootTag wraps every fragment before decoding.
const RootTag = "root"

// AttrPrefix marks attribute keys in decoded maps.
const AttrPrefix = "@"

// TextKey holds the text of an element that also has attributes.
const TextKey = "#text"

type node struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	children []*node
}

// ToMap decodes a fragment of sibling elements into a map.
//
// Leaf elements become trimmed strings; empty leaves and the literal "None"
// become nil. Repeated sibling tags collect into a []any in document order.
// Attributes are stored under "@name". Text outside any element is ignored.
func ToMap(text string) (map[string]any, error) {
	root, err := decodeTree(strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, child := range root.children {
		add(out, child.name, convert(child))
	}
	return out, nil
}

func decodeTree(text string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader("<" + RootTag + ">" + text + "</" + RootTag + ">"))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil || len(stack) != 0 {
		return nil, fmt.Errorf("%w: unbalanced fragment", ErrMalformed)
	}
	return root, nil
}

func convert(n *node) any {
	if len(n.children) == 0 {
		text := strings.TrimSpace(n.text.String())
		var value any = text
		if text == "" || text == "None" {
			value = nil
		}
		if len(n.attrs) == 0 {
			return value
		}
		m := attrMap(n.attrs)
		m[TextKey] = value
		return m
	}

	m := attrMap(n.attrs)
	for _, child := range n.children {
		add(m, child.name, convert(child))
	}
	return m
}

func attrMap(attrs []xml.Attr) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[AttrPrefix+a.Name.Local] = a.Value
	}
	return m
}

func add(m map[string]any, key string, value any) {
	existing, ok := m[key]
	if !ok {
		m[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		m[key] = append(list, value)
		return
	}
	m[key] = []any{existing, value}
}

// Lookup walks a dotted path through nested maps.
func Lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when absent or not a string.
func String(m map[string]any, path string) string {
	v, ok := Lookup(m, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Escape escapes text for embedding in a fragment.
func Escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
