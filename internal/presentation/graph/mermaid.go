package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/hsm"
)

// anyState is the node drawn for edges inherited from the root.
const anyState = "any_state"

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromMachine builds an overlay from a machine's history and current state.
func OverlayFromMachine(m *hsm.Machine) *GraphOverlay {
	overlay := &GraphOverlay{VisitedNodes: m.History().Paths()}
	if cur := m.Current(); cur != nil && !cur.IsRoot() {
		overlay.CurrentNode = cur.Path()
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart for a state machine definition.
// It applies semantic styling:
// - Initial state: ((Circle))
// - Parent states: subgraph
// - Default: [Rectangle]
// Edges inherited from the root start at a shared "*" node.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(def hsm.Definition, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var walk func(parent string, specs []hsm.StateSpec, indent string)
	walk = func(parent string, specs []hsm.StateSpec, indent string) {
		for _, s := range specs {
			p := hsm.JoinPath(parent, s.Name)
			safeID := sanitizeMermaidID(p)
			if len(s.Children) > 0 {
				fmt.Fprintf(&sb, "%ssubgraph %s[\"%s\"]\n", indent, safeID, s.Name)
				walk(p, s.Children, indent+"    ")
				fmt.Fprintf(&sb, "%send\n", indent)
				continue
			}
			opener, closer := "[", "]"
			if p == def.Initial {
				opener, closer = "((", "))"
			}
			fmt.Fprintf(&sb, "%s%s%s\"%s\"%s\n", indent, safeID, opener, s.Name, closer)
		}
	}
	walk(hsm.Root, def.States, "    ")

	inherited := false
	for _, e := range def.Edges {
		for _, src := range e.Sources {
			if src == hsm.Root {
				inherited = true
			}
		}
	}
	if inherited {
		fmt.Fprintf(&sb, "    %s((\"*\"))\n", anyState)
	}

	for _, e := range def.Edges {
		safeTo := sanitizeMermaidID(e.Dest)
		label := strings.ReplaceAll(e.Trigger, "\"", "'")
		for _, src := range e.Sources {
			if src == hsm.Root {
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", anyState, label, safeTo)
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeMermaidID(src), label, safeTo)
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
