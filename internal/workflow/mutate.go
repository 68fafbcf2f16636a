// Package workflow parses workflow documents and rewrites their trigger.
package workflow

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

const (
	// TriggerKey is the top-level field declaring which events start a run.
	TriggerKey = "on"
	// PushTrigger is the canonical unconditional push trigger.
	PushTrigger = "push"
)

// TriggerMutator replaces a workflow's trigger with PushTrigger.
//
// The rewrite is lossy: the original trigger, including any branch or path
// filters, is discarded and reported in Mutation.ReplacedTrigger.
type TriggerMutator struct{}

var _ interfaces.Mutator = TriggerMutator{}

// NewTriggerMutator returns a TriggerMutator.
func NewTriggerMutator() TriggerMutator {
	return TriggerMutator{}
}

// Mutate parses document, swaps the trigger value and re-serializes it.
// Every other field is kept as parsed, including key order and comments.
func (TriggerMutator) Mutate(document []byte) (interfaces.Mutation, error) {
	doc, root, err := parseRoot(document)
	if err != nil {
		return interfaces.Mutation{}, err
	}

	push := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: PushTrigger}

	var replaced string
	if idx := keyIndex(root, TriggerKey); idx >= 0 {
		old := root.Content[idx+1]
		replaced = inline(old)
		root.Content[idx+1] = push
		rehomeAnchors(doc, old)
	} else {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: TriggerKey}
		at := 0
		if nameIdx := keyIndex(root, "name"); nameIdx >= 0 {
			at = nameIdx + 2
		}
		content := make([]*yaml.Node, 0, len(root.Content)+2)
		content = append(content, root.Content[:at]...)
		content = append(content, key, push)
		content = append(content, root.Content[at:]...)
		root.Content = content
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return interfaces.Mutation{}, ghaerrors.Wrap(err, ghaerrors.CodeMalformedDocument, "could not serialize workflow")
	}
	if err := enc.Close(); err != nil {
		return interfaces.Mutation{}, ghaerrors.Wrap(err, ghaerrors.CodeMalformedDocument, "could not serialize workflow")
	}

	return interfaces.Mutation{Document: buf.Bytes(), ReplacedTrigger: replaced}, nil
}

// rehomeAnchors keeps anchors defined inside the removed subtree resolvable.
// The first remaining alias to each such anchor is replaced by the anchored
// node itself, so later aliases still follow their definition.
func rehomeAnchors(doc, removed *yaml.Node) {
	pending := map[*yaml.Node]bool{}
	collectAnchors(removed, pending)
	if len(pending) == 0 {
		return
	}

	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		for i, child := range n.Content {
			if child.Kind == yaml.AliasNode && pending[child.Alias] {
				target := child.Alias
				// Anchors nested in target are defined here from now on.
				forget := map[*yaml.Node]bool{}
				collectAnchors(target, forget)
				for node := range forget {
					delete(pending, node)
				}
				n.Content[i] = target
				child = target
			}
			walk(child)
		}
	}
	walk(doc)
}

func collectAnchors(n *yaml.Node, into map[*yaml.Node]bool) {
	if n.Anchor != "" {
		into[n] = true
	}
	for _, child := range n.Content {
		collectAnchors(child, into)
	}
}

// Decode parses document into a generic map. The root must be a mapping.
func Decode(document []byte) (map[string]any, error) {
	if _, _, err := parseRoot(document); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(document, &out); err != nil {
		return nil, ghaerrors.Wrap(err, ghaerrors.CodeMalformedDocument, "could not decode workflow")
	}
	return out, nil
}

// Trigger returns the serialized trigger of document, or "" if it has none.
func Trigger(document []byte) (string, error) {
	_, root, err := parseRoot(document)
	if err != nil {
		return "", err
	}
	idx := keyIndex(root, TriggerKey)
	if idx < 0 {
		return "", nil
	}
	return inline(root.Content[idx+1]), nil
}

func parseRoot(document []byte) (*yaml.Node, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(document, &doc); err != nil {
		return nil, nil, ghaerrors.Wrap(err, ghaerrors.CodeMalformedDocument, "could not parse workflow")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, ghaerrors.New(ghaerrors.CodeMalformedDocument, "workflow document is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, ghaerrors.New(ghaerrors.CodeMalformedDocument,
			fmt.Sprintf("workflow root must be a mapping, got %s", kindName(root.Kind)))
	}
	return &doc, root, nil
}

func keyIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k := mapping.Content[i]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return i
		}
	}
	return -1
}

// inline renders node on a single line where possible.
func inline(node *yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	flow := *node
	flow.Style |= yaml.FlowStyle
	flow.HeadComment, flow.LineComment, flow.FootComment = "", "", ""
	out, err := yaml.Marshal(&flow)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "unknown"
	}
}
