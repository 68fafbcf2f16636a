package workflow

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// inputEvents are the triggers that let a caller pass inputs to a run.
var inputEvents = []string{"workflow_dispatch", "workflow_call"}

// DeclaredInputs returns the sorted names of inputs declared by the
// document's workflow_dispatch and workflow_call triggers. A push run
// supplies none of them.
func DeclaredInputs(document []byte) ([]string, error) {
	_, root, err := parseRoot(document)
	if err != nil {
		return nil, err
	}
	idx := keyIndex(root, TriggerKey)
	if idx < 0 || root.Content[idx+1].Kind != yaml.MappingNode {
		return nil, nil
	}
	trigger := root.Content[idx+1]

	seen := map[string]bool{}
	for _, event := range inputEvents {
		i := keyIndex(trigger, event)
		if i < 0 || trigger.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		j := keyIndex(trigger.Content[i+1], "inputs")
		if j < 0 {
			continue
		}
		inputs := trigger.Content[i+1].Content[j+1]
		if inputs.Kind != yaml.MappingNode {
			continue
		}
		for k := 0; k+1 < len(inputs.Content); k += 2 {
			seen[inputs.Content[k].Value] = true
		}
	}

	if len(seen) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
