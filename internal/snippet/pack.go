package snippet

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodePack parses a portable snippet pack. Three shapes are accepted: a
// match file document ({"matches": [...]}), a bare YAML list of matches,
// and the JSON equivalents of either (JSON is a YAML subset, so one parser
// covers all of them). The source name only feeds error messages.
func DecodePack(source string, data []byte) ([]Snippet, error) {
	var doc yaml.Node

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: source, Line: yamlErrorLine(err), Msg: err.Error()}
	}

	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		return decodeMatches(source, root)
	case yaml.MappingNode:
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == keyMatches {
				return decodeMatches(source, root.Content[i+1])
			}
		}

		return nil, &ParseError{Path: source, Line: root.Line, Msg: "pack has no matches key"}
	case yaml.ScalarNode:
		if isNullNode(root) {
			return nil, nil
		}
	}

	return nil, &ParseError{Path: source, Line: root.Line, Msg: "pack must be a match document or a list of matches"}
}

// EncodePackYAML renders snippets as a standalone match document.
func EncodePackYAML(snippets []Snippet) ([]byte, error) {
	file := NewFile("")
	file.Snippets = snippets

	return Encode(file)
}

// EncodePackJSON renders snippets as {"matches": [...]} JSON. Preserved
// unknown keys are carried along as plain JSON values.
func EncodePackJSON(snippets []Snippet) ([]byte, error) {
	matches := make([]map[string]any, 0, len(snippets))

	for i := range snippets {
		entry, err := packEntry(&snippets[i])
		if err != nil {
			return nil, err
		}

		matches = append(matches, entry)
	}

	out, err := json.MarshalIndent(map[string]any{keyMatches: matches}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pack: %w", err)
	}

	return append(out, '\n'), nil
}

func packEntry(s *Snippet) (map[string]any, error) {
	entry := map[string]any{keyTrigger: s.Trigger, keyReplace: s.Replace}

	if s.Label != "" {
		entry[keyLabel] = s.Label
	}

	if !s.Enabled {
		entry[keyEnabled] = false
	}

	if s.Backend != BackendDefault {
		entry[keyBackend] = s.Backend
	}

	if s.DelayMS != 0 {
		entry[keyDelay] = s.DelayMS
	}

	if s.LeftWord {
		entry[keyLeftWord] = true
	}

	if s.RightWord {
		entry[keyRightWord] = true
	}

	if s.Uppercase != UppercaseNone {
		entry[keyUppercase] = s.Uppercase
	}

	if s.ImagePath != "" {
		entry[keyImagePath] = s.ImagePath
	}

	if len(s.Vars) > 0 {
		vars := make([]map[string]any, 0, len(s.Vars))
		for _, v := range s.Vars {
			one := map[string]any{"name": v.Name, "type": v.Kind}
			if len(v.Params) > 0 {
				one["params"] = v.Params
			}

			vars = append(vars, one)
		}

		entry[keyVars] = vars
	}

	if len(s.Fields) > 0 {
		fields := make([]map[string]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			one := map[string]any{"name": f.Name, "type": f.Type}
			if f.Default != "" {
				one["default"] = f.Default
			}

			if len(f.Choices) > 0 {
				one["choices"] = f.Choices
			}

			fields = append(fields, one)
		}

		entry[keyFields] = fields
	}

	for _, extra := range s.Extra {
		var value any
		if err := extra.Value.Decode(&value); err != nil {
			return nil, fmt.Errorf("encoding extra key %q: %w", extra.Key, err)
		}

		entry[extra.Key] = value
	}

	return entry, nil
}
