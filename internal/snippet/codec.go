package snippet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Top-level and per-match keys of the on-disk document.
const (
	keyMatches    = "matches"
	keyGlobalVars = "global_vars"

	keyTrigger   = "trigger"
	keyReplace   = "replace"
	keyLabel     = "label"
	keyEnabled   = "enabled"
	keyBackend   = "backend"
	keyDelay     = "delay"
	keyLeftWord  = "left_word"
	keyRightWord = "right_word"
	keyUppercase = "uppercase_style"
	keyImagePath = "image_path"
	keyVars      = "vars"
	keyFields    = "form_fields"
)

// ParseError reports an unreadable match file. Line and Column are 1-based
// and zero when the position cannot be derived from the underlying text.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
	}

	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// File is the decoded form of one match file: an ordered list of snippets
// plus every top-level section the codec does not model, carried verbatim.
type File struct {
	Path     string
	Snippets []Snippet

	sections []fileSection
}

// fileSection is one top-level key of the document in on-disk order. The
// matches slot is a placeholder re-encoded from File.Snippets.
type fileSection struct {
	key     *yaml.Node
	value   *yaml.Node
	matches bool
}

// NewFile creates an empty in-memory match file for path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Decode parses raw match-file bytes. The zero-length (or comment-only)
// document decodes to an empty file. Unknown top-level keys and unknown
// per-match keys are preserved for Encode.
func Decode(path string, data []byte) (*File, error) {
	file := &File{Path: path}

	var doc yaml.Node

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Line: yamlErrorLine(err), Msg: err.Error()}
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return file, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return file, nil
	}

	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path: path, Line: root.Line, Column: root.Column,
			Msg: "top level must be a mapping",
		}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		if keyNode.Value != keyMatches {
			file.sections = append(file.sections, fileSection{key: keyNode, value: valNode})

			continue
		}

		snippets, err := decodeMatches(path, valNode)
		if err != nil {
			return nil, err
		}

		file.Snippets = snippets
		file.sections = append(file.sections, fileSection{matches: true})
	}

	return file, nil
}

// Encode serializes the file back to match-file bytes. Snippets are written
// in order with known keys in canonical order followed by preserved unknown
// keys; non-matches sections are written back verbatim in their original
// slots. A matches key is always present so the result stays a valid match
// file even when the last snippet was deleted.
func Encode(file *File) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	hasMatches := false

	for _, sec := range file.sections {
		if sec.matches {
			hasMatches = true

			root.Content = append(root.Content, scalarNode(keyMatches), encodeMatches(file.Snippets))

			continue
		}

		root.Content = append(root.Content, sec.key, sec.value)
	}

	if !hasMatches {
		root.Content = append(root.Content, scalarNode(keyMatches), encodeMatches(file.Snippets))
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", file.Path, err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", file.Path, err)
	}

	return buf.Bytes(), nil
}

// GlobalVars decodes the file's top-level global_vars list. A missing
// section yields an empty list.
func (f *File) GlobalVars() ([]Variable, error) {
	sec := f.findSection(keyGlobalVars)
	if sec == nil || isNullNode(sec.value) {
		return nil, nil
	}

	if sec.value.Kind != yaml.SequenceNode {
		return nil, &ParseError{
			Path: f.Path, Line: sec.value.Line, Column: sec.value.Column,
			Msg: "global_vars must be a list",
		}
	}

	vars := make([]Variable, 0, len(sec.value.Content))

	for _, item := range sec.value.Content {
		var doc struct {
			Name   string         `yaml:"name"`
			Type   string         `yaml:"type"`
			Params map[string]any `yaml:"params"`
		}

		if err := item.Decode(&doc); err != nil {
			return nil, &ParseError{
				Path: f.Path, Line: item.Line, Column: item.Column,
				Msg: fmt.Sprintf("invalid global variable: %v", err),
			}
		}

		vars = append(vars, Variable{Name: doc.Name, Type: doc.Type, Params: doc.Params})
	}

	return vars, nil
}

// SetGlobalVars replaces the file's global_vars section (full replacement,
// creating the section when absent and removing it when vars is empty).
func (f *File) SetGlobalVars(vars []Variable) error {
	if len(vars) == 0 {
		f.removeSection(keyGlobalVars)

		return nil
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}

	for _, v := range vars {
		entry := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		entry.Content = append(entry.Content, scalarNode("name"), scalarNode(v.Name))
		entry.Content = append(entry.Content, scalarNode("type"), scalarNode(v.Type))

		if len(v.Params) > 0 {
			params := &yaml.Node{}
			if err := params.Encode(v.Params); err != nil {
				return fmt.Errorf("encoding params for variable %q: %w", v.Name, err)
			}

			entry.Content = append(entry.Content, scalarNode("params"), params)
		}

		seq.Content = append(seq.Content, entry)
	}

	if sec := f.findSection(keyGlobalVars); sec != nil {
		sec.value = seq

		return nil
	}

	f.sections = append(f.sections, fileSection{key: scalarNode(keyGlobalVars), value: seq})

	return nil
}

func (f *File) findSection(key string) *fileSection {
	for i := range f.sections {
		if !f.sections[i].matches && f.sections[i].key.Value == key {
			return &f.sections[i]
		}
	}

	return nil
}

func (f *File) removeSection(key string) {
	for i := range f.sections {
		if !f.sections[i].matches && f.sections[i].key.Value == key {
			f.sections = append(f.sections[:i], f.sections[i+1:]...)

			return
		}
	}
}

func decodeMatches(path string, node *yaml.Node) ([]Snippet, error) {
	if isNullNode(node) {
		return nil, nil
	}

	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{
			Path: path, Line: node.Line, Column: node.Column,
			Msg: "matches must be a list",
		}
	}

	snippets := make([]Snippet, 0, len(node.Content))

	for _, item := range node.Content {
		snip, err := decodeMatch(path, item)
		if err != nil {
			return nil, err
		}

		snippets = append(snippets, snip)
	}

	return snippets, nil
}

func decodeMatch(path string, node *yaml.Node) (Snippet, error) {
	if node.Kind != yaml.MappingNode {
		return Snippet{}, &ParseError{
			Path: path, Line: node.Line, Column: node.Column,
			Msg: "match entry must be a mapping",
		}
	}

	snip := Snippet{Enabled: true}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		var decodeErr error

		switch keyNode.Value {
		case keyTrigger:
			decodeErr = valNode.Decode(&snip.Trigger)
		case keyReplace:
			decodeErr = valNode.Decode(&snip.Replace)
		case keyLabel:
			decodeErr = valNode.Decode(&snip.Label)
		case keyEnabled:
			decodeErr = valNode.Decode(&snip.Enabled)
		case keyBackend:
			decodeErr = valNode.Decode(&snip.Backend)
		case keyDelay:
			decodeErr = valNode.Decode(&snip.DelayMS)
		case keyLeftWord:
			decodeErr = valNode.Decode(&snip.LeftWord)
		case keyRightWord:
			decodeErr = valNode.Decode(&snip.RightWord)
		case keyUppercase:
			decodeErr = valNode.Decode(&snip.Uppercase)
		case keyImagePath:
			decodeErr = valNode.Decode(&snip.ImagePath)
		case keyVars:
			snip.Vars, decodeErr = decodeVars(valNode)
		case keyFields:
			snip.Fields, decodeErr = decodeFields(valNode)
		default:
			snip.Extra = append(snip.Extra, ExtraField{Key: keyNode.Value, Value: valNode})
		}

		if decodeErr != nil {
			return Snippet{}, &ParseError{
				Path: path, Line: valNode.Line, Column: valNode.Column,
				Msg: fmt.Sprintf("invalid %s: %v", keyNode.Value, decodeErr),
			}
		}
	}

	return snip, nil
}

func decodeVars(node *yaml.Node) ([]VariableRef, error) {
	if isNullNode(node) {
		return nil, nil
	}

	var docs []struct {
		Name   string         `yaml:"name"`
		Type   string         `yaml:"type"`
		Params map[string]any `yaml:"params"`
	}

	if err := node.Decode(&docs); err != nil {
		return nil, err
	}

	vars := make([]VariableRef, 0, len(docs))
	for _, d := range docs {
		vars = append(vars, VariableRef{Name: d.Name, Kind: d.Type, Params: d.Params})
	}

	return vars, nil
}

func decodeFields(node *yaml.Node) ([]FormField, error) {
	if isNullNode(node) {
		return nil, nil
	}

	var docs []struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Default string   `yaml:"default"`
		Choices []string `yaml:"choices"`
	}

	if err := node.Decode(&docs); err != nil {
		return nil, err
	}

	fields := make([]FormField, 0, len(docs))
	for _, d := range docs {
		fields = append(fields, FormField{Name: d.Name, Type: d.Type, Default: d.Default, Choices: d.Choices})
	}

	return fields, nil
}

func encodeMatches(snippets []Snippet) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}

	for i := range snippets {
		seq.Content = append(seq.Content, encodeMatch(&snippets[i]))
	}

	return seq
}

func encodeMatch(s *Snippet) *yaml.Node {
	entry := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	appendPair := func(key string, value *yaml.Node) {
		entry.Content = append(entry.Content, scalarNode(key), value)
	}

	appendPair(keyTrigger, scalarNode(s.Trigger))

	if s.Label != "" {
		appendPair(keyLabel, scalarNode(s.Label))
	}

	appendPair(keyReplace, scalarNode(s.Replace))

	if !s.Enabled {
		appendPair(keyEnabled, boolNode(false))
	}

	if s.Backend != BackendDefault {
		appendPair(keyBackend, scalarNode(s.Backend))
	}

	if s.DelayMS != 0 {
		appendPair(keyDelay, intNode(s.DelayMS))
	}

	if s.LeftWord {
		appendPair(keyLeftWord, boolNode(true))
	}

	if s.RightWord {
		appendPair(keyRightWord, boolNode(true))
	}

	if s.Uppercase != UppercaseNone {
		appendPair(keyUppercase, scalarNode(s.Uppercase))
	}

	if s.ImagePath != "" {
		appendPair(keyImagePath, scalarNode(s.ImagePath))
	}

	if len(s.Vars) > 0 {
		appendPair(keyVars, encodeVars(s.Vars))
	}

	if len(s.Fields) > 0 {
		appendPair(keyFields, encodeFields(s.Fields))
	}

	for _, extra := range s.Extra {
		appendPair(extra.Key, extra.Value)
	}

	return entry
}

func encodeVars(vars []VariableRef) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}

	for _, v := range vars {
		entry := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		entry.Content = append(entry.Content, scalarNode("name"), scalarNode(v.Name))
		entry.Content = append(entry.Content, scalarNode("type"), scalarNode(v.Kind))

		if len(v.Params) > 0 {
			params := &yaml.Node{}
			// map[string]any always encodes; the panic path needs an
			// unmarshalable value which cannot reach here from Decode.
			if err := params.Encode(v.Params); err != nil {
				panic(fmt.Sprintf("encoding var params: %v", err))
			}

			entry.Content = append(entry.Content, scalarNode("params"), params)
		}

		seq.Content = append(seq.Content, entry)
	}

	return seq
}

func encodeFields(fields []FormField) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}

	for _, f := range fields {
		entry := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		entry.Content = append(entry.Content, scalarNode("name"), scalarNode(f.Name))

		if f.Type != "" {
			entry.Content = append(entry.Content, scalarNode("type"), scalarNode(f.Type))
		}

		if f.Default != "" {
			entry.Content = append(entry.Content, scalarNode("default"), scalarNode(f.Default))
		}

		if len(f.Choices) > 0 {
			choices := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, c := range f.Choices {
				choices.Content = append(choices.Content, scalarNode(c))
			}

			entry.Content = append(entry.Content, scalarNode("choices"), choices)
		}

		seq.Content = append(seq.Content, entry)
	}

	return seq
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func boolNode(value bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(value)}
}

func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
}

func isNullNode(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

// yamlErrorLine extracts the line number from go-yaml syntax errors, which
// read "yaml: line N: ...". Returns 0 when no line is present.
func yamlErrorLine(err error) int {
	msg := err.Error()

	const prefix = "yaml: line "

	idx := strings.Index(msg, prefix)
	if idx < 0 {
		return 0
	}

	rest := msg[idx+len(prefix):]

	end := strings.IndexByte(rest, ':')
	if end < 0 {
		return 0
	}

	line, convErr := strconv.Atoi(rest[:end])
	if convErr != nil {
		return 0
	}

	return line
}
