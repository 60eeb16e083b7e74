// Package snippet defines the snippet data model and the codec between
// match files on disk and in-memory values.
package snippet

import "gopkg.in/yaml.v3"

// Backend selects how the expansion runtime injects the replacement text.
const (
	BackendDefault   = ""
	BackendInject    = "inject"
	BackendClipboard = "clipboard"
)

// Uppercase styles applied to the replacement when the trigger was typed
// with different casing.
const (
	UppercaseNone       = ""
	UppercaseCapitalize = "capitalize"
	UppercaseUpper      = "uppercase"
	UppercaseLower      = "lowercase"
)

// Variable kinds understood by the expansion runtime.
const (
	VarEcho      = "echo"
	VarShell     = "shell"
	VarClipboard = "clipboard"
	VarDate      = "date"
	VarChoice    = "choice"
	VarRandom    = "random"
	VarForm      = "form"
)

// VariableRef is one entry of a snippet's vars list: a named value the
// replacement text can reference as {{name}}.
type VariableRef struct {
	Name   string
	Kind   string
	Params map[string]any
}

// FormField describes one input of a form snippet.
type FormField struct {
	Name    string
	Type    string
	Default string
	Choices []string
}

// ExtraField preserves a match key the codec does not model. The value node
// is carried verbatim so round-tripping never drops user data.
type ExtraField struct {
	Key   string
	Value *yaml.Node
}

// Snippet is a single text-expansion rule. Trigger is the logical key and
// is treated as immutable identity by the store: changing it is modeled as
// delete-then-insert under a new key.
type Snippet struct {
	Trigger   string
	Replace   string
	Label     string
	Enabled   bool // defaults to true when absent on disk
	Backend   string
	DelayMS   int
	LeftWord  bool
	RightWord bool
	Uppercase string
	ImagePath string
	Vars      []VariableRef
	Fields    []FormField

	// Extra holds unknown per-match keys in on-disk order.
	Extra []ExtraField
}

// HasVars reports whether the snippet declares any variables.
func (s *Snippet) HasVars() bool { return len(s.Vars) > 0 }

// HasForm reports whether the snippet declares a form (a form variable or
// form fields).
func (s *Snippet) HasForm() bool {
	if len(s.Fields) > 0 {
		return true
	}

	for _, v := range s.Vars {
		if v.Kind == VarForm {
			return true
		}
	}

	return false
}

// Variable is one entry of a match file's top-level global_vars list.
type Variable struct {
	Name   string
	Type   string
	Params map[string]any
}
