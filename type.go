package magma

import "fmt"

// Type is the kind of artifact a flow produces.
type Type string

const (
	// TypeStyle produces a stylesheet.
	TypeStyle Type = "css"

	// TypeScript produces a script.
	TypeScript Type = "js"

	// TypeTemplate produces a script that registers precompiled templates.
	TypeTemplate Type = "jst"
)

var typeAliases = map[string]Type{
	"css":      TypeStyle,
	"style":    TypeStyle,
	"js":       TypeScript,
	"script":   TypeScript,
	"jst":      TypeTemplate,
	"template": TypeTemplate,
}

var mimeTypes = map[Type]string{
	TypeStyle:    "text/css",
	TypeScript:   "application/javascript",
	TypeTemplate: "application/javascript",
}

// ParseType resolves a type name or one of its aliases.
func ParseType(s string) (Type, error) {
	t, ok := typeAliases[s]
	if !ok {
		return "", fmt.Errorf("invalid type: %q", s)
	}
	return t, nil
}

// MIMEType returns the MIME type of the artifact produced by flows of type t.
func (t Type) MIMEType() (string, bool) {
	m, ok := mimeTypes[t]
	return m, ok
}

// Extension is the file extension matched by flows of type t when no
// extensions are configured.
func (t Type) Extension() string {
	return string(t)
}

// subLanguages lists the extensions matched in addition to the type's own.
func (t Type) subLanguages() []string {
	switch t {
	case TypeStyle:
		return []string{"sass", "scss", "less", "styl"}
	case TypeScript:
		return []string{"coffee"}
	default:
		return nil
	}
}
