// Package property implements the typed, validated property registry of
// SPEC_FULL.md §4.2: a tagged-union property type whose variants are
// enumerated below, rather than a class hierarchy of virtual get/set nodes
// (SPEC_FULL.md §9 "Dynamic property dispatch").
package property

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Type identifies which variant of Property.Check/Canonicalize applies.
type Type int

const (
	TypeString Type = iota
	TypeEnum
	TypeInt
	TypeBool
	TypePassword
)

// Property is one registry entry: (name, comment, default, obligatory,
// hidden, type). Entries are immutable after Register (SPEC_FULL.md §3
// invariants).
type Property struct {
	Name       string
	Comment    string // multi-line, split on "\n" for UI rendering
	Default    string
	Obligatory bool
	Hidden     bool
	Type       Type

	// EnumAliases holds alias groups for TypeEnum; the first entry of the
	// matching group is the canonical spelling. Registration order decides
	// first-match-wins when a value could match more than one group
	// (SPEC_FULL.md §9 open question, resolved).
	EnumAliases [][]string
}

// RedactedValue is substituted for password values in any log line or
// dump, mirroring the config sanitizer's "***REDACTED***" convention.
const RedactedValue = "***REDACTED***"

// New creates a free-string property.
func New(name, comment, def string, obligatory bool) *Property {
	return &Property{Name: name, Comment: comment, Default: def, Obligatory: obligatory, Type: TypeString}
}

// NewHidden creates a hidden free-string property (internal state, never
// shown by the UI enumerator).
func NewHidden(name, comment, def string) *Property {
	return &Property{Name: name, Comment: comment, Default: def, Hidden: true, Type: TypeString}
}

// NewEnum creates an enumerated property. Each element of groups is one
// alias group; groups[i][0] is that group's canonical spelling.
func NewEnum(name, comment string, groups [][]string, obligatory bool) *Property {
	def := ""
	if len(groups) > 0 && len(groups[0]) > 0 {
		def = groups[0][0]
	}
	return &Property{Name: name, Comment: comment, Default: def, Obligatory: obligatory, Type: TypeEnum, EnumAliases: groups}
}

// NewInt creates a signed/unsigned integer property (range checking is the
// caller's responsibility via a wrapping Check, per SPEC_FULL.md §4.2).
func NewInt(name, comment string, def int64) *Property {
	return &Property{Name: name, Comment: comment, Default: strconv.FormatInt(def, 10), Type: TypeInt}
}

// NewBool creates a boolean property; canonical values are "0"/"1".
func NewBool(name, comment string, def bool) *Property {
	return &Property{Name: name, Comment: comment, Default: boolCanonical(def), Type: TypeBool}
}

// NewPassword creates a password property. "" or "-" means prompt at sync
// time; "${VAR}" means resolve from the environment; anything else is a
// literal secret.
func NewPassword(name, comment string) *Property {
	return &Property{Name: name, Comment: comment, Default: "", Type: TypePassword}
}

// Check validates value against this property's type, returning nil when
// it is acceptable or an error describing why not.
func (p *Property) Check(value string) error {
	switch p.Type {
	case TypeEnum:
		if value == "" {
			return nil
		}
		if _, ok := p.resolveEnum(value); !ok {
			return fmt.Errorf("property %q: value %q is not one of the accepted aliases", p.Name, value)
		}
	case TypeInt:
		if value == "" {
			return nil
		}
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			if _, uerr := strconv.ParseUint(value, 10, 64); uerr != nil {
				return fmt.Errorf("property %q: %q is not an integer", p.Name, value)
			}
		}
	case TypeBool:
		if value == "" {
			return nil
		}
		if _, ok := parseBool(value); !ok {
			return fmt.Errorf("property %q: %q is not a recognized boolean", p.Name, value)
		}
	case TypePassword:
		// "", "-", and "${NAME}" are always accepted; literal secrets are
		// accepted unconditionally too (resolution happens at sync time).
	case TypeString:
		// no constraint
	}
	return nil
}

// Canonicalize maps value to its canonical on-read form: enum values
// resolve to the first alias of their matching group, bools to "0"/"1",
// everything else passes through unchanged.
func (p *Property) Canonicalize(value string) string {
	switch p.Type {
	case TypeEnum:
		if canon, ok := p.resolveEnum(value); ok {
			return canon
		}
		return value
	case TypeBool:
		if b, ok := parseBool(value); ok {
			return boolCanonical(b)
		}
		return value
	default:
		return value
	}
}

// resolveEnum returns the canonical spelling for value under first-match
// registration order, or false if no group matches.
func (p *Property) resolveEnum(value string) (string, bool) {
	lower := strings.ToLower(value)
	for _, group := range p.EnumAliases {
		for _, alias := range group {
			if strings.ToLower(alias) == lower {
				return group[0], true
			}
		}
	}
	return "", false
}

// ResolvePassword implements the §3/§4.2 password resolution rules:
//   - "" or "-"        -> prompt (empty string, promptRequired=true)
//   - "${NAME}"        -> read from the process environment
//   - anything else    -> literal secret
func ResolvePassword(value string) (resolved string, promptRequired bool) {
	if value == "" || value == "-" {
		return "", true
	}
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		name := value[2 : len(value)-1]
		return os.Getenv(name), false
	}
	return value, false
}

func parseBool(value string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "1", "T", "TRUE":
		return true, true
	case "0", "F", "FALSE":
		return false, true
	default:
		return false, false
	}
}

func boolCanonical(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// CommentLines splits a multi-line Comment for line-oriented UI rendering.
func (p *Property) CommentLines() []string {
	if p.Comment == "" {
		return nil
	}
	return strings.Split(p.Comment, "\n")
}
