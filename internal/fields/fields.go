package fields

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnknownField is returned when an operation names a field that is not in
// the registry.
var ErrUnknownField = errors.New("unknown field")

type Kind string

const (
	KindText    Kind = "text"
	KindNumeric Kind = "numeric"
	KindSelect  Kind = "select"
	KindChoice  Kind = "choice"
	KindFiles   Kind = "files"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindNumeric, KindSelect, KindChoice, KindFiles:
		return true
	}
	return false
}

// Option is one selectable value of a select or choice field.
type Option struct {
	Value string
	Label string
}

// Messages holds the user-facing text reported for each failed rule.
type Messages struct {
	Required  string
	MinLength string
	MaxLength string
	Pattern   string
	Option    string
}

const (
	defaultRequiredMessage = "This field is mandatory"
	defaultPatternMessage  = "Please enter a valid numerical value."
	defaultOptionMessage   = "Please select one of the listed options."
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Definition describes one field of the form and the rule it is validated
// against. Definitions are immutable after the registry is loaded.
type Definition struct {
	Name        string
	Label       string
	Kind        Kind
	Required    bool
	MinLength   int
	MaxLength   int
	MinItems    int
	MaxItems    int
	Hint        string
	Placeholder string
	Prefix      string
	Counter     bool
	Options     []Option
	Messages    Messages

	pattern *regexp.Regexp
}

// Pattern returns the source of the format rule, or "" when the field has none.
func (d *Definition) Pattern() string {
	if d.pattern == nil {
		return ""
	}
	return d.pattern.String()
}

// Scalar reports whether the field stores a single string value.
func (d *Definition) Scalar() bool {
	return d.Kind != KindFiles
}

// HasOption reports whether value is one of the field's options.
func (d *Definition) HasOption(value string) bool {
	return slices.ContainsFunc(d.Options, func(o Option) bool { return o.Value == value })
}

// Normalize coerces raw input into the form the field stores. Numeric fields
// keep only their digits, so "12a3" becomes "123".
func (d *Definition) Normalize(raw string) string {
	if d.Kind != KindNumeric {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate applies the field's rule to a scalar value and returns the error
// message to display, or "" when the value is acceptable. Rules are checked
// in order: required, minimum length, maximum length, pattern, options.
func (d *Definition) Validate(value string) string {
	if value == "" {
		if d.Required {
			return d.requiredMessage()
		}
		return ""
	}

	n := utf8.RuneCountInString(value)
	if d.MinLength > 0 && n < d.MinLength {
		return d.Messages.MinLength
	}
	if d.MaxLength > 0 && n > d.MaxLength {
		return d.Messages.MaxLength
	}
	if d.pattern != nil && !d.pattern.MatchString(value) {
		return d.Messages.Pattern
	}
	if (d.Kind == KindSelect || d.Kind == KindChoice) && !d.HasOption(value) {
		return d.Messages.Option
	}
	return ""
}

// ValidateCount applies a file-list rule to the number of attached files.
func (d *Definition) ValidateCount(n int) string {
	if n == 0 {
		if d.Required || d.MinItems > 0 {
			return d.requiredMessage()
		}
		return ""
	}
	if d.MinItems > 0 && n < d.MinItems {
		return d.Messages.MinLength
	}
	if d.MaxItems > 0 && n > d.MaxItems {
		return d.Messages.MaxLength
	}
	return ""
}

func (d *Definition) requiredMessage() string {
	if d.Messages.Required != "" {
		return d.Messages.Required
	}
	if d.Messages.MinLength != "" {
		return d.Messages.MinLength
	}
	return defaultRequiredMessage
}
