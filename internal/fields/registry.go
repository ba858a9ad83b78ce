package fields

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vbonduro/adpost/internal/photos"
)

//go:embed property_ad.yaml
var propertyAdYAML []byte

// Section is a titled group of fields rendered together.
type Section struct {
	Title  string
	Fields []*Definition
}

// Registry is the ordered, immutable table of fields that make up a form.
type Registry struct {
	name     string
	sections []Section
	ordered  []*Definition
	byName   map[string]*Definition
}

func (r *Registry) Name() string { return r.name }

func (r *Registry) Sections() []Section { return r.sections }

// Fields returns every definition in display order.
func (r *Registry) Fields() []*Definition { return r.ordered }

func (r *Registry) Lookup(name string) (*Definition, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return d, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, d := range r.ordered {
		names = append(names, d.Name)
	}
	return names
}

// Required returns the mandatory fields in display order.
func (r *Registry) Required() []*Definition {
	var out []*Definition
	for _, d := range r.ordered {
		if d.Required {
			out = append(out, d)
		}
	}
	return out
}

// FileField returns the first file-list field, or nil if the form has none.
func (r *Registry) FileField() *Definition {
	for _, d := range r.ordered {
		if d.Kind == KindFiles {
			return d
		}
	}
	return nil
}

// document mirrors the YAML layout of a registry file.
type document struct {
	Form     string            `yaml:"form"`
	Sections []sectionDocument `yaml:"sections"`
}

type sectionDocument struct {
	Title  string          `yaml:"title"`
	Fields []fieldDocument `yaml:"fields"`
}

type fieldDocument struct {
	Name        string           `yaml:"name"`
	Label       string           `yaml:"label"`
	Kind        Kind             `yaml:"kind"`
	Required    bool             `yaml:"required"`
	MinLength   int              `yaml:"min_length"`
	MaxLength   int              `yaml:"max_length"`
	MinItems    int              `yaml:"min_items"`
	MaxItems    int              `yaml:"max_items"`
	Pattern     string           `yaml:"pattern"`
	Hint        string           `yaml:"hint"`
	Placeholder string           `yaml:"placeholder"`
	Prefix      string           `yaml:"prefix"`
	Counter     bool             `yaml:"counter"`
	Options     []optionDocument `yaml:"options"`
	Messages    messagesDocument `yaml:"messages"`
}

type messagesDocument struct {
	Required  string `yaml:"required"`
	MinLength string `yaml:"min_length"`
	MaxLength string `yaml:"max_length"`
	Pattern   string `yaml:"pattern"`
	Option    string `yaml:"option"`
}

type optionDocument Option

// UnmarshalYAML accepts either a bare scalar ("4+") or a mapping with value
// and label keys.
func (o *optionDocument) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Value = node.Value
		o.Label = node.Value
		return nil
	}
	var raw struct {
		Value string `yaml:"value"`
		Label string `yaml:"label"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	o.Value = raw.Value
	o.Label = raw.Label
	if o.Label == "" {
		o.Label = o.Value
	}
	return nil
}

// Load parses and checks a registry document.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode field registry: %w", err)
	}
	return build(doc)
}

// LoadFile reads a registry document from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open field registry: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var (
	propertyAdOnce sync.Once
	propertyAd     *Registry
	propertyAdErr  error
)

// PropertyAd returns the built-in registry for the property listing form.
func PropertyAd() (*Registry, error) {
	propertyAdOnce.Do(func() {
		propertyAd, propertyAdErr = Load(bytes.NewReader(propertyAdYAML))
	})
	return propertyAd, propertyAdErr
}

func build(doc document) (*Registry, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("field registry %q has no sections", doc.Form)
	}

	reg := &Registry{
		name:   doc.Form,
		byName: make(map[string]*Definition),
	}
	for _, sd := range doc.Sections {
		section := Section{Title: sd.Title}
		for _, fd := range sd.Fields {
			def, err := buildField(fd)
			if err != nil {
				return nil, err
			}
			if _, dup := reg.byName[def.Name]; dup {
				return nil, fmt.Errorf("field %q is defined twice", def.Name)
			}
			reg.byName[def.Name] = def
			reg.ordered = append(reg.ordered, def)
			section.Fields = append(section.Fields, def)
		}
		reg.sections = append(reg.sections, section)
	}
	if len(reg.ordered) == 0 {
		return nil, fmt.Errorf("field registry %q has no fields", doc.Form)
	}

	// Every draft owns one photo list, so the form needs exactly one
	// files field to attach it to.
	var files int
	for _, d := range reg.ordered {
		if d.Kind == KindFiles {
			files++
		}
	}
	if files != 1 {
		return nil, fmt.Errorf("field registry %q needs exactly one files field, has %d", doc.Form, files)
	}
	return reg, nil
}

func buildField(fd fieldDocument) (*Definition, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("field without a name (label %q)", fd.Label)
	}
	if !fd.Kind.valid() {
		return nil, fmt.Errorf("field %q: unknown kind %q", fd.Name, fd.Kind)
	}
	if fd.MinLength < 0 || fd.MaxLength < 0 || fd.MinItems < 0 || fd.MaxItems < 0 {
		return nil, fmt.Errorf("field %q: negative bound", fd.Name)
	}
	if fd.MaxLength > 0 && fd.MinLength > fd.MaxLength {
		return nil, fmt.Errorf("field %q: min_length %d exceeds max_length %d", fd.Name, fd.MinLength, fd.MaxLength)
	}
	if fd.MaxItems > 0 && fd.MinItems > fd.MaxItems {
		return nil, fmt.Errorf("field %q: min_items %d exceeds max_items %d", fd.Name, fd.MinItems, fd.MaxItems)
	}
	if (fd.Kind == KindSelect || fd.Kind == KindChoice) && len(fd.Options) == 0 {
		return nil, fmt.Errorf("field %q: %s fields need options", fd.Name, fd.Kind)
	}
	if fd.Kind != KindFiles && (fd.MinItems > 0 || fd.MaxItems > 0) {
		return nil, fmt.Errorf("field %q: item bounds only apply to files", fd.Name)
	}
	if fd.MaxItems > photos.MaxPhotos || fd.MinItems > photos.MaxPhotos {
		return nil, fmt.Errorf("field %q: item bounds cannot exceed %d photos", fd.Name, photos.MaxPhotos)
	}

	def := &Definition{
		Name:        fd.Name,
		Label:       fd.Label,
		Kind:        fd.Kind,
		Required:    fd.Required,
		MinLength:   fd.MinLength,
		MaxLength:   fd.MaxLength,
		MinItems:    fd.MinItems,
		MaxItems:    fd.MaxItems,
		Hint:        fd.Hint,
		Placeholder: fd.Placeholder,
		Prefix:      fd.Prefix,
		Counter:     fd.Counter,
		Messages:    Messages(fd.Messages),
	}
	if def.Label == "" {
		def.Label = def.Name
	}
	for _, o := range fd.Options {
		def.Options = append(def.Options, Option(o))
	}

	switch {
	case fd.Pattern != "":
		re, err := regexp.Compile(fd.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid pattern: %w", fd.Name, err)
		}
		def.pattern = re
	case fd.Kind == KindNumeric:
		def.pattern = digitsOnly
	}

	if def.pattern != nil && def.Messages.Pattern == "" {
		def.Messages.Pattern = defaultPatternMessage
	}
	if def.Messages.Option == "" {
		def.Messages.Option = defaultOptionMessage
	}
	unit := "characters"
	if def.Kind == KindFiles {
		unit = "files"
	}
	if def.Messages.MinLength == "" && (def.MinLength > 0 || def.MinItems > 0) {
		def.Messages.MinLength = fmt.Sprintf("%s needs at least %d %s.", def.Label, max(def.MinLength, def.MinItems), unit)
	}
	if def.Messages.MaxLength == "" && (def.MaxLength > 0 || def.MaxItems > 0) {
		def.Messages.MaxLength = fmt.Sprintf("%s cannot exceed %d %s.", def.Label, max(def.MaxLength, def.MaxItems), unit)
	}
	return def, nil
}
