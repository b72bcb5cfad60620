// Package forms models the fillable fields attached to a document as a
// closed set of variants.
package forms

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindText      Kind = "text"
	KindEmail     Kind = "email"
	KindDate      Kind = "date"
	KindTextarea  Kind = "textarea"
	KindCheckbox  Kind = "checkbox"
	KindRadio     Kind = "radio"
	KindSelect    Kind = "select"
	KindSignature Kind = "signature"
)

var (
	ErrUnknownKind   = errors.New("unknown field type")
	ErrMissingName   = errors.New("field name is required")
	ErrMissingChoice = errors.New("choice field requires options")
	ErrDuplicateName = errors.New("duplicate field name")
)

// Base holds what every field carries.
type Base struct {
	Name       string
	Position   int
	Required   bool
	Validation map[string]any
}

// Field is implemented only by the variants in this package.
type Field interface {
	Kind() Kind
	Common() Base
	isField()
}

type Text struct {
	Base
	Placeholder string
}

type Email struct {
	Base
	Placeholder string
}

type Date struct {
	Base
}

type Textarea struct {
	Base
	Placeholder string
}

type Checkbox struct {
	Base
	Options []string
}

type Radio struct {
	Base
	Options []string
}

type Select struct {
	Base
	Options []string
}

type Signature struct {
	Base
}

func (Text) Kind() Kind      { return KindText }
func (Email) Kind() Kind     { return KindEmail }
func (Date) Kind() Kind      { return KindDate }
func (Textarea) Kind() Kind  { return KindTextarea }
func (Checkbox) Kind() Kind  { return KindCheckbox }
func (Radio) Kind() Kind     { return KindRadio }
func (Select) Kind() Kind    { return KindSelect }
func (Signature) Kind() Kind { return KindSignature }

func (b Base) Common() Base { return b }

func (Text) isField()      {}
func (Email) isField()     {}
func (Date) isField()      {}
func (Textarea) isField()  {}
func (Checkbox) isField()  {}
func (Radio) isField()     {}
func (Select) isField()    {}
func (Signature) isField() {}

// Spec is the flat wire/storage shape of a field.
type Spec struct {
	Name        string         `json:"field_name" validate:"required,max=200"`
	Type        string         `json:"field_type" validate:"required"`
	Position    int            `json:"position" validate:"gte=0"`
	Required    bool           `json:"required"`
	Placeholder string         `json:"placeholder_text,omitempty" validate:"max=500"`
	Options     []string       `json:"options,omitempty"`
	Validation  map[string]any `json:"validation_rules,omitempty"`
}

// FromSpec builds the variant for s. Attributes a variant does not carry
// are dropped.
func FromSpec(s Spec) (Field, error) {
	base := Base{
		Name:       strings.TrimSpace(s.Name),
		Position:   s.Position,
		Required:   s.Required,
		Validation: s.Validation,
	}
	if base.Name == "" {
		return nil, ErrMissingName
	}
	options := cleanOptions(s.Options)

	switch Kind(strings.ToLower(strings.TrimSpace(s.Type))) {
	case KindText:
		return Text{Base: base, Placeholder: s.Placeholder}, nil
	case KindEmail:
		return Email{Base: base, Placeholder: s.Placeholder}, nil
	case KindDate:
		return Date{Base: base}, nil
	case KindTextarea:
		return Textarea{Base: base, Placeholder: s.Placeholder}, nil
	case KindCheckbox:
		return Checkbox{Base: base, Options: options}, nil
	case KindRadio:
		if len(options) == 0 {
			return nil, fmt.Errorf("%s: %w", base.Name, ErrMissingChoice)
		}
		return Radio{Base: base, Options: options}, nil
	case KindSelect:
		if len(options) == 0 {
			return nil, fmt.Errorf("%s: %w", base.Name, ErrMissingChoice)
		}
		return Select{Base: base, Options: options}, nil
	case KindSignature:
		return Signature{Base: base}, nil
	default:
		return nil, fmt.Errorf("%q: %w", s.Type, ErrUnknownKind)
	}
}

// ToSpec flattens f for storage.
func ToSpec(f Field) Spec {
	b := f.Common()
	s := Spec{
		Name:       b.Name,
		Type:       string(f.Kind()),
		Position:   b.Position,
		Required:   b.Required,
		Validation: b.Validation,
	}
	switch v := f.(type) {
	case Text:
		s.Placeholder = v.Placeholder
	case Email:
		s.Placeholder = v.Placeholder
	case Textarea:
		s.Placeholder = v.Placeholder
	case Checkbox:
		s.Options = v.Options
	case Radio:
		s.Options = v.Options
	case Select:
		s.Options = v.Options
	}
	return s
}

// ParseAll converts and orders a full field set. Names must be unique.
func ParseAll(specs []Spec) ([]Field, error) {
	fields := make([]Field, 0, len(specs))
	seen := map[string]bool{}
	for _, s := range specs {
		f, err := FromSpec(s)
		if err != nil {
			return nil, err
		}
		name := f.Common().Name
		if seen[name] {
			return nil, fmt.Errorf("%s: %w", name, ErrDuplicateName)
		}
		seen[name] = true
		fields = append(fields, f)
	}
	Sort(fields)
	return fields, nil
}

// Sort orders fields by position, then name.
func Sort(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i].Common(), fields[j].Common()
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Name < b.Name
	})
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
