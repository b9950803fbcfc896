package models

import "strings"

// CategoryType classifies a category field
type CategoryType string

const (
	TypeCustomField CategoryType = "custom_field"
	TypeTag         CategoryType = "tag"
	TypeProductType CategoryType = "product_type"
	TypeVendor      CategoryType = "vendor"
)

// RemoteDerivedTypes are the facet types whose value set comes from the remote catalog.
// The order is the order merged output is emitted in.
var RemoteDerivedTypes = []CategoryType{TypeProductType, TypeTag, TypeVendor}

// IsRemoteDerived reports whether the type's authoritative value set is the remote catalog
func (t CategoryType) IsRemoteDerived() bool {
	for _, rt := range RemoteDerivedTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// ParseCategoryType returns the type for s, or custom_field when s is unknown
func ParseCategoryType(s string) CategoryType {
	switch t := CategoryType(strings.TrimSpace(s)); t {
	case TypeTag, TypeProductType, TypeVendor, TypeCustomField:
		return t
	}
	return TypeCustomField
}

// Category field file columns
const (
	FieldColType        = "category_type"
	FieldColName        = "field_name"
	FieldColDescription = "description"
	FieldColRequired    = "required"
	FieldColOptions     = "options"
	FieldColGroup       = "group"
)

// FieldColumns is the fixed header of the category fields file
var FieldColumns = []string{
	FieldColType,
	FieldColName,
	FieldColDescription,
	FieldColRequired,
	FieldColOptions,
	FieldColGroup,
}

// CategoryField describes a product field or a remote-derived facet value
type CategoryField struct {
	Name        string       `json:"field_name" yaml:"field_name"`
	Type        CategoryType `json:"category_type" yaml:"category_type"`
	Description string       `json:"description" yaml:"description"`
	Required    string       `json:"required" yaml:"required"` // "True" / "False"
	Options     string       `json:"options" yaml:"options"`   // comma separated choices
	Group       string       `json:"group" yaml:"group"`
}

// IsRequired reports whether the boolean-as-string required flag is set
func (f CategoryField) IsRequired() bool {
	switch strings.ToLower(strings.TrimSpace(f.Required)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// OptionList splits the options column into its choices
func (f CategoryField) OptionList() []string {
	if strings.TrimSpace(f.Options) == "" {
		return nil
	}
	parts := strings.Split(f.Options, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToRecord converts the field to its on-disk row
func (f CategoryField) ToRecord() Record {
	return Record{
		FieldColType:        string(f.Type),
		FieldColName:        f.Name,
		FieldColDescription: f.Description,
		FieldColRequired:    f.Required,
		FieldColOptions:     f.Options,
		FieldColGroup:       f.Group,
	}
}

// CategoryFieldFromRecord reads a field row. "value" and "name" are accepted as
// aliases of field_name; remote-derived rows were historically written with "value".
func CategoryFieldFromRecord(r Record) CategoryField {
	name := strings.TrimSpace(r[FieldColName])
	if name == "" {
		name = strings.TrimSpace(r["value"])
	}
	if name == "" {
		name = strings.TrimSpace(r["name"])
	}
	required := strings.TrimSpace(r[FieldColRequired])
	return CategoryField{
		Name:        name,
		Type:        ParseCategoryType(r[FieldColType]),
		Description: strings.TrimSpace(r[FieldColDescription]),
		Required:    required,
		Options:     strings.TrimSpace(r[FieldColOptions]),
		Group:       strings.TrimSpace(r[FieldColGroup]),
	}
}
