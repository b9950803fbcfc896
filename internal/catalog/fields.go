package catalog

import (
	"strings"

	"github.com/badno/pimsync/internal/categories"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
	"github.com/badno/pimsync/pkg/models"
)

func findField(fields []models.CategoryField, name string) int {
	name = strings.TrimSpace(name)
	for i, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// UpsertField creates a field or updates the one with the same name (case-insensitive).
// New fields default to custom_field; an existing field keeps its type unless
// input names one. Empty input attributes leave existing values untouched.
func (s *Store) UpsertField(input models.CategoryField) (models.CategoryField, bool, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.CategoryField{}, false, pkgerrors.NewValidationError("field_name", "field name is required")
	}

	fields, err := s.LoadFields()
	if err != nil {
		return models.CategoryField{}, false, err
	}

	options := categories.NormalizeOptions(input.Options)

	idx := findField(fields, name)
	created := idx < 0
	if created {
		f := models.CategoryField{
			Name:        name,
			Type:        input.Type,
			Description: strings.TrimSpace(input.Description),
			Required:    normalizeRequired(input.Required),
			Options:     options,
			Group:       strings.TrimSpace(input.Group),
		}
		if f.Type == "" {
			f.Type = models.TypeCustomField
		}
		if f.Group == "" {
			f.Group = categories.GroupFor(f.Type, f.Name)
		}
		fields = append(fields, f)
		idx = len(fields) - 1
	} else {
		f := &fields[idx]
		if input.Type != "" {
			f.Type = input.Type
		}
		if d := strings.TrimSpace(input.Description); d != "" {
			f.Description = d
		}
		if input.Required != "" {
			f.Required = normalizeRequired(input.Required)
		}
		if options != "" {
			f.Options = options
		}
		if g := strings.TrimSpace(input.Group); g != "" {
			f.Group = g
		}
	}

	if err := s.SaveFields(fields); err != nil {
		return models.CategoryField{}, false, err
	}
	return fields[idx], created, nil
}

// RenameField renames a field and moves the value of every product holding the
// old key to the new key. Products are written in one save, then the fields.
func (s *Store) RenameField(oldName, newName string) error {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return pkgerrors.NewValidationError("field_name", "new field name is required")
	}

	fields, err := s.LoadFields()
	if err != nil {
		return err
	}
	idx := findField(fields, oldName)
	if idx < 0 {
		return pkgerrors.NewNotFoundError("field", oldName)
	}
	if other := findField(fields, newName); other >= 0 && other != idx {
		return pkgerrors.NewDuplicateError("field_name", newName)
	}
	stored := fields[idx].Name
	if stored == newName {
		return nil
	}

	products, err := s.LoadProducts(false)
	if err != nil {
		return err
	}
	for _, p := range products {
		if v, ok := p[stored]; ok {
			p[newName] = v
			delete(p, stored)
		}
	}
	if err := s.SaveProducts(products); err != nil {
		return err
	}

	fields[idx].Name = newName
	return s.SaveFields(fields)
}

// DeleteField removes a field and strips its key from every product
func (s *Store) DeleteField(name string) error {
	fields, err := s.LoadFields()
	if err != nil {
		return err
	}
	idx := findField(fields, name)
	if idx < 0 {
		return pkgerrors.NewNotFoundError("field", name)
	}
	stored := fields[idx].Name

	products, err := s.LoadProducts(false)
	if err != nil {
		return err
	}
	for _, p := range products {
		delete(p, stored)
	}
	if err := s.SaveProducts(products); err != nil {
		return err
	}

	fields = append(fields[:idx], fields[idx+1:]...)
	return s.SaveFields(fields)
}

// registerFields adds a custom_field entry for every non-reserved key without a
// field. It returns the names added.
func (s *Store) registerFields(keys []string) ([]string, error) {
	fields, err := s.LoadFields()
	if err != nil {
		return nil, err
	}

	var added []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if models.IsReserved(k) || k == models.KeyCategory || findField(fields, k) >= 0 {
			continue
		}
		fields = append(fields, models.CategoryField{
			Name:     k,
			Type:     models.TypeCustomField,
			Required: "False",
			Group:    categories.GroupFor(models.TypeCustomField, k),
		})
		added = append(added, k)
	}

	if len(added) == 0 {
		return nil, nil
	}
	if err := s.SaveFields(fields); err != nil {
		return nil, err
	}
	return added, nil
}

func normalizeRequired(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "y":
		return "True"
	default:
		return "False"
	}
}
