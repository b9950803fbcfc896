package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProduct(t *testing.T) {
	tests := []struct {
		name     string
		in       Record
		title    string
		status   string
		category string
	}{
		{
			name:     "empty record gets defaults",
			in:       Record{},
			title:    DefaultTitle,
			status:   "draft",
			category: DefaultCategory,
		},
		{
			name:     "product name column wins over title",
			in:       Record{"Product Name": " Steel Bottle ", "title": "bottle", "status": "ACTIVE"},
			title:    "Steel Bottle",
			status:   "active",
			category: DefaultCategory,
		},
		{
			name:     "handle is the last title fallback",
			in:       Record{"handle": "steel-bottle", "status": "published"},
			title:    "steel-bottle",
			status:   "draft",
			category: DefaultCategory,
		},
		{
			name:     "product group feeds category",
			in:       Record{"title": "Mug", "Product Group": "Kitchen", "category": "Other", "status": "archived"},
			title:    "Mug",
			status:   "archived",
			category: "Kitchen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeProduct(tt.in)
			assert.Equal(t, tt.title, out[KeyTitle])
			assert.Equal(t, tt.status, out[KeyStatus])
			assert.Equal(t, tt.category, out[KeyCategory])
		})
	}
}

func TestNormalizeProductDoesNotMutateInput(t *testing.T) {
	in := Record{"Product name": "Lamp"}
	_ = NormalizeProduct(in)
	_, hasTitle := in[KeyTitle]
	assert.False(t, hasTitle)
}

func TestRemoteID(t *testing.T) {
	assert.Equal(t, "12", Record{"id": " 12 ", "shopify_id": "99"}.RemoteID())
	assert.Equal(t, "99", Record{"id": "", "shopify_id": "99"}.RemoteID())
	assert.Equal(t, "", Record{"title": "x"}.RemoteID())

	r := Record{"shopify_id": ""}
	r.SetRemoteID("42")
	assert.Equal(t, "42", r["id"])
	assert.Equal(t, "42", r["shopify_id"])

	r2 := Record{}
	r2.SetRemoteID("7")
	_, has := r2["shopify_id"]
	assert.False(t, has)
}

func TestCategoryFieldFromRecordAliases(t *testing.T) {
	f := CategoryFieldFromRecord(Record{"category_type": "tag", "value": "Color_Black", "group": "Colors"})
	assert.Equal(t, "Color_Black", f.Name)
	assert.Equal(t, TypeTag, f.Type)

	f = CategoryFieldFromRecord(Record{"name": "Material", "category_type": "bogus", "required": "True", "options": "wood, steel,,"})
	assert.Equal(t, "Material", f.Name)
	assert.Equal(t, TypeCustomField, f.Type)
	assert.True(t, f.IsRequired())
	assert.Equal(t, []string{"wood", "steel"}, f.OptionList())
}
