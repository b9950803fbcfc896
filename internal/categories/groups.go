package categories

import (
	"strings"

	"github.com/badno/pimsync/pkg/models"
)

// tagPrefixes is checked in order; the first matching prefix wins
var tagPrefixes = []struct {
	prefix string
	group  string
}{
	{"Color_", "Colors"},
	{"Size_", "Sizes"},
	{"Material_", "Materials"},
	{"Special Features_", "Features"},
	{"Product Type_", "Product Types"},
	{"Collection_", "Collections"},
	{"Brand_", "Brands"},
}

// tagKeywords groups tags by lowercase substring after no prefix matched
var tagKeywords = []struct {
	keywords []string
	group    string
}{
	{[]string{"alarm", "clock"}, "Alarm/Clock Tags"},
	{[]string{"thermo", "weer", "humidity", "co2", "hygro"}, "Weather/Environment"},
	{[]string{"unique", "funny", "kids"}, "Special/Novelty"},
}

// GroupFor returns the display group a new field of type t with value v belongs to
func GroupFor(t models.CategoryType, v string) string {
	switch t {
	case models.TypeProductType:
		return "Product Types"
	case models.TypeVendor:
		return "Vendors"
	case models.TypeTag:
		return tagGroup(v)
	default:
		return "Custom Fields"
	}
}

func tagGroup(tag string) string {
	tag = strings.TrimSpace(tag)
	for _, p := range tagPrefixes {
		if strings.HasPrefix(tag, p.prefix) {
			return p.group
		}
	}

	lowered := strings.ToLower(tag)
	for _, kw := range tagKeywords {
		for _, k := range kw.keywords {
			if strings.Contains(lowered, k) {
				return kw.group
			}
		}
	}
	return "Tags"
}

// AssignGroups fills empty groups in place and returns how many were filled.
// Groups already set are left alone.
func AssignGroups(fields []models.CategoryField) int {
	filled := 0
	for i := range fields {
		if strings.TrimSpace(fields[i].Group) != "" {
			continue
		}
		fields[i].Group = GroupFor(fields[i].Type, fields[i].Name)
		filled++
	}
	return filled
}
