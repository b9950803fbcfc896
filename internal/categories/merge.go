// Package categories reconciles the local category field list with facets
// discovered in the remote catalog.
package categories

import (
	"sort"
	"strings"

	"github.com/badno/pimsync/pkg/models"
)

// Facets maps a remote-derived type to the values seen for it
type Facets map[models.CategoryType][]string

type typeValue struct {
	t models.CategoryType
	v string
}

// Merge combines existing fields with remote facets.
//
// Non-derived fields are copied through in their original order. For each derived
// type the result holds the sorted union of remote values and values already
// recorded locally; an existing (type, value) keeps its metadata verbatim, a new
// one gets empty metadata and a classifier-assigned group.
//
// Field names stay unique case-insensitively: a new remote value whose name is
// already used by another field is left out and returned in skipped.
func Merge(existing []models.CategoryField, facets Facets) (merged, skipped []models.CategoryField) {
	out := make([]models.CategoryField, 0, len(existing))
	taken := make(map[string]bool)

	known := make(map[typeValue]models.CategoryField)
	for _, f := range existing {
		if !f.Type.IsRemoteDerived() {
			out = append(out, f)
			taken[strings.ToLower(strings.TrimSpace(f.Name))] = true
			continue
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		key := typeValue{f.Type, name}
		if _, dup := known[key]; !dup {
			known[key] = f
			taken[strings.ToLower(name)] = true
		}
	}

	for _, t := range models.RemoteDerivedTypes {
		values := make(map[string]struct{})
		for _, v := range facets[t] {
			if v = strings.TrimSpace(v); v != "" {
				values[v] = struct{}{}
			}
		}
		for key := range known {
			if key.t == t {
				values[key.v] = struct{}{}
			}
		}

		sorted := make([]string, 0, len(values))
		for v := range values {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)

		for _, v := range sorted {
			if prev, ok := known[typeValue{t, v}]; ok {
				prev.Name = v
				out = append(out, prev)
				continue
			}
			field := models.CategoryField{
				Name:  v,
				Type:  t,
				Group: GroupFor(t, v),
			}
			lower := strings.ToLower(v)
			if taken[lower] {
				skipped = append(skipped, field)
				continue
			}
			taken[lower] = true
			out = append(out, field)
		}
	}

	return out, skipped
}

// CollectFacets gathers product types, vendors and tags from product records.
// Tags are comma separated; blank values are dropped.
func CollectFacets(products []models.Record) Facets {
	sets := map[models.CategoryType]map[string]struct{}{
		models.TypeProductType: {},
		models.TypeTag:         {},
		models.TypeVendor:      {},
	}
	add := func(t models.CategoryType, v string) {
		if v = strings.TrimSpace(v); v != "" {
			sets[t][v] = struct{}{}
		}
	}

	for _, p := range products {
		add(models.TypeProductType, p[models.KeyProductType])
		add(models.TypeVendor, p[models.KeyVendor])
		for _, tag := range strings.Split(p[models.KeyTags], ",") {
			add(models.TypeTag, tag)
		}
	}

	facets := make(Facets, len(sets))
	for t, set := range sets {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		facets[t] = values
	}
	return facets
}
