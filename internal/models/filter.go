package models

// ActiveFilters selects models by classification. Empty fields impose no
// constraint. Dimensions are combined with AND; values within a dimension
// with OR.
type ActiveFilters struct {
	TypeTags   []string `json:"type_tags,omitempty"`
	SizeBucket string   `json:"size_bucket,omitempty"`
	Families   []string `json:"families,omitempty"`
}

// IsEmpty reports whether no filter dimension is set.
func (f ActiveFilters) IsEmpty() bool {
	return len(f.TypeTags) == 0 && f.SizeBucket == "" && len(f.Families) == 0
}

// Matches reports whether m satisfies every set dimension of f.
func (f ActiveFilters) Matches(m Model) bool {
	if len(f.TypeTags) > 0 && !containsAny(m.TypeTags, f.TypeTags) {
		return false
	}
	if f.SizeBucket != "" && m.SizeBucket != f.SizeBucket {
		return false
	}
	if len(f.Families) > 0 && !contains(f.Families, m.Family) {
		return false
	}
	return true
}

// Filter returns the models matching f, in input order. The result never
// aliases models.
func Filter(models []Model, f ActiveFilters) []Model {
	if f.IsEmpty() {
		return append(make([]Model, 0, len(models)), models...)
	}
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if f.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// Facets counts models per type tag, size bucket and family.
type Facets struct {
	TypeTags    map[string]int `json:"type_tags"`
	SizeBuckets map[string]int `json:"size_buckets"`
	Families    map[string]int `json:"families"`
}

// ComputeFacets tallies classification values across models. Unclassified
// models are not counted in the bucket or family tallies.
func ComputeFacets(models []Model) Facets {
	f := Facets{
		TypeTags:    make(map[string]int),
		SizeBuckets: make(map[string]int),
		Families:    make(map[string]int),
	}
	for _, m := range models {
		for _, tag := range m.TypeTags {
			f.TypeTags[tag]++
		}
		if m.SizeBucket != "" {
			f.SizeBuckets[m.SizeBucket]++
		}
		if m.Family != "" {
			f.Families[m.Family]++
		}
	}
	return f
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
