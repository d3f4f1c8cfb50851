package dedup

import "github.com/metroad/leadops/internal/lead"

// unnamedRepresentative labels a group whose first member has no name.
const unnamedRepresentative = "(unnamed)"

// DuplicateGroup is one exact-match cluster prepared for display.
type DuplicateGroup struct {
	Leads          []lead.Lead `json:"leads"`
	Count          int         `json:"count"`
	Representative string      `json:"representative"`
}

// Stats summarizes duplication across a lead set.
type Stats struct {
	Total           int              `json:"total"`
	Unique          int              `json:"unique"`
	Duplicates      int              `json:"duplicates"`
	DuplicateRate   float64          `json:"duplicate_rate"`
	DuplicateGroups []DuplicateGroup `json:"duplicate_groups"`
}

// GenerateStats counts duplicates with similarity matching enabled and builds
// display groups with Group. The two are computed independently, so counts
// may include fuzzy duplicates that no group contains. DuplicateRate is 0 for
// an empty input.
func GenerateStats(leads []lead.Lead, opts ...Option) Stats {
	opts = append([]Option{WithSimilarity(DefaultSimilarityThreshold)}, opts...)
	res := Detect(leads, opts...)

	stats := Stats{
		Total:      len(leads),
		Unique:     res.UniqueCount,
		Duplicates: res.DuplicateCount,
	}
	if stats.Total > 0 {
		stats.DuplicateRate = float64(stats.Duplicates) / float64(stats.Total)
	}

	groups := Group(leads)
	stats.DuplicateGroups = make([]DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		rep := g[0].BusinessName
		if rep == "" {
			rep = unnamedRepresentative
		}
		stats.DuplicateGroups = append(stats.DuplicateGroups, DuplicateGroup{
			Leads:          g,
			Count:          len(g),
			Representative: rep,
		})
	}
	return stats
}
