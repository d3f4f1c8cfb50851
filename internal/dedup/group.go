package dedup

import "github.com/metroad/leadops/internal/lead"

// Group clusters leads that share an exact name+address key or a non-empty
// business registration id with a seed lead. Membership is decided against
// the seed only, with no closure through third records. Singletons are
// dropped; groups come out in seed order.
func Group(leads []lead.Lead) [][]lead.Lead {
	keys := make([]string, len(leads))
	for i, l := range leads {
		keys[i] = BuildKey(l.BusinessName, l.RoadAddress)
	}

	assigned := make([]bool, len(leads))
	groups := make([][]lead.Lead, 0)

	for i, seed := range leads {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []lead.Lead{seed}

		for j := i + 1; j < len(leads); j++ {
			if assigned[j] {
				continue
			}
			sameKey := keys[j] == keys[i]
			sameBizID := seed.BusinessRegistrationID != "" &&
				leads[j].BusinessRegistrationID == seed.BusinessRegistrationID
			if sameKey || sameBizID {
				group = append(group, leads[j])
				assigned[j] = true
			}
		}

		if len(group) >= 2 {
			groups = append(groups, group)
		}
	}
	return groups
}
