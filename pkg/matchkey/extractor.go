// Package matchkey derives the canonical duplicate-detection keys for a
// contact. Keys are deterministic: equal keys mean equal values, not
// similar ones.
package matchkey

import (
	"github.com/Ramsey-B/tansy/pkg/models"
	"github.com/Ramsey-B/tansy/pkg/normalizers"
)

// nameSep keeps ("A B", "C") distinct from ("A", "B C") in the person key.
const nameSep = "\x1f"

// Extract returns the (strategy, key) pairs for one contact, restricted
// to the given strategies. An empty strategy list means all of them.
func Extract(c *models.Contact, strategies []models.Strategy) []models.MatchKey {
	enabled := strategySet(strategies)

	keys := make([]models.MatchKey, 0, 2)

	if enabled[models.StrategyEmail] {
		if !normalizers.IsBlank(c.Email) {
			keys = append(keys, models.MatchKey{
				Strategy: models.StrategyEmail,
				Key:      normalizers.FoldEmail(c.Email),
			})
		}
	}

	if enabled[models.StrategyPerson] && c.Kind == models.KindPerson {
		if !normalizers.IsBlank(c.FirstName) && !normalizers.IsBlank(c.LastName) {
			keys = append(keys, models.MatchKey{
				Strategy: models.StrategyPerson,
				Key:      c.FirstName + nameSep + c.LastName,
			})
		}
	}

	if enabled[models.StrategyOrgName] && c.Kind == models.KindOrganization {
		if !normalizers.IsBlank(c.OrgName) {
			keys = append(keys, models.MatchKey{
				Strategy: models.StrategyOrgName,
				Key:      c.OrgName,
			})
		}
	}

	return keys
}

func strategySet(strategies []models.Strategy) map[models.Strategy]bool {
	enabled := make(map[models.Strategy]bool, len(models.AllStrategies))
	if len(strategies) == 0 {
		for _, s := range models.AllStrategies {
			enabled[s] = true
		}
		return enabled
	}
	for _, s := range strategies {
		enabled[s] = true
	}
	return enabled
}
