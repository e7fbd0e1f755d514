package session

import (
	"sort"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// sortedCartIDs returns cart keys in a stable order so frozen history
// records do not depend on map iteration order.
func sortedCartIDs(cart menu.Cart) []string {
	ids := make([]string, 0, len(cart))
	for id := range cart {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
