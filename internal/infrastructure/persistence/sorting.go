package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// orderSortColumns are the order columns a listing may sort by
var orderSortColumns = map[string]struct{}{
	"created_at":   {},
	"updated_at":   {},
	"order_number": {},
	"status":       {},
	"grand_total":  {},
}

// sortClause orders by orderBy when it is an allowed column and by fallback
// otherwise, then by id so pages are stable. Anything but "asc" sorts
// descending.
func sortClause(orderBy, dir string, allowed map[string]struct{}, fallback string) clause.OrderBy {
	col := strings.TrimSpace(orderBy)
	if _, ok := allowed[col]; !ok {
		col = fallback
	}
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: col}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}
}
