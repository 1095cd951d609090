package gateway

import (
	"strconv"
	"strings"

	"taskboard/domain"
)

const taskColumns = `id, title, COALESCE(description, ''), status, created_at,
	COALESCE(category, ''), COALESCE(subcategory, ''),
	"amount_rawValue", COALESCE("amount_displayValue", ''), COALESCE("hourlyBudgetType", ''),
	"hourlyBudgetMin_rawValue", "hourlyBudgetMax_rawValue", COALESCE("totalApplicants", 0),
	COALESCE(prospect_location_country, '')`

// sqlQuery accumulates positional arguments for a pgx statement.
type sqlQuery struct {
	where []string
	args  []any
}

func (q *sqlQuery) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *sqlQuery) cond(c string) {
	q.where = append(q.where, c)
}

func (q *sqlQuery) whereClause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// applyFilters adds the status predicate and every set filter predicate.
func (q *sqlQuery) applyFilters(status domain.Status, f domain.FilterSet) {
	q.cond("status = " + q.arg(string(status)))
	if f.Category != "" {
		q.cond("category = " + q.arg(f.Category))
	}
	if f.Subcategory != "" {
		q.cond("subcategory = " + q.arg(f.Subcategory))
	}
	if f.CreatedFrom != nil {
		q.cond("created_at >= " + q.arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		q.cond("created_at <= " + q.arg(*f.CreatedTo))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.cond(`title ILIKE ` + q.arg("%"+escapeLike(s)+"%") + ` ESCAPE '\'`)
	}
	if len(f.Countries) > 0 {
		q.cond("prospect_location_country = ANY(" + q.arg(f.Countries) + ")")
	}
	switch f.BudgetType {
	case domain.BudgetFixed:
		q.cond(`"amount_rawValue" IS NOT NULL`)
	case domain.BudgetHourly:
		q.cond(`"hourlyBudgetType" IS NOT NULL`)
	}
	if f.PriceMin != nil {
		q.cond(`COALESCE("amount_rawValue", "hourlyBudgetMax_rawValue") >= ` + q.arg(*f.PriceMin))
	}
	if f.PriceMax != nil {
		q.cond(`COALESCE("amount_rawValue", "hourlyBudgetMin_rawValue") <= ` + q.arg(*f.PriceMax))
	}
}

func buildPageQuery(status domain.Status, f domain.FilterSet, page PageSpec) (string, []any) {
	q := &sqlQuery{}
	q.applyFilters(status, f)
	if page.After != nil {
		q.cond("(created_at, id) < (" + q.arg(page.After.CreatedAt) + ", " + q.arg(page.After.ID) + ")")
	}
	sql := "SELECT " + taskColumns + " FROM projects" + q.whereClause() +
		" ORDER BY created_at DESC, id DESC LIMIT " + q.arg(page.Limit)
	if page.After == nil && page.Offset > 0 {
		sql += " OFFSET " + q.arg(page.Offset)
	}
	return sql, q.args
}

func buildCountQuery(status domain.Status, f domain.FilterSet) (string, []any) {
	q := &sqlQuery{}
	q.applyFilters(status, f)
	return "SELECT count(*) FROM projects" + q.whereClause(), q.args
}

func buildDistinctQuery(column LookupColumn) string {
	col := string(column)
	return "SELECT DISTINCT " + col + " FROM projects WHERE " + col + " IS NOT NULL AND " + col + " <> '' ORDER BY " + col
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
