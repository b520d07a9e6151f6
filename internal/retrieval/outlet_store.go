package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OutletStore is the pgx-backed Executor over the outlets table.
// Queries are assembled from the whitelisted OutletQuery fields only, with
// every value bound as a positional parameter.
type OutletStore struct {
	pool *pgxpool.Pool
}

// NewOutletStore creates an OutletStore on the given pool.
func NewOutletStore(pool *pgxpool.Pool) *OutletStore {
	return &OutletStore{pool: pool}
}

// Execute implements Executor.
func (s *OutletStore) Execute(ctx context.Context, q OutletQuery) ([]Outlet, error) {
	sql, args := buildOutletSQL(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("outlet query: %w", err)
	}
	defer rows.Close()

	var outlets []Outlet
	for rows.Next() {
		var o Outlet
		if err := rows.Scan(&o.ID, &o.Name, &o.Address, &o.PhoneNumber,
			&o.Services, &o.PlaceType, &o.OpensAt, &o.Rating); err != nil {
			return nil, fmt.Errorf("scanning outlet row: %w", err)
		}
		outlets = append(outlets, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading outlet rows: %w", err)
	}
	return outlets, nil
}

// buildOutletSQL renders an OutletQuery into parameterized SQL.
// Only whitelisted columns appear in the statement; user-derived values
// travel exclusively through args.
func buildOutletSQL(q OutletQuery) (string, []any) {
	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Name != "" {
		where = append(where, "name ILIKE "+arg("%"+q.Name+"%"))
	}
	if q.Address != "" {
		where = append(where, "address ILIKE "+arg("%"+q.Address+"%"))
	}
	if q.Service != "" {
		where = append(where, "services ILIKE "+arg("%"+q.Service+"%"))
	}
	if q.PlaceType != "" {
		where = append(where, "place_type ILIKE "+arg("%"+q.PlaceType+"%"))
	}
	if patterns := closingTimePatterns(q.OpenAfter); len(patterns) > 0 {
		ors := make([]string, 0, len(patterns))
		for _, p := range patterns {
			ors = append(ors, "opens_at LIKE "+arg(p))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	sql := "SELECT id, name, address, phone_number, services, place_type, opens_at, reviews_average FROM outlets"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY reviews_average DESC, name"

	limit := q.Limit
	if limit <= 0 {
		limit = 3
	}
	sql += " LIMIT " + arg(limit)

	return sql, args
}

// closingTimePatterns converts a closing-time floor like "9pm" into LIKE
// patterns over the opens_at column, whose entries look like
// "Monday, 8am–9:40pm, Tuesday, ...". An outlet open after 9pm closes at
// 9pm or later, so every later hour in the same meridiem matches too.
func closingTimePatterns(openAfter string) []string {
	hour, meridiem, ok := parseClockHour(openAfter)
	if !ok {
		return nil
	}

	last := 11
	if hour == 12 {
		// "open after 12pm" matches any pm closing time.
		hour = 1
	}

	patterns := make([]string, 0, last-hour+2)
	for h := hour; h <= last; h++ {
		patterns = append(patterns, fmt.Sprintf("%%–%d%%%s%%", h, meridiem))
	}
	patterns = append(patterns, fmt.Sprintf("%%–12%%%s%%", flipMeridiem(meridiem)))
	return patterns
}

// parseClockHour extracts (hour, "am"|"pm") from strings like "9pm",
// "9 pm" or "21:00" is not supported; the translator emits 12-hour form.
func parseClockHour(s string) (int, string, bool) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))

	var meridiem string
	switch {
	case strings.HasSuffix(s, "pm"):
		meridiem = "pm"
	case strings.HasSuffix(s, "am"):
		meridiem = "am"
	default:
		return 0, "", false
	}

	digits := strings.TrimSuffix(s, meridiem)
	if i := strings.IndexByte(digits, ':'); i >= 0 {
		digits = digits[:i]
	}
	hour, err := strconv.Atoi(digits)
	if err != nil || hour < 1 || hour > 12 {
		return 0, "", false
	}
	return hour, meridiem, true
}

func flipMeridiem(m string) string {
	if m == "am" {
		return "pm"
	}
	return "am"
}
