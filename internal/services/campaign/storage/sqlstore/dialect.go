package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect adapts the shared SQL to one engine.
type Dialect struct {
	// Name identifies the engine in error messages.
	Name string
	// Rebind rewrites '?' placeholders into the engine's syntax.
	Rebind func(query string) string
	// IsUniqueViolation reports primary key or unique constraint failures.
	IsUniqueViolation func(err error) bool
	// IsForeignKeyViolation reports references to missing parent rows.
	IsForeignKeyViolation func(err error) bool
	// IsRetryable reports lock contention or serialization failures after
	// which the whole transaction may be retried.
	IsRetryable func(err error) bool
}

// QuestionRebind leaves '?' placeholders untouched.
func QuestionRebind(query string) string {
	return query
}

// DollarRebind rewrites '?' placeholders to $1..$n. Placeholders inside
// single-quoted literals are left alone.
func DollarRebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (d Dialect) rebind(query string) string {
	if d.Rebind == nil {
		return query
	}
	return d.Rebind(query)
}

func (d Dialect) unique(err error) bool {
	return err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

func (d Dialect) foreignKey(err error) bool {
	return err != nil && d.IsForeignKeyViolation != nil && d.IsForeignKeyViolation(err)
}

func (d Dialect) retryable(err error) bool {
	return err != nil && d.IsRetryable != nil && d.IsRetryable(err)
}
