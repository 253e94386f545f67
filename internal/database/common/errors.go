package common

import (
	"fmt"
	"regexp"
)

type Kind int

const (
	Other Kind = iota
	DuplicateKey
	ForeignKeyViolation
	Truncation
)

func (k Kind) String() string {
	switch k {
	case DuplicateKey:
		return "duplicate key"
	case ForeignKeyViolation:
		return "foreign key violation"
	case Truncation:
		return "truncation"
	default:
		return "other"
	}
}

// StoreError is a driver error classified at the adapter boundary.
type StoreError struct {
	Kind       Kind
	Column     string
	Constraint string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s on column %s: %v", e.Kind, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Code() string {
	switch e.Kind {
	case DuplicateKey:
		return "DUPLICATE_KEY"
	case ForeignKeyViolation:
		return "FOREIGN_KEY"
	case Truncation:
		return "TRUNCATION"
	default:
		return "STORE_ERROR"
	}
}

var (
	columnQuoted  = regexp.MustCompile("(?i)column\\s+['\"`]?([A-Za-z0-9_]+)['\"`]?")
	foreignKeyCol = regexp.MustCompile("(?i)FOREIGN KEY \\(`?\"?([A-Za-z0-9_]+)`?\"?\\)")
	keyDetail     = regexp.MustCompile(`Key \(([A-Za-z0-9_]+)\)=`)
	sqliteColumn  = regexp.MustCompile(`(?i)constraint failed: [A-Za-z0-9_]+\.([A-Za-z0-9_]+)`)
	forKeyName    = regexp.MustCompile("(?i)for key '([^']+)'")
)

// ColumnFromMessage extracts the offending column name from a driver message.
func ColumnFromMessage(msg string) string {
	for _, re := range []*regexp.Regexp{foreignKeyCol, keyDetail, columnQuoted, sqliteColumn} {
		if m := re.FindStringSubmatch(msg); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// ConstraintFromMessage extracts a MySQL key name such as 'orders.PRIMARY'.
func ConstraintFromMessage(msg string) string {
	if m := forKeyName.FindStringSubmatch(msg); len(m) > 1 {
		return m[1]
	}
	return ""
}
