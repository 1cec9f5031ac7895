// Package sqlutil builds SQL fragments for names that cannot be bound as
// placeholders, such as the collection tables counted by storage inspection.
package sqlutil

import "strings"

// QuoteIdentifier wraps name in backticks, doubling any backtick inside it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QualifiedTable returns `database`.`table`, or just `table` when database is
// empty so the connection's current database applies.
func QualifiedTable(database, table string) string {
	if database == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(database) + "." + QuoteIdentifier(table)
}
