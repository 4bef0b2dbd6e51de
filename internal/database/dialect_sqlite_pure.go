package database

import (
	"strings"

	_ "modernc.org/sqlite"
)

// PureSQLiteDialect runs the SQLite schema on the cgo-free modernc driver.
// Everything except the driver and its DSN options is shared with
// SQLiteDialect.
type PureSQLiteDialect struct {
	SQLiteDialect
}

// NewPureSQLiteDialect creates a new cgo-free SQLite dialect
func NewPureSQLiteDialect() *PureSQLiteDialect {
	return &PureSQLiteDialect{}
}

func (d *PureSQLiteDialect) DriverName() string {
	return "sqlite"
}

// DSN sets pragmas per connection, since the pool opens more than one, and
// stores times in the layout SQLite's date functions understand
func (d *PureSQLiteDialect) DSN(config DialectConfig) string {
	if strings.Contains(config.Path, "?") {
		return config.Path
	}
	return "file:" + config.Path +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}
