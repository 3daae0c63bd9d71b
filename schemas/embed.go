// Package schemas provides the embedded SQL migrations of the quiz store.
package schemas

import "embed"

// FS holds migrations/mysql and migrations/sqlite.
//
//go:embed migrations
var FS embed.FS

// Dir returns the migration directory of a database driver.
func Dir(driver string) string {
	return "migrations/" + driver
}
