// Package migrations embeds the SQL schema of the lifecycle journal so
// the daemon can migrate without the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root; pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
