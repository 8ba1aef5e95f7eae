// Package migrations embeds the forward-only SQL migration files so they
// travel with the binary regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
