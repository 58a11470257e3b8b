// Package migrations embeds the sync history schema.
package migrations

import _ "embed"

// InitialSQL creates the sync_runs table. Every statement is idempotent.
//
//go:embed sql/001_initial.sql
var InitialSQL string
