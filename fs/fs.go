// Package appfs embeds the files the binaries ship with: SQL migrations and assets.
package appfs

import "embed"

//go:embed assets migrations
var FS embed.FS
