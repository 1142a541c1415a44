// Package rules holds the lint rules shipped with ecsig.
package rules

import "embed"

// FS contains the default *.risor rule scripts.
//
//go:embed *.risor
var FS embed.FS
