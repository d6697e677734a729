// Package rules embeds the bundled fair housing rule library.
package rules

import "embed"

// FS holds manifest.yaml and every rule file it references
//
//go:embed manifest.yaml federal.json us_states/*.json cities/*.json international/*.json
var FS embed.FS
