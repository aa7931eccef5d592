// Package prompts provides externalized prompt templates with override support.
package prompts

import "embed"

//go:embed fix/*.md
var embeddedFS embed.FS
