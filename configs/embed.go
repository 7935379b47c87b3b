// Package configs provides the embedded configuration template for docscout.
//
// The template is embedded at build time so `docscout init` can scaffold a
// config regardless of how the binary was installed. Secrets never appear in
// the template: repository tokens resolve from <NAME>_TOKEN environment
// variables, and server.authToken names an environment variable rather than
// holding a literal value.
package configs

import _ "embed"

// ConfigTemplate is the starter config written by `docscout init`.
//
//go:embed config.example.json
var ConfigTemplate string
