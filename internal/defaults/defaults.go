// Package defaults provides the embedded starter configuration for the
// taskpilot init subcommand.
package defaults

import _ "embed"

//go:embed taskpilot.example.yaml
var ConfigYAML []byte
