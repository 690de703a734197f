// cmd/crm/main.go
//
// CRM forms toolkit – command-line entry point.
//
// Sub-commands live in ./cmd:
//
//   - serve     reference backend (MySQL store + JSON API)
//   - submit    validate, check, and submit one record through the API
//   - validate  offline validation of a values file
//   - lint      parse and check YAML form definitions
//   - forms     list the known form definitions
package main

import (
	"os"

	"github.com/yanizio/adept-crm/cmd/crm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
