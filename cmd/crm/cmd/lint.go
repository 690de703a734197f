package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/form"
)

var lintCmd = &cobra.Command{
	Use:   "lint [file|dir]...",
	Short: "Check YAML form definitions",
	Long: `Parses every *.yaml form definition and runs the definition checks:
unique field names, compilable patterns, cross rules and groups that only
reference declared fields.

Examples:
  crm lint conf/forms
  crm lint conf/forms/signup.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLint,
}

var formsDir string

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List known form definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := definitions(formsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range reg.IDs() {
			d, _ := reg.Get(id)
			fmt.Fprintf(out, "%-20s %s\n", id, strings.Join(d.Rules.Names(), ", "))
		}
		fmt.Fprintf(out, "\nentities: %s\n", strings.Join(crm.Names(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintCmd, formsCmd)
	formsCmd.Flags().StringVar(&formsDir, "dir", "", "extra YAML form definitions")
}

func runLint(cmd *cobra.Command, args []string) error {
	consoleLogger()
	out := cmd.OutOrStdout()

	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".yaml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no *.yaml files under %s", strings.Join(args, ", "))
	}

	seen := map[string]string{}
	failed := 0
	for _, path := range files {
		def, err := form.LoadDefinition(path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %v\n", err)
			continue
		}
		if prev, dup := seen[def.ID]; dup {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: id %q already defined in %s\n", path, def.ID, prev)
			continue
		}
		seen[def.ID] = path
		fmt.Fprintf(out, "ok   %s (%s)\n", def.ID, path)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d definitions failed\n", failed, len(files))
		return errReported
	}
	return nil
}
