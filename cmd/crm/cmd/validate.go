package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/form"
)

var (
	validateEntity string
	validateForm   string
	validateFile   string
	validateDir    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a values file offline",
	Long: `Validates a JSON object of field values against one form.

Strings are field values and booleans are toggles:

  {"first_name": "Ada", "login_enabled": true, "login_email": "ada@x.io"}

Examples:
  crm validate --entity contact --file contact.json
  crm validate --form shop/signup --dir conf/forms --file - < signup.json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateEntity, "entity", "e", "", "entity name")
	validateCmd.Flags().StringVar(&validateForm, "form", "", "form definition ID (instead of --entity)")
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "-", "values file, - for stdin")
	validateCmd.Flags().StringVar(&validateDir, "dir", "", "extra YAML form definitions")
	validateCmd.MarkFlagsMutuallyExclusive("entity", "form")
	validateCmd.MarkFlagsOneRequired("entity", "form")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	consoleLogger()

	data, err := readPayload(cmd.InOrStdin(), validateFile)
	if err != nil {
		return err
	}

	var (
		def  *form.Definition
		vals form.Values
		tg   form.Toggles
	)
	if validateEntity != "" {
		ent, ok := crm.Lookup(validateEntity)
		if !ok {
			return fmt.Errorf("unknown entity %q", validateEntity)
		}
		def = ent.Def
		vals, tg = ent.ValuesFromPayload(data)
	} else {
		reg, err := definitions(validateDir)
		if err != nil {
			return err
		}
		d, ok := reg.Get(validateForm)
		if !ok {
			return fmt.Errorf("unknown form %q", validateForm)
		}
		def = d
		vals, tg = splitPayload(data)
	}

	errs := form.ValidateForm(vals, def, tg)
	out := cmd.OutOrStdout()
	if len(errs) == 0 {
		fmt.Fprintf(out, "%s: ok\n", def.ID)
		return nil
	}
	printFieldErrors(out, errs)
	return errReported
}

// readPayload decodes one JSON object from path, or from stdin when path
// is "-".
func readPayload(stdin io.Reader, path string) (map[string]any, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var data map[string]any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

// splitPayload separates string values from boolean toggles.
func splitPayload(data map[string]any) (form.Values, form.Toggles) {
	vals := form.Values{}
	tg := form.Toggles{}
	for k, v := range data {
		switch v := v.(type) {
		case string:
			vals[k] = v
		case bool:
			tg[k] = v
		}
	}
	return vals, tg
}

func printFieldErrors(w io.Writer, errs form.Errors) {
	for _, name := range errs.Fields() {
		fmt.Fprintf(w, "%s: %s\n", name, errs[name].Message)
	}
}
