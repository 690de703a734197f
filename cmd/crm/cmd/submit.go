package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/crmapi"
	"github.com/yanizio/adept-crm/internal/form"
	"github.com/yanizio/adept-crm/internal/submit"
	"github.com/yanizio/adept-crm/internal/verify"
)

var (
	submitEntity string
	submitID     string
	submitFile   string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Validate and submit one record through the API",
	Long: `Runs the full client-side pipeline against api.base_url: field and
cross-field validation, the uniqueness check, then create or update.

With --id the stored record is fetched first and the file only needs the
fields that change.

Examples:
  crm submit --entity lead --file lead.json
  crm submit --entity contact --id 0b7c… --file changes.json`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&submitEntity, "entity", "e", "", "entity name")
	submitCmd.Flags().StringVar(&submitID, "id", "", "record to update (default: create)")
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "-", "values file, - for stdin")
	_ = submitCmd.MarkFlagRequired("entity")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ent, ok := crm.Lookup(submitEntity)
	if !ok {
		return fmt.Errorf("unknown entity %q", submitEntity)
	}
	data, err := readPayload(cmd.InOrStdin(), submitFile)
	if err != nil {
		return err
	}

	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	log := env.log.With("entity", ent.Name)
	defer func() { _ = log.Sync() }()

	client, err := crmapi.New(env.cfg.API.BaseURL, crmapi.Options{
		Timeout:         env.cfg.API.Timeout,
		ChecksPerSecond: env.cfg.API.ChecksPerSecond,
		Burst:           env.cfg.API.Burst,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	var (
		original form.Values
		initTog  form.Toggles
	)
	if submitID != "" {
		rec, err := client.Get(ctx, ent.Name, submitID)
		if err != nil {
			return err
		}
		original, initTog = ent.ValuesFromPayload(rec.Data)
	}

	checker := verify.New(client.Lookup(ent.Name), verify.Options{
		Delay:   env.cfg.Check.Debounce,
		Timeout: env.cfg.Check.Timeout,
		Logger:  log,
	})
	defer checker.Close()

	sess := submit.New(ent, client, submit.Options{
		RecordID: submitID,
		Values:   original,
		Toggles:  initTog,
		Checker:  checker,
		Logger:   log,
	})

	vals, tg := ent.ValuesFromPayload(data)
	for _, name := range sortedKeys(tg) {
		sess.SetToggle(name, tg[name])
	}
	for _, name := range sortedKeys(vals) {
		sess.Change(name, vals[name])
	}

	rec, err := sess.Submit(ctx)
	out := cmd.OutOrStdout()

	var (
		ve *form.ValidationError
		ge *submit.GlobalError
	)
	switch {
	case err == nil:
		return printRecord(out, ent, rec)
	case errors.As(err, &ve):
		if ve.Form != "" {
			fmt.Fprintln(out, ve.Form)
		}
		printFieldErrors(out, ve.Fields)
		return errReported
	case errors.As(err, &ge):
		log.Debugw("submit failed", "error", err)
		if ge.Retryable {
			fmt.Fprintf(out, "%s (retryable)\n", ge.Message)
		} else {
			fmt.Fprintln(out, ge.Message)
		}
		return errReported
	default:
		return err
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
