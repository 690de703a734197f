package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/crmapi"
)

var (
	getEntity string
	getID     string
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch one record through the API",
	Long: `Fetches a stored record from api.base_url and prints it as the
entity's typed record.  Secret fields are never returned.

Example:
  crm get --entity contact --id 0b7c…`,
	Args: cobra.NoArgs,
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getEntity, "entity", "e", "", "entity name")
	getCmd.Flags().StringVar(&getID, "id", "", "record id")
	_ = getCmd.MarkFlagRequired("entity")
	_ = getCmd.MarkFlagRequired("id")
}

func runGet(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ent, ok := crm.Lookup(getEntity)
	if !ok {
		return fmt.Errorf("unknown entity %q", getEntity)
	}
	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	log := env.log.With("entity", ent.Name)
	defer func() { _ = log.Sync() }()

	client, err := crmapi.New(env.cfg.API.BaseURL, crmapi.Options{
		Timeout: env.cfg.API.Timeout,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	rec, err := client.Get(ctx, ent.Name, getID)
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), ent, rec)
}

// printRecord writes rec as indented JSON with Data replaced by the
// entity's typed record.
func printRecord(out io.Writer, ent *crm.Entity, rec crmapi.Record) error {
	vals, tg := ent.ValuesFromPayload(rec.Data)
	view := struct {
		ID        string    `json:"id"`
		Entity    string    `json:"entity"`
		Record    any       `json:"record"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}{rec.ID, rec.Entity, ent.Record(vals, tg), rec.CreatedAt, rec.UpdatedAt}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
