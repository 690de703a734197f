// cmd/crm/cmd/root.go
//
// Root command and the bootstrap shared by sub-commands.
//
// Bootstrap order
// ---------------
//
//  1. Console logger at the requested level (config is not loaded yet).
//
//  2. Config: .env → conf/crm.yaml → CRM_ env, with `vault:` values
//     resolved through a lazily built Vault client.
//
//  3. Final logger from the Log section (daily file, optional tee).
//
// Commands that work offline (lint, validate, forms) skip steps 2 and 3.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/adept-crm/internal/config"
	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/form"
	"github.com/yanizio/adept-crm/internal/logger"
	"github.com/yanizio/adept-crm/internal/vault"
)

var (
	rootDir string
	cfgFile string
	verbose bool
)

// errReported marks failures already printed for the user.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "crm",
	Short: "CRM forms toolkit",
	Long: `Validation and submission tooling for the CRM entity forms.

Entities:
  lead, customer, contact, compliance, payment_profile, registration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		printError(rootCmd.Name(), err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (default: CRM_ROOT or the dir holding conf/crm.yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <root>/conf/crm.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// runtimeEnv is what serve and submit share after bootstrap.
type runtimeEnv struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func bootstrap(ctx context.Context) (*runtimeEnv, error) {
	boot, err := logger.New(logger.Options{Level: level(""), Tee: true})
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(ctx, config.Options{
		Root:    rootDir,
		File:    cfgFile,
		Secrets: vault.NewLazy(ctx, boot.Infof),
	})
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Level: level(cfg.Log.Level), Tee: cfg.Log.Tee})
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, log: log}, nil
}

// consoleLogger is the logger for offline commands.
func consoleLogger() *zap.SugaredLogger {
	log, err := logger.New(logger.Options{Level: level("warn"), Tee: true})
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}

func level(configured string) string {
	if verbose {
		return "debug"
	}
	return configured
}

// definitions returns the built-in forms plus any YAML forms under dir.
func definitions(dir string) (*form.Registry, error) {
	reg := crm.Definitions()
	if dir == "" {
		return reg, nil
	}
	if err := reg.LoadDir(dir); err != nil {
		return nil, err
	}
	return reg, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
