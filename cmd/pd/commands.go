package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/devsec-ops/policy-dispatcher/internal/broker"
	"github.com/devsec-ops/policy-dispatcher/internal/config"
	"github.com/devsec-ops/policy-dispatcher/internal/dispatch"
	"github.com/devsec-ops/policy-dispatcher/internal/engine"
	"github.com/devsec-ops/policy-dispatcher/internal/mapping"
	"github.com/devsec-ops/policy-dispatcher/internal/models"
	"github.com/devsec-ops/policy-dispatcher/internal/output"
	"github.com/devsec-ops/policy-dispatcher/internal/policystore"
	"github.com/devsec-ops/policy-dispatcher/internal/providers/aws/common"
	"github.com/devsec-ops/policy-dispatcher/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pd",
		Short: "pd — cross-account policy dispatcher",
	}
	root.AddCommand(newDispatchCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

func newDispatchCmd() *cobra.Command {
	var (
		eventPath   string
		mappingPath string
		configPath  string
		region      string
		dryRun      bool
		reportFmt   string
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch one event payload through the policy pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig(configPath)
			if err != nil {
				return err
			}
			if region != "" {
				cfg.DefaultRegion = region
			}
			if dryRun {
				cfg.DryRun = true
			}

			raw, err := os.ReadFile(eventPath)
			if err != nil {
				return fmt.Errorf("read event payload: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			awsCfg, err := common.LoadConfig(cmd.Context(), cfg.DefaultRegion)
			if err != nil {
				return fmt.Errorf("load AWS configuration: %w", err)
			}
			clients := common.NewClientSet(awsCfg)

			src, err := mappingSource(cfg, mappingPath, clients, logger)
			if err != nil {
				return err
			}
			if cfg.PolicyBucket == "" {
				return fmt.Errorf("policy bucket is required (set %s or --config)", config.EnvPolicyBucket)
			}

			d := dispatch.New(
				src,
				policystore.NewS3Store(clients.S3, cfg.PolicyBucket, cfg.PolicyPrefix, logger),
				broker.New(clients.STS, cfg.RoleName, cfg.ExternalIDTemplate, cfg.SessionDuration, logger),
				engine.NewCustodianEngine(cfg.EngineBinary, logger),
				dispatch.Options{DefaultRegion: cfg.DefaultRegion, DryRun: cfg.DryRun},
				logger,
			)

			rep, err := d.Dispatch(cmd.Context(), raw)
			if err != nil {
				return fmt.Errorf("dispatch failed: %w", err)
			}

			if reportFmt == "json" {
				return printJSON(cmd, rep)
			}
			output.RenderSummary(cmd.OutOrStdout(), rep)
			fmt.Fprintln(cmd.OutOrStdout())
			output.RenderResults(cmd.OutOrStdout(), rep.Results, output.TableOptions{})
			return nil
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "", "Path to the raw event payload (JSON)")
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "Local mapping document path (default: fetch from the object store)")
	cmd.Flags().StringVar(&configPath, "config", "", "Dispatcher config file (default: environment variables)")
	cmd.Flags().StringVar(&region, "region", "", "Region override for policy execution")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate policy filters without taking actions")
	cmd.Flags().StringVar(&reportFmt, "report", "table", "Output format: json or table")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func newResolveCmd() *cobra.Command {
	var (
		mappingPath string
		accountID   string
		eventName   string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the ordered policy list for an (account, event) pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := mapping.FileSource{Path: mappingPath}.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			policies := mapping.Resolve(doc, accountID, eventName)
			if len(policies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No policies resolved.")
				return nil
			}
			for _, name := range policies {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mappingPath, "mapping", "accounts.yml", "Mapping document path")
	cmd.Flags().StringVar(&accountID, "account", "", "Target account identifier")
	cmd.Flags().StringVar(&eventName, "event-name", "", "Event name to resolve")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("event-name")

	return cmd
}

// loadCLIConfig reads the config file when given, otherwise the environment.
func loadCLIConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.FromEnv()
}

// mappingSource prefers a local mapping file when provided, otherwise the
// configured object-store location.
func mappingSource(cfg *config.Config, localPath string, clients *common.ClientSet, logger *slog.Logger) (mapping.Source, error) {
	if localPath != "" {
		return mapping.FileSource{Path: localPath}, nil
	}
	if cfg.MappingBucket == "" {
		return nil, fmt.Errorf("mapping bucket is required (set %s, --config, or --mapping)", config.EnvMappingBucket)
	}
	return mapping.NewStoreSource(clients.S3, cfg.MappingBucket, cfg.MappingKey, logger), nil
}

// printJSON writes the report as indented JSON to the command's stdout.
func printJSON(cmd *cobra.Command, rep *models.DispatchReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
