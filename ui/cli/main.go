// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for the Warden
// application using the Cobra library. It defines the root command,
// subcommands (like reconcile, plan, audit), flags, and the main
// entry point for execution.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/warden/buildvars"
	"github.com/toeirei/warden/internal/config"
	"github.com/toeirei/warden/internal/db"
	"github.com/toeirei/warden/internal/i18n"
	"github.com/toeirei/warden/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)
var cfgFile string
var verbose bool
var showVersionFlag bool

var appConfig config.Config

// setupDefaultServices loads configuration, initializes i18n and opens the
// database. It runs before every subcommand.
func setupDefaultServices(cmd *cobra.Command, args []string) error {
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	defaults := map[string]any{
		"database.type":         "sqlite",
		"database.dsn":          "./warden.db",
		"language":              "en",
		"desired":               "./admins.yaml",
		"inventory.file":        "./inventory.yaml",
		"ssh.user":              "root",
		"ssh.connect_timeout":   10,
		"reconcile.concurrency": 4,
		"reconcile.unit_timeout": 60,
		"reconcile.admin_group": "wheel",
		"reconcile.login_shell": "/bin/bash",
		"reconcile.deny_shell":  "/usr/sbin/nologin",
		"reconcile.expiry_date": "1970-01-02",
		"reconcile.home_base":   "/home",
		"archive.root":          "/var/archives/warden",
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, defaults, optionalConfigPath)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		// First run, or the config file was deleted. Create a default one.
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			log.Warnf("Warning: could not write default config file: %v", writeErr)
		}
	} else if err != nil {
		return fmt.Errorf(i18n.T("config.error_load"), err)
	}

	// Post-process config to ensure critical values are not empty, falling
	// back to defaults. This handles config files with empty values.
	if appConfig.Database.Type == "" {
		appConfig.Database.Type = defaults["database.type"].(string)
	}
	if appConfig.Database.Dsn == "" {
		appConfig.Database.Dsn = defaults["database.dsn"].(string)
	}
	if appConfig.Language == "" {
		appConfig.Language = defaults["language"].(string)
	}

	i18n.Init(appConfig.Language)

	if verbose {
		logging.SetDebug(true)
		db.SetDebug(true)
	}

	if !db.IsInitialized() {
		if _, err := db.New(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return fmt.Errorf(i18n.T("config.error_init_db"), err)
		}
	}

	return nil
}

// Execute runs the CLI entrypoint. The root main package should call this
// function and handle process exit.
func Execute() error {
	rootCmd := NewRootCmd()
	return rootCmd.Execute()
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		// Make sure the user-provided file exists to avoid unwanted behavior.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

func applyDefaultFlags(cmd *cobra.Command) {
	// pflag panics on duplicate flag definitions, so check first.
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.Flags().String("database.type", "sqlite", "Database type (e.g., sqlite, postgres)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", "./warden.db", "Database connection string (DSN)")
	}
}

// NewRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden manages privileged admin accounts across an SSH fleet.",
		Long: `Warden reconciles declared admin account lifecycles against the real
state of each host in the fleet. A desired-state document declares who
should exist, with which keys, in which lifecycle state; Warden probes
every host over SSH, computes the minimal set of changes, and applies
them idempotently.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersionFlag {
				fmt.Println(compositeVersion())
				os.Exit(0)
			}
			return setupDefaultServices(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logs)")
	cmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "Print version and exit")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `Output language ("en")`)
	applyDefaultFlags(cmd)

	applyDefaultFlags(reconcileCmd)
	applyDefaultFlags(planCmd)
	applyDefaultFlags(validateCmd)
	applyDefaultFlags(reportCmd)
	applyDefaultFlags(auditCmd)
	applyDefaultFlags(trustHostCmd)
	applyDefaultFlags(dbMaintainCmd)

	if reportCmd.Flags().Lookup("format") == nil {
		reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "json", "Report format: 'json', 'csv' or 'zstd'")
		reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write to file instead of stdout")
		reportCmd.Flags().IntVar(&reportID, "id", 0, "Export a specific stored run (default: most recent)")
		reportCmd.Flags().BoolVar(&reportList, "list", false, "List stored runs instead of exporting one")
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			resolvedVersion, resolvedCommit, resolvedDate := resolveBuildVersion(nil)
			fmt.Printf("version: %s\n", resolvedVersion)
			fmt.Printf("commit: %s\n", resolvedCommit)
			if resolvedDate != "" {
				fmt.Printf("built: %s\n", resolvedDate)
			}
		},
	}

	cmd.AddCommand(
		reconcileCmd,
		planCmd,
		validateCmd,
		reportCmd,
		auditCmd,
		trustHostCmd,
		dbMaintainCmd,
		versionCmd,
	)

	return cmd
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out = out + " (" + c + ")"
	}
	if d != "" {
		out = out + " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If `info` is nil, it reads build info from
// the runtime. This helper is separated to make unit testing straightforward.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	var ok bool
	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
			ok = true
		}
	} else {
		ok = true
	}

	if ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}

// promptForConfirmation reads a line from stdin after printing the prompt.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}
