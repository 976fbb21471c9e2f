// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/toeirei/warden/internal/db"
	"github.com/toeirei/warden/internal/desired"
	"github.com/toeirei/warden/internal/hostops"
	"github.com/toeirei/warden/internal/i18n"
	"github.com/toeirei/warden/internal/inventory"
	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/internal/plan"
	"github.com/toeirei/warden/internal/reconcile"
	"github.com/toeirei/warden/internal/report"
	"github.com/toeirei/warden/internal/state"
)

// reconcileCmd runs a full reconciliation over the selected hosts.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile [host-selector]",
	Short: "Reconcile admin accounts across the fleet",
	Long: `Probes every selected host, computes the transition plan for each
declared admin account, and applies it. The selector is "all" (default),
"tag=<tag>", or a comma-separated list of host names.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd.Context(), selectorArg(args), false)
	},
}

// planCmd computes and prints plans without touching any host.
var planCmd = &cobra.Command{
	Use:   "plan [host-selector]",
	Short: "Show what reconcile would do, without changing anything",
	Long: `Probes the selected hosts and prints the transition plan for every
host/user unit. No action is applied; hosts are only read.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd.Context(), selectorArg(args), true)
	},
}

// validateCmd checks the desired-state document without contacting hosts.
var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Validate the desired-state document",
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadRecords()
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d admin record(s) valid\n", appConfig.Desired, len(records))
		return nil
	},
}

func selectorArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "all"
}

// loadRecords loads and validates the desired-state document. A validation
// failure is fleet-fatal: every problem is printed and no host is contacted.
func loadRecords() ([]model.AdminRecord, error) {
	records, err := desired.Load(appConfig.Desired)
	if err != nil {
		var verr *desired.ValidationError
		if errors.As(err, &verr) {
			log.Errorf("%s", i18n.T("desired.error_invalid"))
			for _, p := range verr.Problems {
				log.Errorf("  %s", p)
			}
			return nil, err
		}
		return nil, fmt.Errorf(i18n.T("desired.error_load"), appConfig.Desired, err)
	}
	return records, nil
}

// loadHosts resolves the inventory and applies the host selector.
func loadHosts(ctx context.Context, selector string) ([]model.Host, error) {
	var hosts []model.Host
	var err error
	if appConfig.Inventory.Command != "" {
		src := &inventory.CommandSource{
			Command:   appConfig.Inventory.Command,
			CacheFile: appConfig.Inventory.CacheFile,
			TTL:       time.Duration(appConfig.Inventory.CacheTTL) * time.Second,
			Timeout:   time.Duration(appConfig.Inventory.Timeout) * time.Second,
		}
		hosts, err = src.Hosts(ctx)
	} else {
		hosts, err = inventory.LoadFile(appConfig.Inventory.File)
	}
	if err != nil {
		return nil, fmt.Errorf(i18n.T("inventory.error_load"), err)
	}
	return inventory.Filter(hosts, selector), nil
}

// loadIdentity reads the configured SSH identity and prompts for its
// passphrase when the key is encrypted. The passphrase lives only in the
// in-memory mailbox.
func loadIdentity() ([]byte, []byte, error) {
	if appConfig.SSH.IdentityFile == "" {
		return nil, nil, nil
	}
	key, err := os.ReadFile(appConfig.SSH.IdentityFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read identity file: %w", err)
	}
	if _, err := ssh.ParsePrivateKey(key); err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return nil, nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		pass := state.PassphraseCache.Get()
		if pass == nil {
			fmt.Print(i18n.T("passphrase.prompt"))
			entered, rerr := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if rerr != nil {
				return nil, nil, fmt.Errorf(i18n.T("passphrase.error_read"), rerr)
			}
			state.PassphraseCache.Set(entered)
			pass = entered
		}
		return key, pass, nil
	}
	return key, nil, nil
}

// planParams maps the resolved configuration onto planner parameters.
func planParams() plan.Params {
	p := plan.DefaultParams()
	if appConfig.Reconcile.AdminGroup != "" {
		p.AdminGroup = appConfig.Reconcile.AdminGroup
	}
	if appConfig.Reconcile.LoginShell != "" {
		p.LoginShell = appConfig.Reconcile.LoginShell
	}
	if appConfig.Reconcile.DenyShell != "" {
		p.DenyShell = appConfig.Reconcile.DenyShell
	}
	if appConfig.Reconcile.ExpiryDate != "" {
		p.ExpiryDate = appConfig.Reconcile.ExpiryDate
	}
	if appConfig.Archive.Root != "" {
		p.ArchiveRoot = appConfig.Archive.Root
	}
	return p
}

// hostSession pairs the SSH connection with its primitive runner so it
// satisfies the reconciler's session surface.
type hostSession struct {
	*hostops.Conn
	*hostops.Runner
}

// newDialer builds the session dialer used by the reconciler.
func newDialer() (reconcile.Dialer, error) {
	key, pass, err := loadIdentity()
	if err != nil {
		return nil, err
	}
	sshCfg := hostops.SSHConfig{
		User:       appConfig.SSH.User,
		PrivateKey: key,
		Passphrase: pass,
		Timeout:    time.Duration(appConfig.SSH.ConnectTimeout) * time.Second,
	}
	known := db.GetStore()
	return func(host model.Host) (reconcile.Session, error) {
		conn, err := hostops.Dial(host, sshCfg, known)
		if err != nil {
			return nil, err
		}
		return &hostSession{Conn: conn, Runner: hostops.NewRunner(conn)}, nil
	}, nil
}

func runReconcile(ctx context.Context, selector string, dryRun bool) error {
	records, err := loadRecords()
	if err != nil {
		return err
	}
	hosts, err := loadHosts(ctx, selector)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Println(i18n.T("inventory.empty"))
		return nil
	}

	dial, err := newDialer()
	if err != nil {
		return err
	}
	defer state.PassphraseCache.Clear()

	runner := &reconcile.Runner{
		Dial:  dial,
		Audit: db.GetStore(),
		Opts: reconcile.Options{
			Concurrency: appConfig.Reconcile.Concurrency,
			UnitTimeout: time.Duration(appConfig.Reconcile.UnitTimeout) * time.Second,
			Plan:        planParams(),
			HomeBase:    appConfig.Reconcile.HomeBase,
			DryRun:      dryRun,
		},
	}

	result, err := runner.Run(ctx, hosts, records)
	if err != nil {
		return err
	}

	printRunReport(result, dryRun)

	if !dryRun {
		if _, err := db.SaveRunReport(result); err != nil {
			log.Warnf("could not persist run report: %v", err)
		}
	}
	if result.Status() == model.HostFailed {
		return errors.New("reconciliation failed on all hosts")
	}
	return nil
}

// printRunReport renders the run for the terminal.
func printRunReport(r *model.RunReport, dryRun bool) {
	for _, h := range r.Hosts {
		if h.Status == model.HostUnreachable {
			fmt.Printf("%s: unreachable (%s)\n", h.Host, h.Error)
			continue
		}
		fmt.Printf("%s: %s\n", h.Host, h.Status)
		for _, u := range h.Units {
			if len(u.Actions) == 0 {
				fmt.Printf("  %s -> %s: %s\n", u.Username, u.Desired, renderUnitTail(u))
				continue
			}
			fmt.Printf("  %s -> %s:\n", u.Username, u.Desired)
			for _, a := range u.Actions {
				line := fmt.Sprintf("    %s [%s]", a.Action.String(), a.Status)
				if a.Error != "" {
					line += " " + a.Error
				}
				fmt.Println(line)
			}
			for _, adv := range u.Advisories {
				fmt.Printf("    advisory: %s\n", adv)
			}
		}
	}
	if dryRun {
		fmt.Printf("plan complete: %s\n", r.Summary())
		return
	}
	fmt.Printf("run complete: %s\n", r.Summary())
}

func renderUnitTail(u model.UnitResult) string {
	switch u.Status {
	case model.UnitRejected:
		return "rejected: " + u.Error
	case model.UnitFailed:
		return "failed: " + u.Error
	default:
		if len(u.Advisories) > 0 {
			return fmt.Sprintf("converged (%d advisory)", len(u.Advisories))
		}
		return "converged"
	}
}

// reportCmd exports a stored run report.
var (
	reportFormat string
	reportOutput string
	reportID     int
	reportList   bool
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Export a stored run report",
	Long:    `Exports a persisted reconciliation run as JSON, CSV or zstd-compressed JSON.`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		stored, err := db.GetRunReports(0)
		if err != nil {
			return fmt.Errorf(i18n.T("report.error_export"), err)
		}
		if reportList {
			for _, s := range stored {
				fmt.Printf("%d\t%s\t%s\n", s.ID, s.StartedAt, s.Status)
			}
			return nil
		}
		if len(stored) == 0 {
			return errors.New("no stored run reports")
		}

		picked := stored[0]
		if reportID > 0 {
			found := false
			for _, s := range stored {
				if s.ID == reportID {
					picked = s
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("no stored run report with id %d", reportID)
			}
		}

		var run model.RunReport
		if err := decodeStoredReport(picked, &run); err != nil {
			return err
		}

		out := os.Stdout
		if reportOutput != "" {
			f, err := os.Create(reportOutput)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		switch reportFormat {
		case "json":
			err = report.ExportJSON(out, &run)
		case "csv":
			err = report.ExportCSV(out, &run)
		case "zstd":
			err = report.ExportZstd(out, &run)
		default:
			return fmt.Errorf("unknown report format %q", reportFormat)
		}
		if err != nil {
			return fmt.Errorf(i18n.T("report.error_export"), err)
		}
		if reportOutput != "" {
			fmt.Printf(i18n.T("report.written")+"\n", reportOutput)
		}
		return nil
	},
}
