// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/toeirei/warden/internal/db"
	"github.com/toeirei/warden/internal/hostops"
	"github.com/toeirei/warden/internal/i18n"
	"github.com/toeirei/warden/internal/model"
)

func decodeStoredReport(s db.StoredRunReport, out *model.RunReport) error {
	if err := json.Unmarshal([]byte(s.Payload), out); err != nil {
		return fmt.Errorf("corrupt stored run report %d: %w", s.ID, err)
	}
	return nil
}

// auditCmd prints the persisted audit trail.
var auditCmd = &cobra.Command{
	Use:     "audit",
	Short:   "Show the audit log",
	Long:    `Prints the audit trail of past reconciliation units, most recent first.`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := db.GetAllAuditLogEntries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-12s %-16s %s\n", e.Timestamp, e.Username, e.Action, e.Details)
		}
		return nil
	},
}

// trustHostCmd represents the 'trust-host' command.
// It facilitates the initial trust of a new host by fetching its public SSH
// key, displaying its fingerprint, and prompting the user to save it to the
// database as a known host.
var trustHostCmd = &cobra.Command{
	Use:   "trust-host <host[:port]>",
	Short: "Adds a host's public key to the list of known hosts",
	Long: `Connects to a host for the first time, retrieves its public key,
and prompts the user to save it to the database. This is a required
step before Warden can manage a new host.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		host := model.Host{Name: target, Addr: target}
		if i := strings.LastIndex(target, ":"); i > 0 {
			host.Name = target[:i]
			host.Addr = target[:i]
			fmt.Sscanf(target[i+1:], "%d", &host.Port)
		}

		fmt.Printf("Attempting to retrieve host key from %s…\n", host.DialAddr())
		pubKey, err := hostops.FetchHostKey(host)
		if err != nil {
			return fmt.Errorf(i18n.T("trusthost.error_fetch"), host.Name, err)
		}
		log.Infof(i18n.T("trusthost.fetched"), host.Name)

		fmt.Printf("The authenticity of host '%s' can't be established.\n", host.Name)
		fmt.Printf("Key fingerprint: %s\n", ssh.FingerprintSHA256(pubKey))

		ans := promptForConfirmation("Are you sure you want to continue connecting (yes/no)? ")
		if ans != "yes" && ans != "y" {
			fmt.Println("Cancelled.")
			return nil
		}

		keyStr := string(ssh.MarshalAuthorizedKey(pubKey))
		if err := db.AddKnownHostKey(host.Name, keyStr); err != nil {
			return err
		}
		fmt.Printf(i18n.T("trusthost.stored")+"\n", host.Name)
		return nil
	},
}

// dbMaintainCmd runs engine-specific database maintenance.
var dbMaintainCmd = &cobra.Command{
	Use:     "db-maintenance",
	Short:   "Run database maintenance (VACUUM etc.)",
	Long:    `Performs engine-specific maintenance: VACUUM and integrity check for SQLite, VACUUM ANALYZE for Postgres, OPTIMIZE TABLE for MySQL.`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.RunDBMaintenance(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return err
		}
		fmt.Println("Database maintenance complete.")
		return nil
	},
}
