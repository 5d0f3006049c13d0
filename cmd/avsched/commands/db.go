package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/db"
	"github.com/teranos/avscheduler/sym"
)

// DbCmd groups execution log database commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the execution log database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the execution log schema",
	Long: `Create or upgrade the execution log schema. The scheduler and the status
server migrate on startup, so this is only needed to prepare a database ahead
of time.`,
	RunE: runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, _, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("%s %s is up to date", sym.DB, cfg.GetDatabasePath())
	for _, v := range versions {
		fmt.Printf("  applied %s\n", v)
	}
	return nil
}
