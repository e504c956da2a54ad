package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	shelfsync "github.com/hondana/hondana/internal/sync"
	"github.com/hondana/hondana/internal/ui"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Repair catalog and queue state after a crash",
	Long: `Restore database invariants after an unclean shutdown.

Jobs stuck in processing are requeued, catalog items stuck downloading
go back to pending, completed items whose file vanished from disk are
reset so they can be re-downloaded, and imported items with no file
behind them are removed.

'serve' runs this automatically at startup.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		stats, err := shelfsync.NewRecovery(db, nil).Run(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during recovery: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Recovery complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Requeued jobs: %d\n", stats.RequeuedJobs)
		fmt.Printf("   Demoted downloads: %d\n", stats.DemotedDownloads)
		fmt.Printf("   Reset cloud items: %d\n", stats.ResetCloudItems)
		fmt.Printf("   Removed local items: %d\n", stats.RemovedLocalItems)
	},
}
