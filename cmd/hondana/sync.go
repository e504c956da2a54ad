package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hondana/hondana/internal/shelf"
	shelfsync "github.com/hondana/hondana/internal/sync"
	"github.com/hondana/hondana/internal/ui"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage synced remote folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add <folder-id> <name>",
	Short: "Add a remote folder to the sync set",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		if err := db.AddSyncFolder(context.Background(), args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding folder: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added folder %s (%s)\n", ui.RenderPass("✓"), args[1], args[0])
	},
}

var folderRemoveCmd = &cobra.Command{
	Use:   "remove <folder-id>",
	Short: "Stop syncing a folder",
	Long: `Stop syncing a remote folder.

Already-downloaded files are kept. Items from this folder that were
never downloaded are removed on the next sync pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		if err := db.DeactivateSyncFolder(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing folder: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Folder %s deactivated\n", ui.RenderPass("✓"), args[0])
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced folders",
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		folders, err := db.ActiveSyncFolders(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing folders: %v\n", err)
			os.Exit(1)
		}

		if len(folders) == 0 {
			fmt.Println("No synced folders. Add one with: hondana folder add <folder-id> <name>")
			return
		}

		for _, f := range folders {
			synced := "never"
			if f.LastSyncedAt != nil {
				synced = f.LastSyncedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%s %s %s\n", ui.RenderAccent(f.FolderName), ui.RenderDim(f.FolderID), ui.RenderDim("last synced "+synced))
		}
	},
}

var syncPruneAll bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the catalog with remote folder listings",
	Long: `Fetch the listing of every active folder and update the catalog.

New remote files appear as pending items, existing items get their
listing fields refreshed, and undownloaded items from deactivated
folders are removed. Download state is never touched by a sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		reconciler := shelfsync.NewReconciler(db, newRemote(cfg), nil)

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		start := time.Now()

		res, err := reconciler.SyncAll(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   New: %d\n", res.NewFiles)
		fmt.Printf("   Updated: %d\n", res.UpdatedFiles)
		fmt.Printf("   Removed: %d\n", res.RemovedFiles)
	},
}

var syncPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove undownloaded items from inactive folders",
	Long: `Remove catalog items that were never downloaded.

By default this only removes items whose folder left the active set.
With --all it removes every undownloaded item regardless of folder,
including those from still-active folders.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		reconciler := shelfsync.NewReconciler(db, nopLister{}, nil)

		var removed int
		var err error
		if syncPruneAll {
			removed, err = reconciler.PruneAllPending(context.Background())
		} else {
			removed, err = reconciler.PruneInactiveFolders(context.Background())
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed %d items\n", ui.RenderPass("✓"), removed)
	},
}

// nopLister lets prune commands build a reconciler without touching
// the network.
type nopLister struct{}

func (nopLister) ListFolder(ctx context.Context, folderID string) ([]shelf.RemoteFile, error) {
	return nil, nil
}

func init() {
	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderRemoveCmd)
	folderCmd.AddCommand(folderListCmd)

	syncPruneCmd.Flags().BoolVar(&syncPruneAll, "all", false, "remove every undownloaded item, not just inactive folders")
	syncCmd.AddCommand(syncPruneCmd)
}
