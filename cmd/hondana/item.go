package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hondana/hondana/internal/download"
	shelfsync "github.com/hondana/hondana/internal/sync"
	"github.com/hondana/hondana/internal/ui"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Record that a file was opened",
	Long: `Stamp the last-opened time for the item backing a file path.

Synced items are matched on their downloaded path, imported items on
their library path. The bookshelf lists recently opened items first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()
		ctx := context.Background()

		ok, err := db.TouchCloudLastOpened(ctx, args[0])
		if err == nil && !ok {
			ok, err = db.TouchLocalLastOpened(ctx, args[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recording open: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "No item on the shelf is backed by %s\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("%s Marked opened\n", ui.RenderPass("✓"))
	},
}

var favoriteLocal bool

var favoriteCmd = &cobra.Command{
	Use:   "favorite <remote-file-id>",
	Short: "Toggle an item's favorite star",
	Long: `Toggle the favorite star on a shelf item.

Synced items are addressed by remote file id (shown by 'list').
Imported items are addressed by their numeric id with --local.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()
		ctx := context.Background()

		var fav bool
		if favoriteLocal {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: --local takes a numeric item id\n")
				os.Exit(1)
			}
			fav, err = db.ToggleLocalFavorite(ctx, id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error toggling favorite: %v\n", err)
				os.Exit(1)
			}
		} else {
			item, err := db.CloudItemByRemoteID(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error toggling favorite: %v\n", err)
				os.Exit(1)
			}
			if item == nil {
				fmt.Fprintf(os.Stderr, "Unknown file %s\n", args[0])
				os.Exit(1)
			}
			fav, err = db.ToggleCloudFavorite(ctx, item.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error toggling favorite: %v\n", err)
				os.Exit(1)
			}
		}

		if fav {
			fmt.Printf("%s Favorited\n", ui.RenderWarn("★"))
		} else {
			fmt.Printf("%s Unfavorited\n", ui.RenderDim("☆"))
		}
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <remote-file-id>",
	Short: "Delete a downloaded copy, keeping the catalog entry",
	Long: `Delete the local copy of a synced item.

The file is removed from the library and the catalog entry reverts to
pending, so the item stays on the shelf and can be downloaded again.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		// No transfer runs here, so the pipeline needs no remote source.
		pipeline := download.NewPipeline(db, download.NewCoordinator(), nil, cfg.LibraryDir, nil)
		if err := pipeline.RemoveDownload(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing download: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed local copy of %s\n", ui.RenderPass("✓"), args[0])
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Delete an imported item and its file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: delete takes a numeric item id (shown by 'list')\n")
			os.Exit(1)
		}

		importer := shelfsync.NewImporter(db, cfg.LibraryDir, nil)
		if err := importer.DeleteItem(context.Background(), id); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting item: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted item %d\n", ui.RenderPass("✓"), id)
	},
}

func init() {
	favoriteCmd.Flags().BoolVar(&favoriteLocal, "local", false, "address an imported item by numeric id")
}
