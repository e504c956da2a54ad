package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the bookshelf",
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()
		ctx := context.Background()

		cloud, err := db.CloudItems(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing cloud items: %v\n", err)
			os.Exit(1)
		}
		local, err := db.LocalItems(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing local items: %v\n", err)
			os.Exit(1)
		}

		if len(cloud) == 0 && len(local) == 0 {
			fmt.Println("Bookshelf is empty. Sync a folder or import a PDF to get started.")
			return
		}

		if len(cloud) > 0 {
			fmt.Printf("%s Synced\n", ui.RenderAccent("☁"))
			for _, item := range cloud {
				fmt.Printf("%s %s%s\n", cloudMarker(item), item.FileName, cloudDetail(item))
			}
		}
		if len(local) > 0 {
			fmt.Printf("%s Imported\n", ui.RenderAccent("💾"))
			for _, item := range local {
				fav := ""
				if item.Favorite {
					fav = " " + ui.RenderWarn("★")
				}
				fmt.Printf("%s %s%s %s\n", ui.RenderPass("✓"), item.FileName, fav, ui.RenderDim(fmt.Sprintf("#%d", item.ID)))
			}
		}
	},
}

func cloudMarker(item *shelf.CloudItem) string {
	switch item.DownloadStatus {
	case shelf.DownloadCompleted:
		return ui.RenderPass("✓")
	case shelf.DownloadActive:
		return ui.RenderAccent("▶")
	case shelf.DownloadError:
		return ui.RenderFail("✗")
	default:
		return ui.RenderDim("·")
	}
}

func cloudDetail(item *shelf.CloudItem) string {
	detail := ""
	if item.DownloadStatus == shelf.DownloadActive {
		detail = fmt.Sprintf(" %.0f%%", item.DownloadProgress)
	}
	if item.Favorite {
		detail += " " + ui.RenderWarn("★")
	}
	return detail + " " + ui.RenderDim(item.RemoteFileID)
}
