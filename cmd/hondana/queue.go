package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hondana/hondana/internal/download"
	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the download queue",
}

var queueAddPriority int

var queueAddCmd = &cobra.Command{
	Use:   "add <remote-file-id>",
	Short: "Queue a file for download",
	Long: `Queue a catalog item for download.

Queueing a file that is already queued merges with the existing job:
the higher priority wins and an in-flight download is not disturbed. A
finished job is revived and downloads again.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		pipeline := download.NewPipeline(db, download.NewCoordinator(), newRemote(cfg), cfg.LibraryDir, nil)
		if _, err := pipeline.Enqueue(context.Background(), args[0], queueAddPriority); err != nil {
			fmt.Fprintf(os.Stderr, "Error queueing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Queued %s\n", ui.RenderPass("✓"), args[0])
	},
}

var queueAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Queue every catalog item not yet downloaded",
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		n, err := db.EnqueueAllPending(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error queueing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Queued %d items\n", ui.RenderPass("✓"), n)
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show queue contents",
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		jobs, err := db.QueueItems(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing queue: %v\n", err)
			os.Exit(1)
		}

		if len(jobs) == 0 {
			fmt.Println("Queue is empty")
			return
		}

		for _, job := range jobs {
			marker := ui.RenderDim("·")
			detail := ""
			switch job.Status {
			case shelf.QueueProcessing:
				marker = ui.RenderAccent("▶")
				detail = fmt.Sprintf(" %.0f%%", job.DownloadProgress)
			case shelf.QueueCompleted:
				marker = ui.RenderPass("✓")
			case shelf.QueueError:
				marker = ui.RenderFail("✗")
				if job.ErrorMessage != nil {
					detail = " " + ui.RenderDim(*job.ErrorMessage)
				}
			case shelf.QueueCancelled:
				marker = ui.RenderWarn("⊘")
			}
			fmt.Printf("%s %s %s [%s p%d]%s\n",
				marker, job.FileName, ui.RenderDim(job.RemoteFileID), job.Status, job.Priority, detail)
		}
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all waiting jobs",
	Long: `Remove every job that is still waiting.

A download already in flight is not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		n, err := db.ClearQueued(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing queue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Cleared %d waiting jobs\n", ui.RenderPass("✓"), n)
	},
}

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain the queue, downloading one file at a time",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		pipeline := download.NewPipeline(db, download.NewCoordinator(), newRemote(cfg), cfg.LibraryDir, nil)

		fmt.Printf("%s Draining download queue...\n", ui.RenderAccent("⬇"))
		n, err := pipeline.Drain(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error draining queue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Processed %d jobs\n", ui.RenderPass("✓"), n)
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <remote-file-id>",
	Short: "Remove a single job from the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()

		removed, err := db.RemoveQueueItem(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error removing job: %v\n", err)
			os.Exit(1)
		}
		if !removed {
			fmt.Printf("%s No job for %s\n", ui.RenderDim("·"), args[0])
			return
		}
		fmt.Printf("%s Removed job for %s\n", ui.RenderPass("✓"), args[0])
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue summary",
	Run: func(cmd *cobra.Command, args []string) {
		_, db := openEnv()
		defer db.Close()
		ctx := context.Background()

		pending, err := db.PendingCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}
		current, err := db.ProcessingItem(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Download Queue\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Pending: %d\n", pending)
		if current != nil {
			fmt.Printf("   In flight: %s (%.0f%%)\n", current.FileName, current.DownloadProgress)
		} else {
			fmt.Printf("   In flight: none\n")
		}
	},
}

func init() {
	queueAddCmd.Flags().IntVar(&queueAddPriority, "priority", 0, "dispatch priority, higher runs first")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueAllCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueRunCmd)
	queueCmd.AddCommand(queueStatusCmd)
}
