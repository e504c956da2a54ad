package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hondana/hondana/internal/config"
	"github.com/hondana/hondana/internal/remote"
	"github.com/hondana/hondana/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hondana",
	Short: "PDF bookshelf with remote folder sync and persistent downloads",
	Long: `hondana keeps a local PDF library mirrored from remote drive folders.

Remote folders are synced into a local catalog, downloads run through a
durable queue that survives restarts, and local PDFs can be imported
into the same library. State lives in a single SQLite database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.hondana/config.yaml)")

	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(serveCmd)
}

// openEnv loads configuration and opens the database with its schema
// ready. Callers close the store.
func openEnv() (*config.Config, *store.DB) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	if err := db.InitSchema(context.Background()); err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	return cfg, db
}

// newRemote builds the drive client from configuration.
func newRemote(cfg *config.Config) *remote.HTTPSource {
	if cfg.RemoteURL == "" {
		fmt.Fprintf(os.Stderr, "Error: remote_url is not configured\n")
		fmt.Fprintf(os.Stderr, "Set it in the config file or with HONDANA_REMOTE_URL\n")
		os.Exit(1)
	}

	opts := []remote.Option{}
	if cfg.RemoteToken != "" {
		opts = append(opts, remote.WithToken(cfg.RemoteToken))
	}
	return remote.NewHTTPSource(cfg.RemoteURL, opts...)
}
