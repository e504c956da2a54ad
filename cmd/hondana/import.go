package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	shelfsync "github.com/hondana/hondana/internal/sync"
	"github.com/hondana/hondana/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Import local PDFs into the library",
	Long: `Copy PDFs into the managed library and register them.

Each path may be a PDF file or a directory; directories are imported
one level deep. Originals are never modified, and importing the same
file twice is skipped.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()
		ctx := context.Background()

		importer := shelfsync.NewImporter(db, cfg.LibraryDir, nil)

		imported, skipped, failed := 0, 0, 0
		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), path, err)
				failed++
				continue
			}

			if info.IsDir() {
				res, err := importer.ImportDir(ctx, path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), path, err)
					failed++
					continue
				}
				imported += res.Imported
				skipped += res.Skipped
				failed += res.Errors
				continue
			}

			item, err := importer.ImportFile(ctx, path)
			switch {
			case err == nil:
				fmt.Printf("%s %s\n", ui.RenderPass("✓"), item.FileName)
				imported++
			case isSkip(err):
				fmt.Printf("%s %s %s\n", ui.RenderWarn("⊘"), path, ui.RenderDim("skipped"))
				skipped++
			default:
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), path, err)
				failed++
			}
		}

		fmt.Printf("\n%s Imported %d, skipped %d, failed %d\n", ui.RenderPass("✓"), imported, skipped, failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func isSkip(err error) bool {
	return errors.Is(err, shelfsync.ErrAlreadyImported) || errors.Is(err, shelfsync.ErrNotPDF)
}
