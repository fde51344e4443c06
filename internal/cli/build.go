package cli

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docurag-go/internal/app"
	"github.com/0xcro3dile/docurag-go/internal/infrastructure/progress"
)

var buildOpts struct {
	pdfDir  string
	out     string
	store   string
	size    int
	overlap int
}

var buildCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the vector index from a PDF directory",
	Long: `Loads every PDF in the directory, splits pages into overlapping token
windows, embeds them and writes the index. The previous index is only
replaced once the new one is complete.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildOpts.pdfDir, "pdf-dir", "", "directory of PDFs (default ingest.pdf_dir)")
	f.StringVar(&buildOpts.out, "out", "", "index directory (default index.path)")
	f.StringVar(&buildOpts.store, "store", "", "index store: flat, sqlite or bolt (default index.store)")
	f.IntVar(&buildOpts.size, "chunk-size", 0, "tokens per chunk (default ingest.chunk_size)")
	f.IntVar(&buildOpts.overlap, "chunk-overlap", -1, "tokens shared by adjacent chunks (default ingest.chunk_overlap)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if buildOpts.pdfDir != "" {
		cfg.Ingest.PDFDir = buildOpts.pdfDir
	}
	if buildOpts.out != "" {
		cfg.Index.Path = buildOpts.out
	}
	if buildOpts.store != "" {
		cfg.Index.Store = buildOpts.store
	}
	if buildOpts.size > 0 {
		cfg.Ingest.ChunkSize = buildOpts.size
	}
	if buildOpts.overlap != -1 {
		cfg.Ingest.ChunkOverlap = buildOpts.overlap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var opts []app.Option
	if progress.Enabled() {
		opts = append(opts, app.WithProgress(progress.NewBar(os.Stderr)))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := a.Builder.Build(ctx, a.BuildRequest())
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %d chunks from %d pages of %d documents into %s (%s, %v)\n",
		report.ChunksIndexed, report.PagesProcessed, report.DocumentsProcessed,
		report.OutDir, report.StoreKind, report.Duration.Round(time.Millisecond))
	return nil
}
