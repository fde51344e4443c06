package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docurag-go/internal/app"
	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/infrastructure/progress"
)

var (
	queryJSON   bool
	queryStream bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer one question from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	queryCmd.Flags().BoolVar(&queryStream, "stream", false, "print the answer as it is generated")
	rootCmd.AddCommand(queryCmd)
}

type queryOutput struct {
	Answer  string         `json:"answer"`
	Query   string         `json:"retrieval_query"`
	Sources []sourceOutput `json:"sources"`
}

type sourceOutput struct {
	FileName   string  `json:"file_name"`
	PageNumber int     `json:"page_number,omitempty"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

func toQueryOutput(a *entities.Answer) queryOutput {
	out := queryOutput{Answer: a.Text, Query: a.RetrievalQuery, Sources: make([]sourceOutput, len(a.Sources))}
	for i, s := range a.Sources {
		out.Sources[i] = sourceOutput{FileName: s.FileName, PageNumber: s.PageNumber, Excerpt: s.Excerpt, Score: s.Score}
	}
	return out
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.Manager.Load(ctx); err != nil {
		if errors.Is(err, entities.ErrIndexNotFound) {
			return fmt.Errorf("%w at %s: run 'docurag build-index' first", err, cfg.Index.Path)
		}
		return err
	}

	req := entities.QueryRequest{Question: strings.Join(args, " ")}
	if queryStream && !queryJSON {
		return streamAnswer(ctx, cmd, a, req)
	}

	stop := progress.StartSpinner(progress.Enabled() && !queryJSON, "Thinking")
	answer, err := a.Chain.Query(ctx, req)
	stop()
	if err != nil {
		return err
	}

	if queryJSON {
		data, err := json.MarshalIndent(toQueryOutput(answer), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(answer.Text)
	printSources(cmd, answer.Sources)
	return nil
}

func streamAnswer(ctx context.Context, cmd *cobra.Command, a *app.App, req entities.QueryRequest) error {
	stream, err := a.Chain.QueryStream(ctx, req)
	if err != nil {
		return err
	}
	for token := range stream.Tokens {
		if token.Error != nil {
			cmd.Println()
			return token.Error
		}
		cmd.Print(token.Content)
	}
	cmd.Println()
	printSources(cmd, stream.Sources)
	return nil
}

func printSources(cmd *cobra.Command, sources []entities.Source) {
	if len(sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, src := range sources {
		if src.PageNumber > 0 {
			cmd.Printf("  [%d] %s, page %d (score %.3f)\n", i+1, src.FileName, src.PageNumber, src.Score)
		} else {
			cmd.Printf("  [%d] %s (score %.3f)\n", i+1, src.FileName, src.Score)
		}
	}
}
