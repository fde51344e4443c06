package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docurag-go/internal/app"
	"github.com/0xcro3dile/docurag-go/internal/logger"
	"github.com/0xcro3dile/docurag-go/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your documents in the terminal",
	Long: `Opens an interactive chat. Each question is answered with the previous
turns as conversation history, so follow-ups like "tell me more" work.

Controls:
  Enter        - Ask
  PgUp/PgDown  - Scroll
  Ctrl+C, Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
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
		return fmt.Errorf("loading index from %s: %w", cfg.Index.Path, err)
	}

	// Log lines would tear the alt screen.
	logger.SetLevel(logger.LevelError)

	idx := a.Manager.Current()
	summary := fmt.Sprintf("%d chunks (%s index, %s)", idx.Len(), idx.Kind(), a.Embedder.ModelName())
	p := tea.NewProgram(tui.New(ctx, a.Chain, summary), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
