package cli

import (
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docurag-go/internal/adapters/pdfgen"
)

var sampleOut string

var sampleCmd = &cobra.Command{
	Use:   "sample-data",
	Short: "Write a small sample PDF corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		paths, err := pdfgen.WriteCorpus(sampleOut, pdfgen.SampleCorpus())
		if err != nil {
			return err
		}
		for _, p := range paths {
			cmd.Printf("wrote %s\n", p)
		}
		return nil
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleOut, "out", "data/dev", "output directory")
	rootCmd.AddCommand(sampleCmd)
}
