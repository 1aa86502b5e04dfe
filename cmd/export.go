package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/stagewise/internal/results"
	"github.com/KaramelBytes/stagewise/internal/utils"
)

var (
	expOutDir string
	expFamily string
)

var exportCmd = &cobra.Command{
	Use:   "export <results.json>",
	Short: "Normalize an analysis response and write its CSV downloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read results: %w", err)
		}
		res, err := results.NormalizeJSON(expFamily, body)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s\n", w)
		}

		written := 0
		for _, name := range []string{results.TopicsFile, results.ClusterPointsFile} {
			text, err := results.Artifact(&res, name)
			if errors.Is(err, results.ErrDownloadUnsupported) {
				return fmt.Errorf("%s results have no download layout", expFamily)
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Skipping %s: %v\n", name, err)
				continue
			}
			path := filepath.Join(expOutDir, name)
			if err := utils.SafeWriteFile(path, []byte(text)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			written++
		}
		if written == 0 {
			return errors.New("nothing to export: no topics or cluster points in results")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&expOutDir, "out", ".", "directory to write CSV files into")
	exportCmd.Flags().StringVar(&expFamily, "type", "clustering", "analysis type the response belongs to")
}
