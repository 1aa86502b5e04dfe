package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/utils"
)

var (
	ingJSON        bool
	ingOutputPath  string
	ingProfileRows int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Show the column headers and profile the wizard would extract from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		opt := ingest.DefaultOptions()
		if cfg != nil && cfg.ProfileRows != 0 {
			opt.ProfileRows = cfg.ProfileRows
		}
		if cmd.Flags().Changed("profile-rows") {
			opt.ProfileRows = ingProfileRows
		}
		up, err := ingest.Ingest(filepath.Base(path), f, opt)
		if err != nil {
			return err
		}

		var out []byte
		if ingJSON {
			if out, err = utils.PrettyJSON(up); err != nil {
				return err
			}
		} else {
			out = []byte(renderUpload(up))
		}
		if ingOutputPath != "" {
			if err := utils.SafeWriteFile(ingOutputPath, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote ingest report to %s\n", ingOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func renderUpload(up *ingest.Upload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", up.FileName)
	fmt.Fprintf(&b, "Format: %s\n", up.Format)
	if up.HeadersDeferred() {
		b.WriteString("Headers: resolved by the analysis service for this format\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Headers (%d): %s\n", len(up.Headers), strings.Join(up.Headers, ", "))
	var skipped []string
	for _, c := range up.Cells {
		if !c.Valid {
			skipped = append(skipped, fmt.Sprintf("#%d %q", c.Index+1, c.Raw))
		}
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "Skipped header cells: %s\n", strings.Join(skipped, ", "))
	}
	if len(up.Profile) == 0 {
		return b.String()
	}
	b.WriteString("\n| column | kind | non-empty | missing | unique | examples |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, p := range up.Profile {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %s |\n",
			p.Name, p.Kind, p.NonEmpty, p.Missing, p.Unique, strings.Join(p.Examples, "; "))
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingJSON, "json", false, "print the report as JSON")
	ingestCmd.Flags().StringVarP(&ingOutputPath, "output", "o", "", "optional path to write the report")
	ingestCmd.Flags().IntVar(&ingProfileRows, "profile-rows", 500, "data rows sampled for profiling (negative disables)")
}
