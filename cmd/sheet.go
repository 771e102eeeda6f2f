package cmd

import (
	"fmt"
	"io"
	"os"

	"musinotes/core/lyrics"

	"github.com/spf13/cobra"
)

var sheetCmd = &cobra.Command{
	Use:   "sheet [FILE]",
	Short: "Print a chord sheet as chord/lyric line pairs",
	Long:  `Read lyrics in inline ([G]word) or paired notation from FILE, or stdin, and print the aligned overlay.`,
	Args:  cobra.MaximumNArgs(1),
	// The sheet command needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		text, err := io.ReadAll(in)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# notation: %s\n", lyrics.Detect(string(text)))
		for _, line := range lyrics.Parse(string(text)) {
			if line.Chords != "" {
				fmt.Fprintln(out, line.Chords)
			}
			fmt.Fprintln(out, line.Lyrics)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sheetCmd)
}
