// Command strfile builds the .dat index for a fortune text file, in
// the manner of strfile(8).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gofortune/internal/datfile"
	"gofortune/internal/logging"
	"gofortune/internal/strfile"
)

var (
	delimiter  string
	randomize  bool
	order      bool
	silent     bool
	allowEmpty bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "strfile INPUT [OUTPUT]",
	Short: "Build fortune .dat index files",
	Long: `strfile scans a fortune text file for delimiter-separated records and
writes the binary offset index the fortune binary reads. OUTPUT
defaults to INPUT.dat.`,
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&delimiter, "delimiter", "c", "%", "record separator character")
	flags.BoolVarP(&randomize, "random", "r", false, "randomize the order of the offset table")
	flags.BoolVarP(&order, "order", "o", false, "sort the offset table by record content")
	flags.BoolVarP(&silent, "silent", "s", false, "suppress the summary report")
	flags.BoolVar(&allowEmpty, "allow-empty", false, "index zero-length records")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.MarkFlagsMutuallyExclusive("random", "order")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "strfile: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single byte, got %q", delimiter)
	}

	input := args[0]
	output := datfile.DatPath(input)
	if len(args) == 2 {
		output = args[1]
	}

	text, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}

	dat, stats, err := strfile.Build(text, strfile.Options{
		Delim:      delimiter[0],
		Randomize:  randomize,
		Order:      order,
		AllowEmpty: allowEmpty,
	})
	if err != nil {
		return err
	}
	if err := dat.WriteFile(output); err != nil {
		return err
	}

	if !silent {
		fmt.Printf("\"%s\" created\n%d strings\nlongest string: %d bytes\nshortest string: %d bytes\n",
			output, stats.Records, stats.Longest, stats.Shortest)
	}
	return nil
}
