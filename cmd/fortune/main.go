// Command fortune prints a random epigram from indexed fortune
// corpora, reproducing the classic fortune(6) interface over the
// gofortune catalog and selection engine.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gofortune/internal/catalog"
	"gofortune/internal/config"
	"gofortune/internal/datfile"
	"gofortune/internal/engine"
	"gofortune/internal/logging"
	"gofortune/internal/randsrc"
)

const version = "1.0.0"

// Output pacing for -w, matching fortune-mod's reading-time model.
const (
	minWaitSeconds = 6
	charsPerSecond = 20
)

var (
	allowAny    bool
	offensive   bool
	equalProb   bool
	listFiles   bool
	longOnly    bool
	shortOnly   bool
	length      int
	pattern     string
	ignoreCase  bool
	wait        bool
	showSource  bool
	noRecode    bool
	showVersion bool
	verbose     bool
	configPath  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fortune [[N%] SOURCE]...",
	Short: "Print a random, hopefully interesting, adage",
	Long: `fortune selects one quotation from indexed corpora of short texts.

Sources are text files of %-separated records with a .dat sidecar
index (built automatically when missing or stale). A source may be a
file, a directory of files, or the word "all"; a numeric prefix like
"30% funny" fixes that source's selection probability.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVarP(&allowAny, "all", "a", false, "choose from all sources, including offensive ones")
	flags.BoolVarP(&offensive, "offensive", "o", false, "choose only from offensive sources")
	flags.BoolVarP(&equalProb, "equal", "e", false, "give every source equal selection probability")
	flags.BoolVarP(&listFiles, "files", "f", false, "list sources and their probabilities instead of printing")
	flags.BoolVarP(&longOnly, "long", "l", false, "print only long fortunes")
	flags.BoolVarP(&shortOnly, "short", "s", false, "print only short fortunes")
	flags.IntVarP(&length, "length", "n", config.DefaultLengthThreshold, "long/short boundary in bytes")
	flags.StringVarP(&pattern, "match", "m", "", "print every fortune matching the regex")
	flags.BoolVarP(&ignoreCase, "ignore-case", "i", false, "make -m matching case-insensitive")
	flags.BoolVarP(&wait, "wait", "w", false, "pause after printing, scaled to fortune length")
	flags.BoolVarP(&showSource, "show-source", "c", false, "show the source file of the fortune")
	flags.BoolVarP(&noRecode, "no-recode", "u", false, "skip locale recoding (accepted for compatibility)")
	flags.BoolVarP(&showVersion, "version", "v", false, "print the version and exit")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flags.StringVar(&configPath, "config", config.DefaultPath(), "config file location")
	rootCmd.MarkFlagsMutuallyExclusive("long", "short")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, engine.ErrNoMatch) {
			fmt.Fprintf(os.Stderr, "fortune: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("fortune %s\n", version)
		return nil
	}
	if noRecode {
		logger.Warn("-u requested; locale recoding is not implemented")
	}
	if ignoreCase && pattern == "" {
		return errors.New("-i requires -m <pattern>")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	threshold := length
	if !cmd.Flags().Changed("length") {
		threshold = cfg.LengthThreshold
	}

	specs, err := catalog.ParseSpecs(args)
	if err != nil {
		return err
	}
	discovered, err := catalog.Discover(specs, catalog.DiscoverOptions{
		AllowAny:      allowAny,
		OffensiveOnly: offensive,
		SearchPath:    cfg.SearchPath,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	cat, err := catalog.Load(discovered, catalog.LoadOptions{
		Filter: lengthFilter(threshold),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if listFiles {
		return printProbabilities(os.Stderr, specs, cat)
	}
	if pattern != "" {
		return printMatches(cat)
	}

	rngOpts, err := randsrc.OptionsFromEnv()
	if err != nil {
		return err
	}
	selection, err := engine.SelectOne(cat, engine.Request{EqualProb: equalProb}, randsrc.New(rngOpts))
	if err != nil {
		return err
	}

	if showSource {
		fmt.Printf("(%s)\n%%\n", absolutePath(selection.SourcePath))
	}
	printRecord(os.Stdout, selection.Text)
	logger.Debug("fortune emitted",
		zap.String("source", selection.SourcePath),
		zap.Int("index", selection.Index))

	if wait {
		time.Sleep(time.Duration(waitSeconds(selection.Text)) * time.Second)
	}
	return nil
}

func lengthFilter(threshold int) datfile.LengthFilter {
	switch {
	case shortOnly:
		return datfile.LengthFilter{Mode: datfile.FilterShort, Threshold: threshold}
	case longOnly:
		return datfile.LengthFilter{Mode: datfile.FilterLong, Threshold: threshold}
	default:
		return datfile.LengthFilter{}
	}
}

// printProbabilities writes the -f listing to stderr. A single
// directory argument lists the directory total first, then each file's
// share relative to the directory.
func printProbabilities(w io.Writer, specs []catalog.Spec, cat *catalog.Catalog) error {
	probs, err := engine.ListProbabilities(cat, equalProb)
	if err != nil {
		return err
	}

	if len(specs) == 1 && isDir(specs[0].Path) {
		total := 0.0
		for _, p := range probs {
			total += p.Percent
		}
		fmt.Fprintf(w, "%.2f%% %s\n", total, absolutePath(specs[0].Path))
		for _, p := range probs {
			rel := 0.0
			if total > 0 {
				rel = p.Percent / total * 100
			}
			fmt.Fprintf(w, "    %.2f%% %s\n", rel, filepath.Base(p.Path))
		}
		return nil
	}

	for _, p := range probs {
		fmt.Fprintf(w, "%.2f%% %s\n", p.Percent, absolutePath(p.Path))
	}
	return nil
}

// printMatches prints every -m match to stdout separated by % lines,
// announcing each contributing source once on stderr. Zero matches is
// a quiet non-zero exit, like the original.
func printMatches(cat *catalog.Catalog) error {
	matches, err := engine.EnumerateMatches(cat, engine.Request{Pattern: pattern, IgnoreCase: ignoreCase})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return engine.ErrNoMatch
	}

	announced := map[string]bool{}
	for _, m := range matches {
		if !announced[m.SourcePath] {
			announced[m.SourcePath] = true
			fmt.Fprintln(os.Stderr, m.SourcePath)
		}
		printRecord(os.Stdout, m.Text)
		fmt.Println("%")
	}
	return nil
}

func printRecord(w io.Writer, text string) {
	io.WriteString(w, text)
	if len(text) == 0 || text[len(text)-1] != '\n' {
		io.WriteString(w, "\n")
	}
}

// waitSeconds scales the -w pause to the fortune's length, with the
// floor fortune-mod uses.
func waitSeconds(text string) int {
	runes := len([]rune(text))
	secs := (runes + charsPerSecond - 1) / charsPerSecond
	if secs < minWaitSeconds {
		secs = minWaitSeconds
	}
	return secs
}

func absolutePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
