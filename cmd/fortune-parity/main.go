// Command fortune-parity scores a fortune build against a reference
// oracle: both binaries run the same case set over the same corpus
// with matched deterministic-RNG environments, and each case passes
// only when exit status, stdout, and stderr agree byte for byte.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gofortune/internal/datfile"
	"gofortune/internal/logging"
	"gofortune/internal/randsrc"
)

var (
	oraclePath        string
	subjectPath       string
	strfilePath       string
	oracleStrfilePath string
	corpusDir         string
	jsonOut           string
	plain             bool
	verbose           bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fortune-parity",
	Short:         "Oracle-based parity harness for fortune",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&oraclePath, "oracle", "/usr/bin/fortune", "reference fortune binary")
	flags.StringVar(&subjectPath, "subject", "", "fortune binary under test (default: sibling of this binary)")
	flags.StringVar(&strfilePath, "strfile", "", "strfile binary for corpus indexing (default: sibling of the subject)")
	flags.StringVar(&oracleStrfilePath, "oracle-strfile", "/usr/bin/strfile", "reference strfile binary")
	flags.StringVar(&corpusDir, "corpus-dir", "tests/corpus", "directory holding the parity corpus")
	flags.StringVar(&jsonOut, "json-out", "", "also write the report as JSON to this path")
	flags.BoolVar(&plain, "plain", false, "print raw markdown instead of rendering it")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fortune-parity: %v\n", err)
		os.Exit(1)
	}
}

// testCase is one matched invocation of oracle and subject. Strfile
// cases run the two strfile binaries instead of the fortune binaries,
// each inside its own working directory so the summary lines print the
// same relative paths.
type testCase struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Args       []string `json:"args"`
	Seed       *uint64  `json:"seed,omitempty"`
	Strfile    bool     `json:"strfile,omitempty"`
	OracleDir  string   `json:"-"`
	SubjectDir string   `json:"-"`
}

type caseResult struct {
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Pass          bool     `json:"pass"`
	OracleStatus  int      `json:"oracle_status"`
	SubjectStatus int      `json:"subject_status"`
	Args          []string `json:"args"`
	DiffExcerpt   string   `json:"diff_excerpt,omitempty"`
}

type categoryScore struct {
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

type parityReport struct {
	RunID           string                   `json:"run_id"`
	Oracle          string                   `json:"oracle"`
	Subject         string                   `json:"subject"`
	TotalCases      int                      `json:"total_cases"`
	PassedCases     int                      `json:"passed_cases"`
	WeightedPercent float64                  `json:"weighted_percent"`
	CategoryScores  map[string]categoryScore `json:"category_scores"`
	Results         []caseResult             `json:"results"`
}

func categoryWeights() map[string]float64 {
	return map[string]float64{
		"cli_parse":           10,
		"file_discovery":      20,
		"dat_reading":         20,
		"selection_semantics": 25,
		"regex_mode":          15,
		"strfile_output":      10,
	}
}

func run(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	subject, err := resolveSubject()
	if err != nil {
		return err
	}
	strfileBin := strfilePath
	if strfileBin == "" {
		strfileBin = filepath.Join(filepath.Dir(subject), "strfile")
	}

	if err := ensureCorpus(corpusDir, strfileBin); err != nil {
		return err
	}
	oracleDir, subjectDir, err := setupStrfileSandboxes(corpusDir)
	if err != nil {
		return err
	}
	for _, bin := range []string{oraclePath, subject, oracleStrfilePath, strfileBin} {
		if info, serr := os.Stat(bin); serr != nil || info.IsDir() {
			return fmt.Errorf("binary %q does not exist", bin)
		}
	}

	cases := buildCases(corpusDir, oracleDir, subjectDir)
	results := make([]caseResult, len(cases))
	for i, tc := range cases {
		oracleBin, subjectBin := oraclePath, subject
		if tc.Strfile {
			oracleBin, subjectBin = oracleStrfilePath, strfileBin
		}
		res, err := runCase(oracleBin, subjectBin, tc)
		if err != nil {
			return fmt.Errorf("case %q: %w", tc.Name, err)
		}
		results[i] = res
	}

	report := buildReport(oraclePath, subject, results)
	if err := printReport(report); err != nil {
		return err
	}
	if jsonOut != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonOut, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", jsonOut, err)
		}
	}
	return nil
}

func resolveSubject() (string, error) {
	if subjectPath != "" {
		return subjectPath, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving subject path: %w", err)
	}
	return filepath.Join(filepath.Dir(self), "fortune"), nil
}

// ensureCorpus writes the default corpus when missing and indexes any
// unindexed file through the strfile binary, so both binaries read
// identical .dat sidecars.
func ensureCorpus(dir, strfileBin string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating corpus dir %s: %w", dir, err)
	}
	defaults := map[string][]byte{
		"alpha": []byte("Go keeps moving.\n%\nParsers should be strict.\n%\nLogs are your friend.\n"),
		"beta":  []byte("Small binaries, sharp tools.\n%\nParity first, modern internals.\n"),
	}
	for name, text := range defaults {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, text, 0o644); err != nil {
				return err
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".dat") || strings.HasSuffix(name, ".u8") {
			continue
		}
		path := filepath.Join(dir, name)
		dat := datfile.DatPath(path)
		if _, err := os.Stat(dat); err == nil {
			continue
		}
		logger.Debug("indexing corpus file", zap.String("path", path))
		out, err := exec.Command(strfileBin, "-s", path, dat).CombinedOutput()
		if err != nil {
			return fmt.Errorf("running %s on %s: %w (%s)", strfileBin, path, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

func seed(v uint64) *uint64 { return &v }

// setupStrfileSandboxes writes identical unindexed corpus copies into
// one working directory per strfile binary, so both print "gamma.dat"
// in their summaries without racing on one output file.
func setupStrfileSandboxes(dir string) (oracleDir, subjectDir string, err error) {
	text := []byte("zebra\n%\napple\n%\nmango\n")
	oracleDir = filepath.Join(dir, "strfile-oracle")
	subjectDir = filepath.Join(dir, "strfile-subject")
	for _, d := range []string{oracleDir, subjectDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", "", fmt.Errorf("creating strfile sandbox %s: %w", d, err)
		}
		if err := os.WriteFile(filepath.Join(d, "gamma"), text, 0o644); err != nil {
			return "", "", err
		}
	}
	return oracleDir, subjectDir, nil
}

func buildCases(dir, oracleStrfileDir, subjectStrfileDir string) []testCase {
	alpha := filepath.Join(dir, "alpha")
	beta := filepath.Join(dir, "beta")
	return []testCase{
		{Name: "list files", Category: "cli_parse", Args: []string{"-f", alpha, beta}},
		{Name: "directory discovery", Category: "file_discovery", Args: []string{"-f", dir}},
		{Name: "selection seed 0", Category: "selection_semantics", Args: []string{alpha, beta}, Seed: seed(0)},
		{Name: "selection equal seed 1", Category: "selection_semantics", Args: []string{"-e", alpha, beta, "-n", "120"}, Seed: seed(1)},
		{Name: "dat reading short mode", Category: "dat_reading", Args: []string{"-s", "-n", "24", alpha}, Seed: seed(2)},
		{Name: "regex mode", Category: "regex_mode", Args: []string{"-m", "Parity", beta}},
		{Name: "strfile creation summary", Category: "strfile_output", Args: []string{"gamma"},
			Strfile: true, OracleDir: oracleStrfileDir, SubjectDir: subjectStrfileDir},
	}
}

type commandOutput struct {
	status int
	stdout []byte
	stderr []byte
}

// runCase executes both binaries concurrently and compares outputs.
func runCase(oracle, subject string, tc testCase) (caseResult, error) {
	var oracleOut, subjectOut commandOutput
	var g errgroup.Group
	g.Go(func() error {
		var err error
		oracleOut, err = runSingle(oracle, tc, tc.OracleDir)
		return err
	})
	g.Go(func() error {
		var err error
		subjectOut, err = runSingle(subject, tc, tc.SubjectDir)
		return err
	})
	if err := g.Wait(); err != nil {
		return caseResult{}, err
	}

	pass := oracleOut.status == subjectOut.status &&
		string(oracleOut.stdout) == string(subjectOut.stdout) &&
		string(oracleOut.stderr) == string(subjectOut.stderr)

	res := caseResult{
		Name:          tc.Name,
		Category:      tc.Category,
		Pass:          pass,
		OracleStatus:  oracleOut.status,
		SubjectStatus: subjectOut.status,
		Args:          tc.Args,
	}
	if !pass {
		res.DiffExcerpt = fmt.Sprintf(
			"stdout oracle=%q subject=%q; stderr oracle=%q subject=%q",
			truncate(oracleOut.stdout, 80), truncate(subjectOut.stdout, 80),
			truncate(oracleOut.stderr, 80), truncate(subjectOut.stderr, 80))
	}
	return res, nil
}

func runSingle(binary string, tc testCase, workdir string) (commandOutput, error) {
	cmd := exec.Command(binary, tc.Args...)
	cmd.Dir = workdir
	cmd.Env = os.Environ()
	if tc.Seed != nil {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", randsrc.EnvHardCodedVals, *tc.Seed))
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	status := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		status = exitErr.ExitCode()
	} else if err != nil {
		return commandOutput{}, fmt.Errorf("running %s: %w", binary, err)
	}
	return commandOutput{status: status, stdout: []byte(stdout.String()), stderr: []byte(stderr.String())}, nil
}

func truncate(b []byte, max int) string {
	s := string(b)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func buildReport(oracle, subject string, results []caseResult) parityReport {
	weights := categoryWeights()
	grouped := map[string][]caseResult{}
	for _, res := range results {
		grouped[res.Category] = append(grouped[res.Category], res)
	}

	scores := map[string]categoryScore{}
	weighted := 0.0
	passed := 0
	for category, cases := range grouped {
		catPassed := 0
		for _, c := range cases {
			if c.Pass {
				catPassed++
			}
		}
		weight := weights[category]
		score := weight * float64(catPassed) / float64(len(cases))
		weighted += score
		scores[category] = categoryScore{
			Total:         len(cases),
			Passed:        catPassed,
			Weight:        weight,
			WeightedScore: score,
		}
	}
	for _, res := range results {
		if res.Pass {
			passed++
		}
	}

	return parityReport{
		RunID:           uuid.NewString(),
		Oracle:          oracle,
		Subject:         subject,
		TotalCases:      len(results),
		PassedCases:     passed,
		WeightedPercent: weighted,
		CategoryScores:  scores,
		Results:         results,
	}
}

func printReport(report parityReport) error {
	md := renderMarkdown(report)
	if plain {
		fmt.Print(md)
		return nil
	}
	rendered, err := glamour.Render(md, "auto")
	if err != nil {
		// Degrade to raw markdown when terminal rendering fails.
		fmt.Print(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func renderMarkdown(report parityReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# fortune parity report\n\n")
	fmt.Fprintf(&b, "- run: `%s`\n", report.RunID)
	fmt.Fprintf(&b, "- oracle: `%s`\n", report.Oracle)
	fmt.Fprintf(&b, "- subject: `%s`\n", report.Subject)
	fmt.Fprintf(&b, "- passed: %d/%d\n", report.PassedCases, report.TotalCases)
	fmt.Fprintf(&b, "- weighted parity: %.2f%%\n\n", report.WeightedPercent)

	fmt.Fprintf(&b, "## category scores\n\n")
	categories := make([]string, 0, len(report.CategoryScores))
	for name := range report.CategoryScores {
		categories = append(categories, name)
	}
	sort.Strings(categories)
	for _, name := range categories {
		score := report.CategoryScores[name]
		fmt.Fprintf(&b, "- %s: %d/%d (weight %.1f, score %.2f)\n",
			name, score.Passed, score.Total, score.Weight, score.WeightedScore)
	}

	fmt.Fprintf(&b, "\n## failures\n\n")
	failures := 0
	for _, res := range report.Results {
		if res.Pass {
			continue
		}
		failures++
		if failures > 10 {
			break
		}
		excerpt := res.DiffExcerpt
		if excerpt == "" {
			excerpt = "output mismatch"
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", res.Name, res.Category, excerpt)
	}
	if failures == 0 {
		fmt.Fprintf(&b, "- none\n")
	}
	return b.String()
}
