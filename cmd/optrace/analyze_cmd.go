package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/optrace/report"
	"github.com/deepnoodle-ai/optrace/stats"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [log-file]",
	Short: "Analyze a trace log and print Bayesian diagnostics",
	Long: `Analyze decodes a trace log (from a file, or stdin when no file is given)
and prints the diagnostic summary plus Bayesian estimates of per-opcode
slowness and error probabilities. Malformed lines are skipped and counted,
never fatal; a log with no usable events reports "no data" and still exits 0
unless --strict is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: analyzeHandler,
}

func init() {
	analyzeCmd.Flags().Duration("threshold", 10*time.Millisecond, "Absolute slowness threshold")
	analyzeCmd.Flags().Float64("mean-multiple", 0, "Derive the threshold as a multiple of the global mean (file input only)")
	analyzeCmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	analyzeCmd.Flags().Bool("strict", false, "Exit non-zero when no usable events are decoded")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeHandler(cmd *cobra.Command, args []string) error {
	processGlobalFlags()
	logger := newLogger()

	var path string
	if len(args) == 1 && args[0] != "-" {
		path = args[0]
	}

	thresholdFlag, err := cmd.Flags().GetDuration("threshold")
	if err != nil {
		return err
	}
	meanMultiple, err := cmd.Flags().GetFloat64("mean-multiple")
	if err != nil {
		return err
	}
	threshold := stats.AbsoluteThreshold(thresholdFlag)
	if meanMultiple > 0 {
		if path == "" {
			return errors.New("--mean-multiple requires a log file: stdin cannot be re-read for the pre-scan")
		}
		total, count, err := scanTotals(path)
		if err != nil {
			return &exitError{code: ExitSourceUnavailable, err: err}
		}
		threshold = stats.MeanMultiple(meanMultiple).Resolve(total, count)
		logger.Debug().
			Str("threshold", time.Duration(threshold).String()).
			Msg("resolved mean-derived slowness threshold")
	}

	var in io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return &exitError{code: ExitSourceUnavailable, err: fmt.Errorf("cannot read log: %w", err)}
		}
		defer f.Close()
		in = f
	}

	doc, warnings, err := analyzeReader(in, threshold)
	if err != nil {
		return &exitError{code: ExitSourceUnavailable, err: fmt.Errorf("cannot read log: %w", err)}
	}
	for _, warn := range warnings {
		logger.Debug().Msg(warn.Error())
	}
	if n := len(warnings); n > 0 {
		logger.Warn().Int("lines", n).Msg("malformed log lines skipped")
	}

	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	switch format {
	case "json":
		data, err := marshalDocument(doc)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "text":
		if err := report.Render(os.Stdout, doc, report.Options{Color: useColor(os.Stdout)}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	if doc.Events == 0 {
		strict, err := cmd.Flags().GetBool("strict")
		if err != nil {
			return err
		}
		if strict {
			return &exitError{code: ExitNoData, err: errors.New("no usable events decoded")}
		}
	}
	return nil
}

// analyzeReader folds a trace log into a report document in a single pass.
func analyzeReader(r io.Reader, threshold stats.AbsoluteThreshold) (*report.Document, []error, error) {
	agg := stats.NewAggregator(threshold)
	s := tracelog.NewScanner(r)
	for {
		rec, ok := s.Next()
		if !ok {
			break
		}
		agg.Fold(rec)
	}
	if err := s.Err(); err != nil {
		return nil, nil, err
	}
	return report.New(agg.Summary(), s.WarningCount()), s.Warnings(), nil
}

// scanTotals pre-scans a log file for the global duration totals needed to
// resolve a mean-derived threshold.
func scanTotals(path string) (time.Duration, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot read log: %w", err)
	}
	defer f.Close()

	s := tracelog.NewScanner(f)
	var total time.Duration
	var count int64
	for {
		rec, ok := s.Next()
		if !ok {
			break
		}
		if rec.Kind == tracelog.KindEvent {
			total += rec.Event.Elapsed
			count++
		}
	}
	return total, count, s.Err()
}

func marshalDocument(doc *report.Document) ([]byte, error) {
	if !useColor(os.Stdout) {
		return json.MarshalIndent(doc, "", "  ")
	}
	return prettyjson.Marshal(doc)
}
