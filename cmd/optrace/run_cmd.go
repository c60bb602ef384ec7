package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/optrace/recorder"
	"github.com/deepnoodle-ai/optrace/tracelog"
	"github.com/deepnoodle-ai/optrace/vm"
)

var runCmd = &cobra.Command{
	Use:   "run <program>",
	Short: "Execute an instrumented program and emit its trace log",
	Long: `Run parses a program, executes it on the host machine with a recorder
attached, and emits the trace log for later analysis. The log goes to stdout
unless --log names a file; program output moves to stderr whenever the log
occupies stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runHandler,
}

func init() {
	runCmd.Flags().String("log", "", "Write the trace log to this file (default stdout)")
	rootCmd.AddCommand(runCmd)
}

func runHandler(cmd *cobra.Command, args []string) error {
	processGlobalFlags()
	logger := newLogger()

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cannot read program: %w", err)
	}
	prog, err := vm.Parse(string(src))
	if err != nil {
		return err
	}

	logPath, err := cmd.Flags().GetString("log")
	if err != nil {
		return err
	}
	var logOut io.Writer = os.Stdout
	var progOut io.Writer = os.Stderr
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return fmt.Errorf("cannot create log: %w", err)
		}
		defer f.Close()
		logOut = f
		progOut = os.Stdout
	}

	w := tracelog.NewWriter(logOut)
	rec := recorder.New(recorder.WithSink(w))
	m := vm.New(rec, vm.WithOutput(progOut))

	if err := rec.StartRun(); err != nil {
		return err
	}
	if err := m.Run(prog); err != nil {
		return err
	}
	if err := rec.EndRun(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}

	logger.Debug().
		Str("run_id", rec.RunID().String()).
		Int64("instructions", m.Executed()).
		Msg("run complete")

	if cond := rec.Conditions(); cond != (recorder.Conditions{}) {
		logger.Warn().
			Int64("invalid_opcode", cond.InvalidOpcode).
			Int64("unmatched_stop", cond.UnmatchedStop).
			Int64("reentrant_start", cond.ReentrantStart).
			Msg("recording conditions observed")
	}
	return nil
}
