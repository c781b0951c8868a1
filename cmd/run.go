/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perelab/tabletran/internal/config"
	"github.com/perelab/tabletran/internal/langcheck"
	"github.com/perelab/tabletran/internal/llm"
	"github.com/perelab/tabletran/internal/processor"
	"github.com/perelab/tabletran/internal/store"
	"github.com/perelab/tabletran/internal/strategy"
	"github.com/perelab/tabletran/internal/table"
)

var (
	runInputFile  string
	runOutputFile string
	runMode       string
	runConfigFile string
	runGlossary   string
	runTarget     string

	runDBPath   string
	runNoStore  bool
	runResumeID string
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate or proofread a bilingual TSV table",
	Long: `Process a row table through an LLM strategy, batch by batch.

The input is a TSV file with ID / Source / Target / Comments columns
(common header spellings like "english", "chinese", "#" are recognised).
Rows with an existing Target are proofread; rows without one are
translated. Output is written incrementally, so an interrupted run
leaves a valid partial table and can be resumed.

Strategies:
  legal     per-row review against a generated Context/Insight/Logic
            brief, with mandatory glossary enforcement
  academic  dual-persona batch translation with a QA re-read and
            optional cross-row sentence merging
  video     subtitle localization with a generated style guide and a
            transcription audit of the source

Row-level failures do not abort the run: the row keeps its source, the
comments carry an error marker, and the exit code stays zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOutputFile == "" {
			runOutputFile = defaultOutputPath(runInputFile)
		}
		if runInputFile == runOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		cfg, err := config.Load(runConfigFile)
		if err != nil {
			return err
		}
		if runTarget != "" {
			cfg.TargetLang = runTarget
		}

		doc, err := table.Read(runInputFile)
		if err != nil {
			return err
		}
		if len(doc.Rows) == 0 {
			return fmt.Errorf("input table %s has no rows", runInputFile)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := llm.NewGemini(cfg.LLM)
		if err != nil {
			return err
		}

		checker := langcheck.New()
		stratCfg := cfg.StrategyConfig(runMode)
		batches := (len(doc.Rows) + stratCfg.BatchSize - 1) / stratCfg.BatchSize
		fmt.Fprintf(os.Stderr, "Input:    %s (%d rows, %d batches)\n", runInputFile, len(doc.Rows), batches)
		fmt.Fprintf(os.Stderr, "Output:   %s\n", runOutputFile)
		fmt.Fprintf(os.Stderr, "Strategy: %s, target language: %s\n", runMode, cfg.TargetLang)
		if iso, ok := checker.DetectISO(sampleSources(doc, 10)); ok {
			fmt.Fprintf(os.Stderr, "Detected source language: %s\n", iso)
		}

		var (
			db         *store.Store
			runID      string
			resumeRows map[string]store.RowRecord
			storeTerms map[string]string
		)
		if !runNoStore {
			db, err = store.New(runDBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			storeTerms, err = db.GlossaryTerms(ctx)
			if err != nil {
				return fmt.Errorf("failed to load stored glossary: %w", err)
			}

			if runResumeID != "" {
				prev, err := db.GetRun(ctx, runResumeID)
				if err != nil {
					return err
				}
				if prev.Strategy != runMode {
					return fmt.Errorf("run %s used strategy %q, not %q", prev.ID, prev.Strategy, runMode)
				}
				resumeRows, err = db.Rows(ctx, runResumeID)
				if err != nil {
					return fmt.Errorf("failed to load checkpoint rows: %w", err)
				}
				runID = runResumeID
				fmt.Fprintf(os.Stderr, "Resuming run %s (%d rows checkpointed)\n", runID, len(resumeRows))
			} else {
				runID, err = db.CreateRun(ctx, runInputFile, runOutputFile, runMode)
				if err != nil {
					return fmt.Errorf("failed to create run checkpoint: %w", err)
				}
			}
		}

		strat, err := strategy.New(runMode, strategy.Deps{
			Config:       cfg,
			LLM:          client,
			Checker:      checker,
			GlossaryPath: runGlossary,
			StoreTerms:   storeTerms,
		})
		if err != nil {
			return err
		}

		// Setup is atomic: any failure here aborts before the first batch.
		fmt.Fprintf(os.Stderr, "Running %s strategy setup...\n", strat.Name())
		if err := strat.Setup(ctx, doc); err != nil {
			return err
		}

		out, err := table.NewIncrementalWriter(runOutputFile, doc.Columns)
		if err != nil {
			return err
		}

		proc := processor.New(stratCfg, processor.Options{
			Store:  db,
			RunID:  runID,
			Resume: resumeRows,
			Quiet:  runQuiet,
		})
		summary, runErr := proc.Run(ctx, doc, strat, out)
		if closeErr := out.Close(); closeErr != nil && runErr == nil {
			runErr = closeErr
		}
		if runErr != nil {
			return runErr
		}

		printSummary(summary, runID)
		return nil
	},
}

// defaultOutputPath derives "<input>_processed.tsv" next to the input file.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_processed" + ext
}

// sampleSources joins up to n leading source cells for language detection.
func sampleSources(doc *table.Document, n int) string {
	var parts []string
	for _, r := range doc.Rows {
		if r.Source != "" {
			parts = append(parts, r.Source)
		}
		if len(parts) >= n {
			break
		}
	}
	return strings.Join(parts, " ")
}

func printSummary(s *processor.Summary, runID string) {
	fmt.Fprintf(os.Stderr, "\nDone in %s\n", s.Duration.Round(10*time.Millisecond))
	fmt.Fprintf(os.Stderr, "Rows:      %d (%d batches)\n", s.Rows, s.Batches)
	fmt.Fprintf(os.Stderr, "Succeeded: %d\n", s.Succeeded)
	if s.Resumed > 0 {
		fmt.Fprintf(os.Stderr, "Resumed:   %d\n", s.Resumed)
	}
	if s.Failed > 0 {
		fmt.Fprintf(os.Stderr, "Failed:    %d (see [[TRANSLATION ERROR]] comments)\n", s.Failed)
	}
	if s.Merged > 0 {
		fmt.Fprintf(os.Stderr, "Merged:    %d row pairs\n", s.Merged)
	}
	if s.Flagged > 0 {
		fmt.Fprintf(os.Stderr, "Flagged:   %d rows for review\n", s.Flagged)
	}
	if s.MergeErrs > 0 {
		fmt.Fprintf(os.Stderr, "Merge alignment errors: %d\n", s.MergeErrs)
	}
	if s.Canceled {
		if runID != "" {
			fmt.Fprintf(os.Stderr, "Interrupted. Resume with: tabletran run --resume %s\n", runID)
		} else {
			fmt.Fprintf(os.Stderr, "Interrupted. Partial output is valid.\n")
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInputFile, "input", "i", "", "Input TSV table (required)")
	runCmd.Flags().StringVarP(&runOutputFile, "output", "o", "", "Output TSV table (default <input>_processed.tsv)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "legal", "Strategy: legal, academic, or video")
	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "", "Path to YAML config file")
	runCmd.Flags().StringVarP(&runGlossary, "glossary", "g", "", "Path to a TSV glossary file")
	runCmd.Flags().StringVarP(&runTarget, "target", "t", "", "Target language code (overrides config)")

	runCmd.Flags().StringVar(&runDBPath, "db", "./data/tabletran.db", "Database path for checkpoints and glossary")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Disable checkpointing and the stored glossary")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "Resume an interrupted run by id")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress per-batch progress output")

	runCmd.MarkFlagRequired("input")
}
