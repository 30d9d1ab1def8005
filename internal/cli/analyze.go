package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/progress"
	"github.com/quorum-project/quorum/pkg/quorum"
)

// analyzeBatchSize bounds one AnalyzeBatch call in batch mode so progress
// can tick between chunks without giving up worker parallelism.
const analyzeBatchSize = 512

// maxRecordLineBytes bounds one JSONL input line.
const maxRecordLineBytes = 1 << 20

var (
	analyzeBatch       bool
	analyzeMinSeverity string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Evaluate log records against the installed knowledge stores",
	Long: `Evaluate normalized log records against the installed knowledge stores.

Input is JSON Lines, one record per line, read from file (or stdin when
omitted or '-'). Every record receives exactly one verdict; detectors whose
store has never been provisioned degrade into verdict warnings instead of
failing the record.

With --json each verdict is emitted as one JSON line in input order.
Otherwise a human summary line is printed per verdict and totals at the end.

Examples:
  quorum analyze records.jsonl            # Analyze a capture file
  tail -f ingest.jsonl | quorum analyze   # Stream from the ingest pipeline
  quorum analyze --batch records.jsonl    # Parallel evaluation, progress bar
  quorum analyze --min-severity high x.jsonl  # Only high and critical`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		minSev := model.Severity(analyzeMinSeverity)
		if !minSev.Valid() {
			fmtErr("invalid --min-severity %q (none, low, medium, high, critical)", analyzeMinSeverity)
			os.Exit(1)
		}

		in := os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				fmtErr("open input: %v", err)
				os.Exit(1)
			}
			defer f.Close()
			in = f
		}

		c := requireClient()
		defer c.Close()

		var counts severityCounts
		var err error
		if analyzeBatch {
			err = analyzeBatched(c, in, minSev, &counts)
		} else {
			err = analyzeStream(c, in, minSev, &counts)
		}
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		if !jsonOutput {
			fmt.Println(counts.summary())
		}
	},
}

// analyzeStream decodes and evaluates one record at a time, emitting each
// verdict as soon as it is computed. Suited to piped ingest.
func analyzeStream(c *quorum.Client, in io.Reader, minSev model.Severity, counts *severityCounts) error {
	ctx := context.Background()
	return forEachRecord(in, func(rec *model.LogRecord) error {
		v, err := c.Analyze(ctx, rec)
		if err != nil {
			return err
		}
		counts.add(v.Severity)
		return emitVerdict(v, minSev)
	})
}

// analyzeBatched reads all records up front and evaluates them in chunks,
// rendering progress between chunks. Output order matches input order.
func analyzeBatched(c *quorum.Client, in io.Reader, minSev model.Severity, counts *severityCounts) error {
	var recs []*model.LogRecord
	err := forEachRecord(in, func(rec *model.LogRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return err
	}

	term := progress.NewTerminal("Analyze", len(recs), progressEnabled())
	cb := term.Callback()

	ctx := context.Background()
	var verdicts []*model.Verdict
	for off := 0; off < len(recs); off += analyzeBatchSize {
		end := off + analyzeBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		vs, err := c.AnalyzeBatch(ctx, recs[off:end])
		if err != nil {
			return err
		}
		verdicts = append(verdicts, vs...)
		cb("Analyze", end, len(recs), "")
	}
	term.Done(fmt.Sprintf("Analyzed %d records", len(recs)))

	for _, v := range verdicts {
		counts.add(v.Severity)
		if err := emitVerdict(v, minSev); err != nil {
			return err
		}
	}
	return nil
}

// forEachRecord decodes JSONL records from in. Blank lines are skipped;
// a malformed line aborts with its line number.
func forEachRecord(in io.Reader, fn func(*model.LogRecord) error) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec model.LogRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("line %d: parse record: %w", lineNo, err)
		}
		if err := fn(&rec); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// emitVerdict writes one verdict, JSONL or a colored human line.
func emitVerdict(v *model.Verdict, minSev model.Severity) error {
	if v.Severity.Rank() < minSev.Rank() {
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(v)
	}

	var parts []string
	for _, f := range v.Findings {
		parts = append(parts, fmt.Sprintf("%s:%s(%.2f)", f.Detector, f.Name, f.Score))
	}
	line := fmt.Sprintf("%-8s  %s", color.Severity(string(v.Severity)), v.RecordID)
	if len(parts) > 0 {
		line += "  " + strings.Join(parts, ", ")
	}
	if len(v.Warnings) > 0 {
		line += "  " + color.Dim("[degraded: "+strings.Join(v.Warnings, "; ")+"]")
	}
	fmt.Println(line)
	return nil
}

// severityCounts tallies verdicts per severity for the closing summary.
type severityCounts struct {
	total    int
	critical int
	high     int
	medium   int
	low      int
	none     int
}

func (s *severityCounts) add(sev model.Severity) {
	s.total++
	switch sev {
	case model.SeverityCritical:
		s.critical++
	case model.SeverityHigh:
		s.high++
	case model.SeverityMedium:
		s.medium++
	case model.SeverityLow:
		s.low++
	default:
		s.none++
	}
}

func (s *severityCounts) summary() string {
	return fmt.Sprintf("Analyzed %d records: %s critical, %s high, %s medium, %s low, %s none",
		s.total,
		severityCount(s.critical, model.SeverityCritical),
		severityCount(s.high, model.SeverityHigh),
		severityCount(s.medium, model.SeverityMedium),
		severityCount(s.low, model.SeverityLow),
		severityCount(s.none, model.SeverityNone),
	)
}

// severityCount colorizes a non-zero tally with its severity color.
func severityCount(n int, sev model.Severity) string {
	if n == 0 {
		return color.Dim("0")
	}
	switch sev {
	case model.SeverityCritical, model.SeverityHigh:
		return color.Errorf("%d", n)
	case model.SeverityMedium:
		return color.Warningf("%d", n)
	case model.SeverityLow:
		return color.Infof("%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeBatch, "batch", false, "read all records first and evaluate in parallel")
	analyzeCmd.Flags().StringVar(&analyzeMinSeverity, "min-severity", "none", "suppress verdicts below this severity")
	rootCmd.AddCommand(analyzeCmd)
}
