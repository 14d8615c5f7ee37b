package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
)

// WriteFile writes a report as indented JSON.
func WriteFile(path string, rep *evaluation.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// WriteSummary renders the aggregate metrics as a plain-text table,
// metrics sorted by name.
func WriteSummary(w io.Writer, rep *evaluation.Report) error {
	fmt.Fprintf(w, "run %s  backend=%s  status=%s\n", rep.RunID, rep.Backend, rep.Status)
	fmt.Fprintf(w, "queries: %d  processed: %d  scored: %d  failed: %d\n",
		rep.QueryCount, rep.Processed, len(rep.Scores), len(rep.Failures))

	names := make([]string, 0, len(rep.Metrics))
	for name := range rep.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := rep.Metrics[name]
		if st.SkippedCount > 0 {
			fmt.Fprintf(w, "  %-14s %.4f  (n=%d, skipped=%d)\n", name, st.Mean, st.Count, st.SkippedCount)
			continue
		}
		fmt.Fprintf(w, "  %-14s %.4f  (n=%d)\n", name, st.Mean, st.Count)
	}

	return nil
}
