package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
)

var separator = strings.Repeat("=", 50)

// Render prints the end-of-run report: counts, then either the failed targets
// or a success line
func (s *Summary) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "\n%s\nSummary: %d succeeded, %d failed\n", separator, s.Succeeded, s.Failed); err != nil {
		return err
	}

	failures := s.Failures()
	if len(failures) == 0 {
		msg := "All files updated successfully!"
		if s.DryRun {
			msg = "Dry run complete, no files were written."
		}
		_, err := fmt.Fprintln(w, msg)
		return err
	}

	if _, err := fmt.Fprintln(w, "\nFailed updates:"); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Target", "Kind", "Error"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, o := range failures {
		table.Append([]string{o.Target, o.Kind().String(), o.Message()})
	}

	table.Render()
	return nil
}

// Result is the machine-readable form of a Summary
type Result struct {
	RunID      string         `json:"run_id"`
	DryRun     bool           `json:"dry_run"`
	Targets    []ResultTarget `json:"targets"`
	Summary    ResultSummary  `json:"summary"`
	DurationMS int64          `json:"duration_ms"`
}

// ResultTarget is the outcome of one target in a Result
type ResultTarget struct {
	Local     string `json:"local"`
	Remote    string `json:"remote"`
	Kind      string `json:"kind"` // "file" or "dir"
	Success   bool   `json:"success"`
	Files     int    `json:"files"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResultSummary holds the target counts of a Result
type ResultSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result converts the summary for JSON output
func (s *Summary) Result() Result {
	r := Result{
		RunID:      s.RunID,
		DryRun:     s.DryRun,
		Targets:    make([]ResultTarget, 0, len(s.Outcomes)),
		Summary:    ResultSummary{Succeeded: s.Succeeded, Failed: s.Failed},
		DurationMS: s.Duration.Milliseconds(),
	}
	for _, o := range s.Outcomes {
		t := ResultTarget{
			Local:   o.Target,
			Remote:  o.Remote,
			Kind:    o.TargetKind(),
			Success: o.Success,
			Files:   o.Files,
		}
		if !o.Success {
			t.ErrorKind = o.Kind().String()
			t.Error = o.Message()
		}
		r.Targets = append(r.Targets, t)
	}
	return r
}

// WriteJSON writes the result to path
func (s *Summary) WriteJSON(fs afero.Fs, path string) error {
	data, err := json.MarshalIndent(s.Result(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
