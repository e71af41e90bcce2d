package corpus

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/FocuswithJustin/stephanus/core/annotate"
	"github.com/FocuswithJustin/stephanus/core/errors"
)

// KindFailed marks a report line for a document that was not written.
const KindFailed annotate.Kind = "failed"

// ReportRecord is one line of the JSONL diagnostics report.
type ReportRecord struct {
	Document string `json:"document"`
	annotate.Diagnostic
}

// WriteReport writes one record per diagnostic, documents in name order,
// plus one failed record per failed document.
func WriteReport(path string, results []DocumentResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		for _, d := range r.Diagnostics {
			if err := enc.Encode(ReportRecord{Document: r.Name, Diagnostic: d}); err != nil {
				f.Close()
				return errors.NewIO("write", path, err)
			}
		}
		if r.Err != nil {
			rec := ReportRecord{Document: r.Name, Diagnostic: annotate.Diagnostic{Kind: KindFailed, Reason: r.Err.Error()}}
			if err := enc.Encode(rec); err != nil {
				f.Close()
				return errors.NewIO("write", path, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.NewIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close", path, err)
	}
	return nil
}

// ReadReport reads a report written by WriteReport.
func ReadReport(path string) ([]ReportRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()
	var records []ReportRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec ReportRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, &errors.ParseError{Format: "report", Path: path, Message: err.Error(), Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}
