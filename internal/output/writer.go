package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Report is the envelope every written report shares.
type Report struct {
	Kind        string    `json:"kind"`
	ClientID    string    `json:"clientId"`
	GeneratedAt time.Time `json:"generatedAt"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Data        any       `json:"data"`
}

// WriteOptions configures where a report is written
type WriteOptions struct {
	FilePath  string // Output path (empty = stdout)
	Overwrite bool   // Replace an existing file
}

// WriteReport serializes a report to JSON with 2-space indentation
func WriteReport(report *Report, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if report.Kind == "" {
		return fmt.Errorf("report kind is required")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode %s report as JSON: %w", report.Kind, err)
	}
	return nil
}

// WriteReportToFile writes a report to file or stdout based on options.
// Without Overwrite an existing file is left untouched and an error returned.
func WriteReportToFile(report *Report, opts WriteOptions) (err error) {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	if opts.FilePath == "" {
		return WriteReport(report, os.Stdout)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(opts.FilePath, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("output file %s already exists (use overwrite to replace it): %w", opts.FilePath, err)
		}
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteReport(report, f); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", opts.FilePath, err)
	}
	return nil
}

// LoadReport reads a previously written report. Data is decoded into data,
// which should be a pointer to the report's concrete type.
func LoadReport(filePath string, data any) (*Report, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		// Unwrapped so callers can check os.IsNotExist
		return nil, err
	}

	var envelope struct {
		Report
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode report JSON: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(envelope.Data, data); err != nil {
			return nil, fmt.Errorf("failed to decode %s report data: %w", envelope.Kind, err)
		}
	}

	report := envelope.Report
	report.Data = data
	return &report, nil
}
