// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/postpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes run reports to an output.
type Reporter interface {
	// Write renders a single run report.
	Write(report *schemas.RunReport) error
	// Close flushes and releases the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("json", "yaml" or "text") writing to
// outputPath, or to stdout when the path is empty or "stdout".
func New(format, outputPath string) (Reporter, error) {
	return newReporter(format, outputPath, os.Stdout)
}

func newReporter(format, outputPath string, stdout io.Writer) (Reporter, error) {
	var encode func(io.Writer, *schemas.RunReport) error
	switch strings.ToLower(format) {
	case "json":
		encode = encodeJSON
	case "yaml", "yml":
		encode = encodeYAML
	case "text":
		encode = encodeText
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{stdout}
	} else {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return &streamReporter{w: writer, encode: encode}, nil
}

type streamReporter struct {
	w      io.WriteCloser
	encode func(io.Writer, *schemas.RunReport) error
}

func (r *streamReporter) Write(report *schemas.RunReport) error {
	if report == nil {
		return fmt.Errorf("nil run report")
	}
	return r.encode(r.w, report)
}

func (r *streamReporter) Close() error { return r.w.Close() }

func encodeJSON(w io.Writer, report *schemas.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func encodeYAML(w io.Writer, report *schemas.RunReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// encodeText prints a table a person can scan after the run.
func encodeText(w io.Writer, report *schemas.RunReport) error {
	fmt.Fprintf(w, "run %s  platform=%s  document=%s\n", report.RunID, report.Platform, report.DocumentPath)
	fmt.Fprintf(w, "title: %s", report.Title)
	if !report.TitleFound {
		fmt.Fprint(w, " (no title marker)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tRESULT\tSTRATEGY\tVERIFIED\tWARNING")
	for _, o := range report.Outcomes {
		verified := "-"
		if o.VerifiedLength != nil {
			verified = fmt.Sprint(*o.VerifiedLength)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", o.Role, result(o), o.StrategyUsed, verified, o.Warning)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, d := range report.Diagnostics {
		if d.ScreenshotPath != "" {
			fmt.Fprintf(w, "screenshot (%s): %s\n", d.Label, d.ScreenshotPath)
		}
	}
	if report.FatalError != "" {
		fmt.Fprintf(w, "aborted (%s): %s\n", report.FatalKind, report.FatalError)
	}
	_, err := fmt.Fprintf(w, "elapsed: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	return err
}

func result(o schemas.FillOutcome) string {
	switch {
	case !o.Attempted:
		return "skipped"
	case o.Succeeded && o.Warning == "":
		return "ok"
	case o.Succeeded:
		return "warn"
	default:
		return "manual"
	}
}
