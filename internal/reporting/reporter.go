// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/waypoint/internal/flow"
)

// Report is the user-facing record of one run.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Target    string        `json:"target" yaml:"target"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Status    flow.Status   `json:"status" yaml:"status"`
	LastError string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Steps     int           `json:"steps" yaml:"steps"`
	Duration  string        `json:"duration" yaml:"duration"`
	State     flow.RunState `json:"state" yaml:"state"`
}

// NewReport builds the report for a finished run.
func NewReport(runID string, startedAt time.Time, res *flow.Result) *Report {
	return &Report{
		RunID:     runID,
		Target:    res.State.TargetName,
		StartedAt: startedAt.UTC(),
		Status:    res.Status,
		LastError: res.State.LastError,
		Steps:     res.Steps,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		State:     res.State,
	}
}

// Reporter defines the interface for writing run reports to an output.
type Reporter interface {
	// Write emits a single report.
	Write(report *Report) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "yaml", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer)
}

// NewWriter creates a reporter that takes ownership of w.
func NewWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return &jsonReporter{w: w}, nil
	case "yaml":
		return &yamlReporter{w: w}, nil
	case "text":
		return &textReporter{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// -- JSON --

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(report *Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	out = append(out, '\n')
	_, err = r.w.Write(out)
	return err
}

func (r *jsonReporter) Close() error { return r.w.Close() }

// -- YAML --

type yamlReporter struct {
	w io.WriteCloser
}

func (r *yamlReporter) Write(report *Report) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

func (r *yamlReporter) Close() error { return r.w.Close() }

// -- Text --

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(report *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", report.RunID, report.Target)
	fmt.Fprintf(&b, "  status:      %s\n", report.Status)
	fmt.Fprintf(&b, "  final url:   %s\n", report.State.CurrentURL)
	fmt.Fprintf(&b, "  login page:  %t (%d attempts)\n", report.State.LoginPageReached, loginAttempts(report.State))
	if report.State.LoginSucceeded != nil {
		fmt.Fprintf(&b, "  logged in:   %t\n", *report.State.LoginSucceeded)
	}
	fmt.Fprintf(&b, "  change email: %t\n", report.State.ChangeEmailSectionReached)
	fmt.Fprintf(&b, "  steps:       %d in %s\n", report.Steps, report.Duration)
	if report.LastError != "" {
		fmt.Fprintf(&b, "  last error:  %s\n", report.LastError)
	}
	if len(report.State.URLHistory) > 0 {
		b.WriteString("  history:\n")
		for i, u := range report.State.URLHistory {
			fmt.Fprintf(&b, "    %d. %s\n", i+1, u)
		}
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *textReporter) Close() error { return r.w.Close() }

func loginAttempts(st flow.RunState) int {
	if st.LoginSucceeded != nil && *st.LoginSucceeded {
		return st.LoginPageAttempts
	}
	return st.RetryCount
}
