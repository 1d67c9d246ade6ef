// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/waypoint/internal/flow"
	"github.com/xkilldash9x/waypoint/internal/reporting"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleReport() *reporting.Report {
	ok := true
	res := &flow.Result{
		Status: flow.StatusSuccess,
		Steps:  11,
		State: flow.RunState{
			TargetName:                "Acme",
			CurrentURL:                "https://acme.test/settings",
			URLHistory:                []string{"https://acme.test/", "https://acme.test/account"},
			LoginPageReached:          true,
			ChangeEmailSectionReached: true,
			LoginSucceeded:            &ok,
			RetryCount:                1,
			LoginPageAttempts:         2,
			Status:                    flow.StatusSuccess,
		},
		Duration: 1500 * time.Millisecond,
	}
	return reporting.NewReport("run-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), res)
}

func TestJSONReporter(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("json", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "success", decoded["status"])
	assert.Equal(t, "1.5s", decoded["duration"])
	state := decoded["state"].(map[string]interface{})
	assert.Equal(t, []interface{}{"https://acme.test/", "https://acme.test/account"}, state["url_history"])
	assert.Equal(t, true, state["login_succeeded"])
}

func TestYAMLReporter(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("yaml", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))

	var decoded struct {
		RunID string `yaml:"run_id"`
		State struct {
			RetryCount int      `yaml:"retry_count"`
			History    []string `yaml:"url_history"`
		} `yaml:"state"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 1, decoded.State.RetryCount)
	assert.Len(t, decoded.State.History, 2)
}

func TestTextReporter(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("text", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Run run-1 (Acme)")
	assert.Contains(t, out, "login page:  true (2 attempts)")
	assert.Contains(t, out, "2. https://acme.test/account")
	assert.NotContains(t, out, "last error")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := reporting.New("json", path)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-1"`)
}

func TestNew_Stdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		r, err := reporting.New("text", path)
		require.NoError(t, err)
		assert.NoError(t, r.Close(), "stdout is never closed")
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.sarif")
	r, err := reporting.New("sarif", path)
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file is created for a rejected format")
}
