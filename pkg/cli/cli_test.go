package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/crypto"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/testhelpers"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd("1.2.3")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// lineEnv points the configuration at two SQLite lines and a temp data dir.
func lineEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	line1 := testhelpers.NewSQLiteSource(t, "line1", testhelpers.SampleMeasurements("L1"))
	line2 := testhelpers.NewSQLiteSource(t, "line2", testhelpers.SampleMeasurements("L2"))

	sourcesFile := filepath.Join(dir, "databases.yaml")
	yaml := fmt.Sprintf("databases:\n  line1:\n    type: sqlite\n    path: %s\n  line2:\n    type: sqlite\n    path: %s\n", line1, line2)
	require.NoError(t, os.WriteFile(sourcesFile, []byte(yaml), 0o600))

	t.Setenv("LINEQA_SOURCES_FILE", sourcesFile)
	t.Setenv("LINEQA_PASSWORDS_FILE", filepath.Join(dir, "passwords.yaml"))
	t.Setenv("LINEQA_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LINEQA_METADATA_DB", filepath.Join(dir, "lineqa.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd("1.2.3")

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"analyze", "combine", "datasets", "extract", "fetch", "mcp", "search", "secrets", "serve", "sources", "version"} {
		assert.Contains(t, names, want)
	}
	assert.True(t, cmd.SilenceUsage)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("output"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lineqa 1.2.3")
}

func TestUnknownOutputFormat(t *testing.T) {
	lineEnv(t)
	_, err := runCLI(t, "sources", "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestSourcesCommand(t *testing.T) {
	lineEnv(t)

	out, err := runCLI(t, "sources", "-o", "json")
	require.NoError(t, err)

	var resp struct {
		Sources []struct {
			Name        string `json:"name"`
			Type        string `json:"type"`
			Credentials string `json:"credentials"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "line1", resp.Sources[0].Name)
	assert.Equal(t, "not_required", resp.Sources[0].Credentials)

	text, err := runCLI(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, text, "line2")
}

func TestFetchCommand_RequiresBound(t *testing.T) {
	lineEnv(t)
	_, err := runCLI(t, "fetch")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
}

func TestFetchCommand(t *testing.T) {
	lineEnv(t)

	out, err := runCLI(t, "fetch", "--filter", "Weight > 12", "-o", "json")
	require.NoError(t, err)

	var resp struct {
		TotalRows int              `json:"total_rows"`
		Rows      []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 4, resp.TotalRows) // 13 and 14 on both lines
	for _, r := range resp.Rows {
		assert.Greater(t, r["Weight"], 12.0)
	}
}

func TestCombineAnalyzeAndDatasets(t *testing.T) {
	lineEnv(t)

	out, err := runCLI(t, "combine", "--name", "march", "-o", "json")
	require.NoError(t, err)
	var combined struct {
		Dataset struct {
			Name              string   `json:"name"`
			Lines             []string `json:"lines"`
			InitialCount      int      `json:"total_records_initial"`
			FinalCount        int      `json:"total_records_final"`
			DuplicatesRemoved int      `json:"duplicates_removed"`
		} `json:"dataset"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &combined))
	assert.Equal(t, "march", combined.Dataset.Name)
	assert.Equal(t, 10, combined.Dataset.InitialCount)
	assert.Equal(t, 5, combined.Dataset.FinalCount)
	assert.Equal(t, 5, combined.Dataset.DuplicatesRemoved)

	out, err = runCLI(t, "analyze", "--dataset", "march", "--column", "Weight", "--usl", "13.5", "-o", "json")
	require.NoError(t, err)
	var report struct {
		Column     string `json:"column_analyzed"`
		Statistics struct {
			Count int     `json:"count"`
			Mean  float64 `json:"mean"`
		} `json:"statistics"`
		Quality struct {
			OutOfSpecHigh int `json:"out_of_spec_high"`
		} `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Weight", report.Column)
	assert.Equal(t, 5, report.Statistics.Count)
	assert.InDelta(t, 12.0, report.Statistics.Mean, 1e-9)
	assert.Equal(t, 1, report.Quality.OutOfSpecHigh)

	text, err := runCLI(t, "analyze", "--dataset", "march", "--column", "Weight")
	require.NoError(t, err)
	assert.Contains(t, text, "Statistics: Weight")

	out, err = runCLI(t, "datasets", "list", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "march"`)

	_, err = runCLI(t, "datasets", "delete", "march")
	require.NoError(t, err)

	_, err = runCLI(t, "datasets", "show", "march")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAnalyzeCommand_RequiresColumn(t *testing.T) {
	lineEnv(t)
	_, err := runCLI(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column")
}

func TestAnalyzeCommand_CSVFile(t *testing.T) {
	dir := lineEnv(t)
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("TraceCode,Weight\nA,1\nB,2\nC,3\n"), 0o600))

	out, err := runCLI(t, "analyze", "--file", path, "--column", "Weight", "-o", "json")
	require.NoError(t, err)
	var report struct {
		Statistics struct {
			Count  int     `json:"count"`
			Median float64 `json:"median"`
		} `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Statistics.Count)
	assert.InDelta(t, 2.0, report.Statistics.Median, 1e-9)
}

func TestSearchAndExtract(t *testing.T) {
	dir := lineEnv(t)

	out, err := runCLI(t, "search", "widget", "-o", "json")
	require.NoError(t, err)
	var found struct {
		ProductsFound int `json:"products_found"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, 2, found.ProductsFound)

	csvPath := filepath.Join(dir, "a.csv")
	text, err := runCLI(t, "extract", "Widget-A", "--column", "TraceCode", "--column", "Weight", "--out", csvPath)
	require.NoError(t, err)
	assert.Contains(t, text, csvPath)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NotEmpty(t, lines)
	header := strings.Split(lines[0], ",")
	assert.Contains(t, header, "TraceCode")
	assert.Contains(t, header, "Weight")
	assert.Contains(t, header, "production_line")
	assert.Greater(t, len(lines), 1)
}

func TestSecretsEncrypt(t *testing.T) {
	lineEnv(t)
	t.Setenv("LINEQA_CREDENTIALS_KEY", "test-key")

	out, err := runCLI(t, "secrets", "encrypt", "s3cret")
	require.NoError(t, err)
	sealed := strings.TrimSpace(out)
	assert.True(t, crypto.IsSealed(sealed))

	enc, err := crypto.NewCredentialEncryptor("test-key")
	require.NoError(t, err)
	plain, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestSecretsEncrypt_Stdin(t *testing.T) {
	lineEnv(t)
	t.Setenv("LINEQA_CREDENTIALS_KEY", "test-key")

	var out bytes.Buffer
	cmd := NewRootCmd("1.2.3")
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("from-stdin\n"))
	cmd.SetArgs([]string{"secrets", "encrypt"})
	require.NoError(t, cmd.Execute())
	assert.True(t, crypto.IsSealed(strings.TrimSpace(out.String())))
}

func TestSecretsEncrypt_NoKey(t *testing.T) {
	lineEnv(t)
	t.Setenv("LINEQA_CREDENTIALS_KEY", "")
	_, err := runCLI(t, "secrets", "encrypt", "x")
	assert.ErrorIs(t, err, errNoCredentialsKey)
}
