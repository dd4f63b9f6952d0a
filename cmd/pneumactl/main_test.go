package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/pneuma/internal/model"
)

// execute runs pneumactl with args and returns stdout. Flag variables are
// package globals, so they are reset to their defaults first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	estimateFlags.calls, estimateFlags.jsonOutput = 10, false
	personasFlags.file, personasFlags.limit = "", 0
	askFlags.prompt, askFlags.calls, askFlags.concurrency = "", 10, -1
	askFlags.personasFile, askFlags.jsonOutput = "", false
	ledgerFlags.databaseURL = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "OPENAI_API_KEY", "PNEUMA_OPENAI_BASE_URL", "PNEUMA_PERSONAS_FILE",
		"PNEUMA_MAX_CALLS", "PNEUMA_MAX_CONCURRENCY", "PNEUMA_INPUT_COST_PER_MILLION",
		"PNEUMA_OUTPUT_COST_PER_MILLION",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEstimate_JSON(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "q.txt", strings.Repeat("a", 400))

	out, err := execute(t, "estimate", path, "--calls", "10", "--json")
	require.NoError(t, err)

	var got model.CostEstimate
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 300, got.InputTokens)
	assert.Equal(t, 10, got.NumCalls)
	assert.NotEmpty(t, got.DisplayCost)
}

func TestEstimate_Errors(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "q.txt", "hello")

	_, err := execute(t, "estimate", path, "--calls", "0")
	assert.ErrorContains(t, err, "--calls must be between 1 and 1000")

	_, err = execute(t, "estimate", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	bin := writeFile(t, "blob.bin", "\x00\x01\x02\x03")
	_, err = execute(t, "estimate", bin)
	assert.Error(t, err)
}

func TestPersonas_FromFile(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "people.yaml", "personas:\n  - Ann, 30\n  - Bo, 41\n  - Cy, 19\n")

	out, err := execute(t, "personas", "--file", path, "--limit", "2")
	require.NoError(t, err)

	want := "   1  Ann, 30\n   2  Bo, 41\n2 of 3 personas\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("personas output mismatch (-want +got):\n%s", diff)
	}
}

func TestPersonas_Default(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "personas")
	require.NoError(t, err)
	assert.Contains(t, out, " personas\n")
}

func TestAsk_TalliesAnswers(t *testing.T) {
	isolateEnv(t)
	var calls atomic.Int64
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"No"}}]}`)
	}))
	defer openai.Close()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PNEUMA_OPENAI_BASE_URL", openai.URL)

	path := writeFile(t, "q.txt", "A new flavour of toothpaste.")
	out, err := execute(t, "ask", path, "--prompt", "Would you buy it?", "--calls", "4", "--concurrency", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Polling 4 personas...")
	assert.Equal(t, 4, strings.Count(out, " NO "))
	assert.Contains(t, out, "yes: 0  no: 4  error: 0")
	assert.EqualValues(t, 8, calls.Load())
}

func TestAsk_JSONLines(t *testing.T) {
	isolateEnv(t)
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"down","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer openai.Close()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PNEUMA_OPENAI_BASE_URL", openai.URL)

	path := writeFile(t, "q.txt", "hello")
	out, err := execute(t, "ask", path, "-p", "ok?", "-n", "3", "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	var types []string
	for _, line := range lines {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		types = append(types, ev.Type)
		if ev.Type == "result" {
			var r model.CallResult
			require.NoError(t, json.Unmarshal(ev.Data, &r))
			assert.Equal(t, model.StatusError, r.Status)
			assert.Equal(t, model.AnswerError, r.Answer)
		}
	}
	assert.Equal(t, []string{"start", "result", "result", "result", "complete"}, types)
}

func TestAsk_RequiresPrompt(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "q.txt", "hello")
	_, err := execute(t, "ask", path)
	assert.ErrorContains(t, err, "prompt")
}

func TestCreditAndBalance(t *testing.T) {
	isolateEnv(t)
	db := "sqlite://" + filepath.Join(t.TempDir(), "ledger.db")
	user := "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	out, err := execute(t, "balance", user, "--database-url", db)
	require.NoError(t, err)
	assert.Contains(t, out, "$0.0000 (no record)")

	out, err = execute(t, "credit", user, "2.5", "--database-url", db)
	require.NoError(t, err)
	assert.Contains(t, out, "balance $2.5000")

	t.Setenv("DATABASE_URL", db)
	out, err = execute(t, "balance", user)
	require.NoError(t, err)
	assert.Contains(t, out, user+"  $2.5000  updated ")
}

func TestCreditAndBalance_Errors(t *testing.T) {
	isolateEnv(t)
	db := "sqlite://" + filepath.Join(t.TempDir(), "ledger.db")

	_, err := execute(t, "balance", "not-a-uuid", "--database-url", db)
	assert.ErrorContains(t, err, "invalid user id")

	_, err = execute(t, "credit", "7c9e6679-7425-40de-944b-e07fc1f90ae7", "0", "--database-url", db)
	assert.ErrorContains(t, err, "positive")

	_, err = execute(t, "balance", "7c9e6679-7425-40de-944b-e07fc1f90ae7")
	assert.ErrorContains(t, err, "no ledger configured")
}
