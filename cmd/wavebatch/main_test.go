package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const oneAisle = "2 1 1\n1 0 3\n1 0 2\n1 0 10\n1 10\n"

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestSolveWritesSolution(t *testing.T) {
	inst := writeTemp(t, "w.txt", oneAisle)
	out := filepath.Join(t.TempDir(), "sol.txt")
	cp := filepath.Join(t.TempDir(), "best.txt")
	var stdout, stderr bytes.Buffer
	code := run([]string{"solve", inst, "-o", out, "--checkpoint", cp, "--seed", "3", "--log-json"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "2\n0\n1\n1\n0\n", string(got))
	best, err := os.ReadFile(cp)
	require.NoError(t, err)
	require.Equal(t, string(got), string(best))
}

func TestSolveNoFeasibleBatch(t *testing.T) {
	inst := writeTemp(t, "w.txt", "1 1 1\n1 0 3\n1 0 1\n1 5\n")
	out := filepath.Join(t.TempDir(), "sol.txt")
	var stdout, stderr bytes.Buffer
	code := run([]string{"solve", inst, "-o", out}, &stdout, &stderr)
	require.Equal(t, exitInfeasible, code)
	require.Contains(t, stderr.String(), "no feasible batch found")
	_, err := os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestSolveMalformedInstance(t *testing.T) {
	inst := writeTemp(t, "w.txt", "2 1\n")
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitFailure, run([]string{"solve", inst}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "malformed instance")
}

func TestValidateJSON(t *testing.T) {
	inst := writeTemp(t, "w.txt", oneAisle)
	sol := writeTemp(t, "sol.json", `{"selected_orders":[0,1],"visited_aisles":[0]}`)
	emit := filepath.Join(t.TempDir(), "sol.txt")
	var stdout, stderr bytes.Buffer
	code := run([]string{"validate", "-i", inst, "--solution", sol, "--json", "--emit", emit}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var rep map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	require.Equal(t, true, rep["feasible"])
	text, err := os.ReadFile(emit)
	require.NoError(t, err)
	require.Equal(t, "2\n0\n1\n1\n0\n", string(text))
}

func TestValidateOverCapacity(t *testing.T) {
	inst := writeTemp(t, "w.txt", "2 1 1\n1 0 3\n1 0 2\n1 0 4\n1 10\n")
	sol := writeTemp(t, "sol.txt", "2\n0\n1\n1\n0\n")
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitInfeasible, run([]string{"validate", "-i", inst, "--solution", sol}, &stdout, &stderr))
	require.Contains(t, stdout.String(), `"feasible": false`)
}

func TestBatchWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(oneAisle), 0o644))
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"batch", dir, "--out", out, "--algorithms", "grasp,pso", "--parallel", "2"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	for _, name := range []string{"algorithm_grasp_a.txt", "algorithm_pso_a.txt"} {
		_, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
	}
	require.Contains(t, stdout.String(), "INSTANCE")
}

func TestExplorePrintsStats(t *testing.T) {
	inst := writeTemp(t, "w.txt", oneAisle)
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"explore", inst, "--samples", "50"}, &stdout, &stderr))
	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	require.EqualValues(t, 50, got["samples"])
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitUsage, run([]string{"frobnicate"}, &stdout, &stderr))
	require.Equal(t, exitUsage, run(nil, &stdout, &stderr))
	require.Equal(t, exitOK, run([]string{"version"}, &stdout, &stderr))
}
