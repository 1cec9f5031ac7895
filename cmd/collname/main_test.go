package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_PrintsCollections(t *testing.T) {
	out, _, err := runCLI(t, "Objective", "person", "KEYRESULT")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"SCHEMA", "COLLECTION", "SECTION", "REGISTERED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"Objective", "objectives", "okr", "true"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"person", "people", "-", "false"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"KeyResult", "keyresults", "okr", "true"}, strings.Fields(lines[3]))
}

func TestRun_AllAsJSON(t *testing.T) {
	out, _, err := runCLI(t, "--all", "--json")
	require.NoError(t, err)

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    []struct {
			Schema     string `json:"schema"`
			Collection string `json:"collection"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "ok", resp.Message)
	require.Len(t, resp.Data, 12)
	assert.Equal(t, "Organization", resp.Data[0].Schema)
	assert.Equal(t, "organizations", resp.Data[0].Collection)
}

func TestRun_PluralOverride(t *testing.T) {
	out, _, err := runCLI(t, "--plural-override", "task=todo_items", "Task")
	require.NoError(t, err)
	assert.Contains(t, out, "todo_items")
}

func TestRun_Resolve(t *testing.T) {
	out, _, err := runCLI(t, "--resolve", "keyresults", "boxes")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"KeyResult", "keyresults", "okr", "true"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"box", "boxes", "-", "false"}, strings.Fields(lines[2]))
}

func TestRun_Errors(t *testing.T) {
	_, stderr, err := runCLI(t)
	require.Error(t, err)
	assert.Contains(t, stderr, "usage: collname")

	_, _, err = runCLI(t, "   ")
	require.Error(t, err)

	_, _, err = runCLI(t, "--resolve", "")
	require.Error(t, err)

	_, _, err = runCLI(t, "--bogus")
	require.Error(t, err)
}
