package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}

func TestSimulatePlaysEveryRound(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := executeCLI(t, "simulate", "--config", dir, "--players", "3", "--rounds", "2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "round 1: request 1 winner player-")
	assert.Contains(t, stdout, "round 2: request 2 winner player-")
	assert.Equal(t, 2, strings.Count(stdout, "proof verified"))
	assert.Contains(t, stdout, "prize 0.03 ether")
	assert.Contains(t, stdout, "subscription 1: 2 requests, 2.5 ether left")
}

func TestSimulateUsesConfiguredFee(t *testing.T) {
	dir := t.TempDir()
	yaml := "lottery:\n  entrance_fee: \"1.5\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	stdout, _, err := executeCLI(t, "simulate", "--config", dir, "--players", "2", "--rounds", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "prize 3 ether")
}

func TestSimulateRejectsZeroRounds(t *testing.T) {
	_, _, err := executeCLI(t, "simulate", "--config", t.TempDir(), "--rounds", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--players and --rounds must be at least 1")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  driver: postgres\n"), 0o600))

	_, _, err := executeCLI(t, "serve", "--config", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}
