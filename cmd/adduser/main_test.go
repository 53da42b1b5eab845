package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"finsight/internal/auth"
	"finsight/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreatesUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-user", "alice", "-password", "supersecret", "-db", dbPath}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "User alice created successfully")

	db, err := storage.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	user, err := db.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("supersecret", user.PasswordHash))
}

func TestRunPromptsForPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-user", "bob", "-db", dbPath}, strings.NewReader("piped-password\n"), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Password: ")
	assert.Contains(t, stdout.String(), "User bob created successfully")

	db, err := storage.NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	user, err := db.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("piped-password", user.PasswordHash))
}

func TestRunMissingUsername(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{}, strings.NewReader(""), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags")
}

func TestRunEmptyPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-user", "carol", "-db", dbPath}, strings.NewReader("   \n"), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestRunDuplicateUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-user", "dave", "-password", "supersecret", "-db", dbPath}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)

	err = run([]string{"-user", "dave", "-password", "supersecret", "-db", dbPath}, strings.NewReader(""), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
