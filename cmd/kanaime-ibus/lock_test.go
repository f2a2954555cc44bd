//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "kanaime-ibus.lock")

	release, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	assert.ErrorIs(t, err, errAlreadyRunning)

	release()
	again, err := acquireLock(path)
	require.NoError(t, err)
	again()
}

func TestAcquireLockReplacesStalePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanaime-ibus.lock")
	require.NoError(t, os.WriteFile(path, []byte("4194304999\n"), 0600))

	release, err := acquireLock(path)
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
}
