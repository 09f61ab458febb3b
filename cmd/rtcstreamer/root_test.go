package main

import (
	"bytes"
	"context"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--long"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "version\tdev\ncommit\tnone\ndate\tunknown\n", out.String())
}

func TestRunRequiresHostURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RTCSTREAMER_HOST_URL", "")
	rootCmd.SetArgs([]string{"--mode", "recvonly"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "host_url")
}

func TestWaitForShutdownLogsReason(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	mainLog := logger.WithField("component", "main")

	hostDone := make(chan struct{})
	close(hostDone)
	waitForShutdown(context.Background(), hostDone, mainLog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waitForShutdown(ctx, make(chan struct{}), mainLog)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "host went away, shutting down", entries[0].Message)
	assert.Equal(t, "shutting down", entries[1].Message)
	for _, e := range entries {
		assert.Equal(t, "main", e.Data["component"])
	}
}
