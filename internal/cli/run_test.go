package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/testutil"
)

func TestRunWithTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	buf := &bytes.Buffer{}
	opts := &RootOptions{services: serviceOptions{taskRunner: testutil.NewRecordingRunner(nil)}}
	cmd := newRootCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--db", dbPath})

	// Run command with timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		// Context cancellation is a graceful shutdown.
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("command did not respect context timeout")
	}

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database should be created")

	output := buf.String()
	assert.Contains(t, output, "Engine started.")
	assert.Contains(t, output, "Press Ctrl-C to stop.")
}

func TestRunInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "bad timezone",
			config:  "timezone: Mars/Olympus\n",
			wantErr: "invalid timezone",
		},
		{
			name:    "brokers missing",
			config:  "kafka:\n  evaluations_topic: evaluations\n",
			wantErr: "kafka.brokers cannot be empty",
		},
		{
			name:    "bad log level",
			config:  "log_level: loud\n",
			wantErr: "log_level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "alepiz-events.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.config), 0644))

			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"run", "--config", configPath, "--db", filepath.Join(tmpDir, "test.db")})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "failed to load config")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunBrokenRulesDir(t *testing.T) {
	tmpDir := t.TempDir()
	rulesDir := filepath.Join(tmpDir, "rules")
	require.NoError(t, os.MkdirAll(rulesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "bad.cue"), []byte("package rules\n\ncounter: \"17\": {importance: \"high\"}\n"), 0644))

	configPath := filepath.Join(tmpDir, "alepiz-events.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("rules_dir: "+rulesDir+"\n"), 0644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--config", configPath, "--db", filepath.Join(tmpDir, "test.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "load counter rules")
}

func TestRunHelp(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"run", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "kafka.evaluations_topic")
	assert.Contains(t, buf.String(), "redis.task_stream")
}
