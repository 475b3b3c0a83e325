package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nfpwatch/internal/config"
	"nfpwatch/internal/platform"
	"nfpwatch/internal/store"
)

func TestOperatorSurfaceRegistered(t *testing.T) {
	for _, name := range []string{
		"add-target", "list-targets", "collect", "investigate", "run", "daemon",
	} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRunCommandTakesOneHandle(t *testing.T) {
	require.Error(t, runCmd.Args(runCmd, nil))
	require.Error(t, runCmd.Args(runCmd, []string{"a", "b"}))
	require.NoError(t, runCmd.Args(runCmd, []string{"somehandle"}))
}

func TestBuildDaemonWiresOnDemandPipeline(t *testing.T) {
	corpusPath := filepath.Join(t.TempDir(), "legal_provisions.yaml")
	require.NoError(t, os.WriteFile(corpusPath,
		[]byte("legal_context: Promotional claims must not mislead.\n"), 0o644))

	cfg = config.DefaultConfig()
	cfg.CorpusPath = corpusPath
	cfg.LLM.APIKey = "test-key"
	logger = zap.NewNop()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	defer st.Close()

	d, err := buildDaemon(context.Background(), st, platform.NopPacer{})
	require.NoError(t, err)
	require.NotNil(t, d)

	// The store is wired in as the target resolver: an untracked handle is
	// refused before any platform traffic.
	_, _, err = d.RunOnce(context.Background(), "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not tracked")
}

func TestBuildDaemonRequiresCorpus(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.CorpusPath = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.LLM.APIKey = "test-key"
	logger = zap.NewNop()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	defer st.Close()

	_, err = buildDaemon(context.Background(), st, platform.NopPacer{})
	require.Error(t, err)
}
