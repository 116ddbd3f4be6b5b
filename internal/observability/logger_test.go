package observability_test

import (
	"path/filepath"
	"testing"

	"github.com/avelin/chatter/internal/observability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	log, err := observability.NewLogger(observability.Options{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log, err = observability.NewLogger(observability.Options{Level: "not-a-level"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log, err = observability.NewLogger(observability.Options{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewLogger_FileSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "chatter.log")

	log, err := observability.NewLogger(observability.Options{Level: "info", File: file})
	require.NoError(t, err)

	log.Info().Msg("hello")
	matches, err := filepath.Glob(file + ".*")
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestDefaultLogFile(t *testing.T) {
	path := observability.DefaultLogFile("chatter")
	assert.Contains(t, path, "chatter")
	assert.Equal(t, "chatter.log", filepath.Base(path))
}
