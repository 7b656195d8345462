package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"not-a-level", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, closer, err := New(Config{Level: tt.level})
			require.NoError(t, err)
			defer closer.Close()
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pyserini.log")
	log, closer, err := New(Config{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	log.Info().Str("event", "test").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"test"`)
}

func TestNew_BadFilePath(t *testing.T) {
	_, _, err := New(Config{File: filepath.Join(t.TempDir(), "no-dir", "x.log")})
	assert.Error(t, err)
}

func TestComponentLogger(t *testing.T) {
	log, closer, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	defer closer.Close()

	cl := ComponentLogger(log, "runner")
	assert.Equal(t, log.GetLevel(), cl.GetLevel())
}

func TestContextPlumbing(t *testing.T) {
	log, closer, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	defer closer.Close()

	ctx := WithContext(context.Background(), log)
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, log.GetLevel(), got.GetLevel())
}

func TestFromContext_NoLogger(t *testing.T) {
	// A bare context yields a usable disabled logger, never nil.
	got := FromContext(context.Background())
	require.NotNil(t, got)
	got.Info().Msg("must not panic")
}

func TestRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)

	ctx := ContextWithRunID(context.Background(), a)
	assert.Equal(t, a, RunIDFromContext(ctx))
	assert.Empty(t, RunIDFromContext(context.Background()))
}
