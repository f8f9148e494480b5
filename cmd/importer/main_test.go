package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRecords(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "snapshot.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("reads records and skips blank lines", func(t *testing.T) {
		path := write(t, `{"stable_id":"SKU-1"}`+"\n\n"+`{"stable_id":"SKU-2"}`+"\n")

		records, malformed, err := readRecords(context.Background(), path, logger)

		require.NoError(t, err)
		assert.Zero(t, malformed)
		require.Len(t, records, 2)
		assert.Equal(t, "SKU-1", records[0].StableID)
		assert.Equal(t, "SKU-2", records[1].StableID)
	})

	t.Run("counts malformed lines and keeps going", func(t *testing.T) {
		path := write(t, `{"stable_id":"SKU-1"}`+"\n"+`{not json`+"\n"+`{"stable_id":"SKU-2"}`+"\n")

		records, malformed, err := readRecords(context.Background(), path, logger)

		require.NoError(t, err)
		assert.Equal(t, 1, malformed)
		require.Len(t, records, 2)
		assert.Equal(t, "SKU-2", records[1].StableID)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, _, err := readRecords(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"), logger)
		assert.Error(t, err)
	})
}
