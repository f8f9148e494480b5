package kafka

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConsumer() *Consumer {
	return &Consumer{
		logger:    ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
		batchSize: 10,
	}
}

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("buffers parsable records with their messages", func(t *testing.T) {
		c := testConsumer()

		c.accept(ctx, kafka.Message{Offset: 10, Value: []byte(`{"stable_id":"SKU-1"}`)})
		c.accept(ctx, kafka.Message{Offset: 11, Value: []byte(`{"stable_id":"SKU-2"}`)})

		require.Len(t, c.pending, 2)
		require.Len(t, c.messages, 2)
		assert.Equal(t, "SKU-1", c.pending[0].StableID)
	})

	// The consumer has a nil reader here, so any commit attempt would panic.
	// Unparsable messages must ride along with the batch instead: committing
	// them on receipt would advance the group offset past every earlier
	// message still waiting to be ingested.
	t.Run("holds unparsable offsets with the batch instead of committing", func(t *testing.T) {
		c := testConsumer()

		c.accept(ctx, kafka.Message{Offset: 10, Value: []byte(`{"stable_id":"SKU-1"}`)})
		c.accept(ctx, kafka.Message{Offset: 11, Value: []byte(`not json`)})
		c.accept(ctx, kafka.Message{Offset: 12, Value: []byte(`{"stable_id":"SKU-2"}`)})

		require.Len(t, c.pending, 2)
		require.Len(t, c.messages, 3)
		assert.Equal(t, int64(11), c.messages[1].Offset)
	})
}
