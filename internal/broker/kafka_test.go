package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var fastRetry = backoff{initial: time.Millisecond, max: 4 * time.Millisecond}

func TestDeliverRetriesUntilHandlerSucceeds(t *testing.T) {
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("database unavailable")
		}
		return nil
	}

	err := deliver(context.Background(), zap.NewNop(), kafka.Message{Offset: 7}, handler, fastRetry)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDeliverSkipsMalformedMessages(t *testing.T) {
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		return fmt.Errorf("%w: base event: unexpected end of JSON input", ErrMalformedEvent)
	}

	err := deliver(context.Background(), zap.NewNop(), kafka.Message{}, handler, fastRetry)

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDeliverStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("database unavailable")
	}

	err := deliver(ctx, zap.NewNop(), kafka.Message{}, handler, fastRetry)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls, "an unhandled message is left uncommitted for redelivery")
}
