package mcphost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnStreamIteration(t *testing.T) {
	stream := newTurnStream(4)
	go func() {
		stream.events <- &TextDeltaEvent{Delta: "a"}
		stream.events <- &TextDeltaEvent{Delta: "b"}
		stream.events <- &TurnCompleteEvent{FinalText: "ab"}
		close(stream.events)
	}()

	var deltas []string
	for stream.Next() {
		if ev, ok := stream.Current().(*TextDeltaEvent); ok {
			deltas = append(deltas, ev.Delta)
		}
	}

	assert.Equal(t, []string{"a", "b"}, deltas)
	require.NotNil(t, stream.Result())
	assert.Equal(t, "ab", stream.Result().FinalText)
	assert.NoError(t, stream.Err())

	// Exhausted streams stay exhausted.
	assert.False(t, stream.Next())
}

func TestTurnStreamErrFromCompletion(t *testing.T) {
	stream := newTurnStream(1)
	go func() {
		stream.events <- &TurnCompleteEvent{Err: ErrToolLoopExceeded}
		close(stream.events)
	}()

	for stream.Next() {
	}
	assert.ErrorIs(t, stream.Err(), ErrToolLoopExceeded)
}

func TestTurnStreamResultNilBeforeCompletion(t *testing.T) {
	stream := newTurnStream(1)
	assert.Nil(t, stream.Result())
	assert.NoError(t, stream.Err())
}
