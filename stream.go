package mcphost

// TurnStream is an iterator over events emitted during one user turn.
// Usage:
//
//	stream := host.Stream(ctx, "prompt")
//	for stream.Next() {
//	    event := stream.Current()
//	    // handle event
//	}
//	if err := stream.Err(); err != nil {
//	    // handle error
//	}
type TurnStream struct {
	events  chan Event
	current Event
	result  *TurnCompleteEvent
	done    bool
}

func newTurnStream(buffer int) *TurnStream {
	return &TurnStream{events: make(chan Event, buffer)}
}

// Next advances to the next event. Returns false when the turn is over.
func (s *TurnStream) Next() bool {
	if s.done {
		return false
	}
	event, ok := <-s.events
	if !ok {
		s.done = true
		return false
	}
	s.current = event
	if tc, isComplete := event.(*TurnCompleteEvent); isComplete {
		s.result = tc
	}
	return true
}

// Current returns the most recent event returned by Next.
func (s *TurnStream) Current() Event {
	return s.current
}

// Err returns the turn's terminal error, if any. Valid once the stream
// is exhausted.
func (s *TurnStream) Err() error {
	if s.result == nil {
		return nil
	}
	return s.result.Err
}

// Result returns the turn's completion event, or nil if the stream has
// not reached it yet.
func (s *TurnStream) Result() *TurnCompleteEvent {
	return s.result
}
