package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// maxMessageSize bounds a single JSON-RPC line read from the peer.
const maxMessageSize = 16 * 1024 * 1024

// Session is the JSON-RPC 2.0 request/response layer over one bidirectional
// channel. Requests carry monotonically increasing IDs; a single reader
// goroutine routes responses to waiting callers by ID, so out-of-order
// responses are matched correctly. Multiple calls may be outstanding at
// once.
//
// Construct with NewSession, register handlers, then call Start.
type Session struct {
	w       io.Writer
	r       io.Reader
	writeMu sync.Mutex

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *rpcMessage
	closed  bool
	closing bool

	onNotify func(method string, params json.RawMessage)
	onLost   func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a Session over the given writer/reader pair. In
// production these are a subprocess's stdin and stdout; tests use io.Pipe.
func NewSession(w io.Writer, r io.Reader) *Session {
	return &Session{
		w:       w,
		r:       r,
		pending: make(map[int64]chan *rpcMessage),
		done:    make(chan struct{}),
	}
}

// OnNotification registers a handler for peer-initiated notifications.
// Must be called before Start.
func (s *Session) OnNotification(fn func(method string, params json.RawMessage)) {
	s.onNotify = fn
}

// OnLost registers a handler invoked once if the channel fails while the
// session is open. It is not invoked for a deliberate Close. Must be
// called before Start.
func (s *Session) OnLost(fn func(error)) {
	s.onLost = fn
}

// Start launches the reader goroutine. Call exactly once.
func (s *Session) Start() {
	go s.readLoop()
}

// Call sends a request and blocks until the matching response arrives, the
// context expires, or the session closes. A context expiry abandons only
// this call; the session stays usable and a late response is discarded.
func (s *Session) Call(ctx context.Context, method string, params, result any) error {
	id := s.nextID.Add(1)
	ch := make(chan *rpcMessage, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosing
	}
	s.pending[id] = ch
	s.mu.Unlock()

	req := rpcRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
	if err := s.write(req); err != nil {
		s.drop(id)
		return fmt.Errorf("%w: writing %s: %v", ErrTransport, method, err)
	}

	select {
	case <-ctx.Done():
		s.drop(id)
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return ErrClosing
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("%w: decoding %s result: %v", ErrProtocol, method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification (no response expected).
func (s *Session) Notify(_ context.Context, method string, params any) error {
	req := rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params}
	if err := s.write(req); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrTransport, method, err)
	}
	return nil
}

// Close shuts the session down. In-flight calls fail with ErrClosing.
// Safe to call multiple times and from any state.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.failPending()
		if c, ok := s.w.(io.Closer); ok {
			_ = c.Close()
		}
		close(s.done)
	})
	return nil
}

// Done is closed when the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// drop abandons a pending call (timeout or cancellation).
func (s *Session) drop(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// failPending marks the session closed and wakes every waiting caller.
func (s *Session) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) readLoop() {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			// Non-JSON noise on the channel is skipped, not fatal.
			continue
		}
		s.handle(&msg)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	s.mu.Lock()
	deliberate := s.closing
	s.mu.Unlock()

	s.failPending()
	if !deliberate && s.onLost != nil {
		s.onLost(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}
}

func (s *Session) handle(msg *rpcMessage) {
	if msg.isResponse() {
		s.mu.Lock()
		ch, ok := s.pending[*msg.ID]
		if ok {
			delete(s.pending, *msg.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg
		}
		return
	}

	if msg.Method == "" {
		return
	}

	// Peer-initiated request: answer ping, reject anything else. The
	// reader must never block on these.
	if msg.ID != nil {
		reply := rpcReply{JSONRPC: jsonrpcVersion, ID: *msg.ID}
		if msg.Method == methodPing {
			reply.Result = struct{}{}
		} else {
			reply.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found: " + msg.Method}
		}
		_ = s.write(reply)
		return
	}

	if s.onNotify != nil {
		s.onNotify(msg.Method, msg.Params)
	}
}
