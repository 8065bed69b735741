package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer is the server side of a Session under test: it reads requests
// line by line and lets each test script the responses.
type fakePeer struct {
	t *testing.T

	// in is written by the peer and read by the session.
	in *io.PipeWriter
	// out is written by the session and read by the peer.
	out *bufio.Scanner
}

func newSessionPair(t *testing.T) (*Session, *fakePeer) {
	t.Helper()
	sessReader, peerWriter := io.Pipe()
	peerReader, sessWriter := io.Pipe()

	peer := &fakePeer{
		t:   t,
		in:  peerWriter,
		out: bufio.NewScanner(peerReader),
	}
	sess := NewSession(sessWriter, sessReader)

	t.Cleanup(func() {
		_ = sess.Close()
		_ = peerWriter.Close()
		_ = peerReader.Close()
	})
	return sess, peer
}

// recv reads and decodes the next request the session wrote.
func (p *fakePeer) recv() map[string]any {
	p.t.Helper()
	require.True(p.t, p.out.Scan(), "expected a request from the session")
	var msg map[string]any
	require.NoError(p.t, json.Unmarshal(p.out.Bytes(), &msg))
	return msg
}

// send writes a raw JSON line to the session.
func (p *fakePeer) send(line string) {
	p.t.Helper()
	_, err := p.in.Write([]byte(line + "\n"))
	require.NoError(p.t, err)
}

func (p *fakePeer) respond(id int64, result any) {
	p.t.Helper()
	data, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	require.NoError(p.t, err)
	p.send(string(data))
}

func TestSessionCallDecodesResult(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	go func() {
		req := peer.recv()
		assert.Equal(t, "tools/list", req["method"])
		peer.respond(int64(req["id"].(float64)), map[string]any{"tools": []any{}})
	}()

	var result listToolsResult
	err := sess.Call(context.Background(), methodListTools, nil, &result)
	require.NoError(t, err)
	assert.Empty(t, result.Tools)
}

func TestSessionOutOfOrderResponses(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	// The peer answers the two requests in reverse order; each caller must
	// still receive its own response.
	go func() {
		first := peer.recv()
		second := peer.recv()
		peer.respond(int64(second["id"].(float64)), map[string]any{"value": "second"})
		peer.respond(int64(first["id"].(float64)), map[string]any{"value": "first"})
	}()

	type valueResult struct {
		Value string `json:"value"`
	}

	var wg sync.WaitGroup
	var got [2]valueResult
	var errs [2]error
	for i, method := range []string{"first/op", "second/op"} {
		wg.Add(1)
		go func(i int, method string) {
			defer wg.Done()
			errs[i] = sess.Call(context.Background(), method, nil, &got[i])
		}(i, method)
		// Keep request order deterministic for the peer script.
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "first", got[0].Value)
	assert.Equal(t, "second", got[1].Value)
}

func TestSessionTimeoutLeavesSessionUsable(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	responses := make(chan int64, 1)
	go func() {
		// Never answer the first request; answer the one after it.
		peer.recv()
		req := peer.recv()
		id := int64(req["id"].(float64))
		peer.respond(id, map[string]any{})
		responses <- id
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sess.Call(ctx, "slow/op", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The session survives the abandoned call.
	err = sess.Call(context.Background(), methodPing, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), <-responses)
}

func TestSessionCloseFailsInflightCalls(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.Call(context.Background(), "never/answered", nil, nil)
	}()
	peer.recv() // wait until the request is in flight

	require.NoError(t, sess.Close())
	require.ErrorIs(t, <-errCh, ErrClosing)

	// Closed sessions reject new calls and a second Close is a no-op.
	require.ErrorIs(t, sess.Call(context.Background(), methodPing, nil, nil), ErrClosing)
	require.NoError(t, sess.Close())
}

func TestSessionDispatchesNotifications(t *testing.T) {
	sess, peer := newSessionPair(t)

	got := make(chan string, 1)
	sess.OnNotification(func(method string, params json.RawMessage) {
		got <- method
	})
	sess.Start()

	peer.send(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`)

	select {
	case method := <-got:
		assert.Equal(t, "notifications/tools/list_changed", method)
	case <-time.After(time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestSessionSkipsNonJSONNoise(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	go func() {
		req := peer.recv()
		peer.send("some stray log line from the server")
		peer.respond(int64(req["id"].(float64)), map[string]any{})
	}()

	err := sess.Call(context.Background(), methodPing, nil, nil)
	require.NoError(t, err)
}

func TestSessionAnswersPeerPing(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	peer.send(`{"jsonrpc":"2.0","id":99,"method":"ping"}`)

	reply := peer.recv()
	assert.Equal(t, float64(99), reply["id"])
	assert.NotContains(t, reply, "error")
}

func TestSessionRejectsUnknownPeerRequest(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	peer.send(`{"jsonrpc":"2.0","id":7,"method":"sampling/createMessage"}`)

	reply := peer.recv()
	assert.Equal(t, float64(7), reply["id"])
	errObj, ok := reply["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(codeMethodNotFound), errObj["code"])
}

func TestSessionReportsLossOnEOF(t *testing.T) {
	sess, peer := newSessionPair(t)

	lost := make(chan error, 1)
	sess.OnLost(func(err error) { lost <- err })
	sess.Start()

	require.NoError(t, peer.in.Close())

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("loss handler was not invoked")
	}

	// In-flight behavior after loss: new calls fail fast.
	require.ErrorIs(t, sess.Call(context.Background(), methodPing, nil, nil), ErrClosing)
}

func TestSessionNoLossCallbackOnDeliberateClose(t *testing.T) {
	sess, peer := newSessionPair(t)

	lost := make(chan error, 1)
	sess.OnLost(func(err error) { lost <- err })
	sess.Start()

	require.NoError(t, sess.Close())
	// Unblock the reader on the peer side as a closed subprocess would.
	require.NoError(t, peer.in.Close())

	select {
	case err := <-lost:
		t.Fatalf("unexpected loss callback: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionCallErrorFromPeer(t *testing.T) {
	sess, peer := newSessionPair(t)
	sess.Start()

	go func() {
		req := peer.recv()
		id := int64(req["id"].(float64))
		peer.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, id))
	}()

	err := sess.Call(context.Background(), "tools/bogus", nil, nil)
	var rpcErr *rpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)
}
