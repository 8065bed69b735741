package mcphost

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntk221/mcp-client-example/mcp"
)

// newCalcHost builds a host whose only server is in-process and whose
// model is a scripted mock.
func newCalcHost(t *testing.T, responses ...string) *Host {
	t.Helper()
	host, err := NewHost(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	srv := mcp.NewSDKServer("calc")
	mcp.AddTool(srv, "add", "Add two integers", func(ctx context.Context, in calcInput) (string, error) {
		return strconv.Itoa(in.A + in.B), nil
	})
	require.NoError(t, host.Manager().AddTransport(context.Background(), srv.Name(), srv))

	host.engine.streamer = newMockStreamer(responses...)
	return host
}

func TestHostSend(t *testing.T) {
	host := newCalcHost(t,
		toolUseResponse("toolu_1", "add", `{\"a\": 2, \"b\": 3}`),
		textResponse("The answer is 5."),
	)

	reply, err := host.Send(context.Background(), "what is 2+3?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 5.", reply)
}

func TestHostChatLoop(t *testing.T) {
	host := newCalcHost(t,
		toolUseResponse("toolu_1", "add", `{\"a\": 2, \"b\": 3}`),
		textResponse("The answer is 5."),
	)

	in := strings.NewReader("what is 2+3?\nquit\n")
	var out bytes.Buffer

	err := host.Chat(context.Background(), in, &out)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "[calling add with args")
	assert.Contains(t, output, "The answer is 5.")
}

func TestHostChatExitsOnEOF(t *testing.T) {
	host := newCalcHost(t)

	var out bytes.Buffer
	err := host.Chat(context.Background(), strings.NewReader(""), &out)
	require.NoError(t, err)
}

func TestHostChatSkipsBlankLines(t *testing.T) {
	host := newCalcHost(t, textResponse("Hi there."))

	in := strings.NewReader("\n   \nhello\nquit\n")
	var out bytes.Buffer
	require.NoError(t, host.Chat(context.Background(), in, &out))
	assert.Contains(t, out.String(), "Hi there.")
}

func TestHostRejectsInvalidSpecs(t *testing.T) {
	_, err := NewHost([]mcp.ServerConfig{
		{Name: "calc", Command: "./a"},
		{Name: "calc", Command: "./b"},
	})
	require.ErrorIs(t, err, mcp.ErrDuplicateServer)
}

func TestHostCloseIdempotent(t *testing.T) {
	host := newCalcHost(t)
	require.NoError(t, host.Close())
	require.NoError(t, host.Close())
}
