package mcphost

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestResolveOptionsDefaults(t *testing.T) {
	o := resolveOptions(nil)

	assert.EqualValues(t, DefaultModel, o.model)
	assert.Equal(t, DefaultMaxTokens, o.maxTokens)
	assert.Equal(t, DefaultMaxToolRounds, o.maxToolRounds)
	assert.Equal(t, DefaultCallTimeout, o.callTimeout)
	assert.Equal(t, DefaultStreamBufferSize, o.streamBufferSize)
	assert.NotNil(t, o.logger)
	assert.True(t, o.maxBudget.IsZero())
}

func TestResolveOptionsOverrides(t *testing.T) {
	o := resolveOptions([]Option{
		WithModel("claude-3-5-haiku-20241022"),
		WithMaxTokens(4096),
		WithMaxToolRounds(2),
		WithSystemPrompt("Be terse."),
		WithCallTimeout(5 * time.Second),
		WithMaxBudget(decimal.NewFromFloat(0.5)),
		WithStreamBufferSize(8),
	})

	assert.EqualValues(t, "claude-3-5-haiku-20241022", o.model)
	assert.Equal(t, 4096, o.maxTokens)
	assert.Equal(t, 2, o.maxToolRounds)
	assert.Equal(t, "Be terse.", o.systemPrompt)
	assert.Equal(t, 5*time.Second, o.callTimeout)
	assert.Equal(t, 8, o.streamBufferSize)
	assert.True(t, o.maxBudget.Equal(decimal.NewFromFloat(0.5)))
}

func TestGenerateIDFormat(t *testing.T) {
	id := generateID(prefixConversation)
	assert.Regexp(t, `^conv_\d{8}T\d{6}_[0-9a-f]{16}$`, id)
	assert.NotEqual(t, id, generateID(prefixConversation))
}
