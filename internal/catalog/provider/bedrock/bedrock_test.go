package bedrock

import (
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

func TestNewSkipsRegionsWithoutCredentials(t *testing.T) {
	p := New([]string{"us-east-1", "us-west-2"}, map[string]Credentials{
		"us-east-1": {AccessKeyID: "AKIA...", SecretAccessKey: "secret"},
		"us-west-2": {},
	})

	assert.Equal(t, "bedrock", p.Gateway())
	assert.Equal(t, "bedrock", p.Slug())
	_, hasEast := p.clients["us-east-1"]
	_, hasWest := p.clients["us-west-2"]
	assert.True(t, hasEast)
	assert.False(t, hasWest)
}

func TestToConverseMessagesSkipsSystemAndMapsRoles(t *testing.T) {
	req := domain.InternalChatRequest{Messages: []domain.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}}

	msgs := toConverseMessages(req)
	require.Len(t, msgs, 2)
	assert.Equal(t, brtypes.ConversationRoleUser, msgs[0].Role)
	assert.Equal(t, brtypes.ConversationRoleAssistant, msgs[1].Role)

	text0, ok := msgs[0].Content[0].(*brtypes.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "hello", text0.Value)
}

func TestSystemBlocksExtractsFirstSystemMessage(t *testing.T) {
	req := domain.InternalChatRequest{Messages: []domain.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	}}

	blocks := systemBlocks(req)
	require.Len(t, blocks, 1)
	text, ok := blocks[0].(*brtypes.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "be terse", text.Value)
}

func TestSystemBlocksNilWhenNoSystemMessage(t *testing.T) {
	req := domain.InternalChatRequest{Messages: []domain.Message{{Role: "user", Content: "hello"}}}
	assert.Nil(t, systemBlocks(req))
}

func TestErrNoRegionMessage(t *testing.T) {
	assert.Equal(t, "no usable bedrock region configured", errNoRegion{}.Error())
}
