package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

func TestEstimateFromCharsFloorsAtOne(t *testing.T) {
	prompt, completion := EstimateFromChars(0, 3)
	assert.EqualValues(t, 1, prompt)
	assert.EqualValues(t, 1, completion)
}

func TestEstimateFromCharsDividesByFour(t *testing.T) {
	prompt, completion := EstimateFromChars(400, 40)
	assert.EqualValues(t, 100, prompt)
	assert.EqualValues(t, 10, completion)
}

func TestCountMessagesNeverReturnsZeroForNonEmptyContent(t *testing.T) {
	e := NewEstimator()
	messages := []domain.Message{
		{Role: "system", Content: "you are a helpful assistant"},
		{Role: "user", Content: "hello there, how are you today?"},
	}

	count := e.CountMessages("gpt-4o", messages)
	assert.Positive(t, count)
}

func TestCountMessagesNonStringContentContributesNoCharCount(t *testing.T) {
	messages := []domain.Message{{Role: "user", Content: 12345}}
	assert.EqualValues(t, 1, charHeuristic(messages))
}

func TestCharHeuristicDividesTotalCharsByFour(t *testing.T) {
	messages := []domain.Message{
		{Role: "user", Content: "0123456789abcdef"}, // 16 chars
	}
	assert.EqualValues(t, 4, charHeuristic(messages))
}
