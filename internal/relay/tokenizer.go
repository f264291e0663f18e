package relay

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/domain"
)

// Estimator counts request tokens for the §4.7 pre-flight check with a
// real BPE encoding (grounded on the teacher's tokenizer usage pattern in
// relay/billing): o200k_base for gpt-4o/o1/o200k model names, cl100k_base
// for every other model. It falls back to the char/4 heuristic spec.md
// §4.10 step 8 specifies for the post-hoc streaming estimate only when
// tiktoken-go cannot load that encoding.
type Estimator struct {
	mu    sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

// NewEstimator builds an Estimator with a lazy per-encoding cache.
func NewEstimator() *Estimator {
	return &Estimator{encs: make(map[string]*tiktoken.Tiktoken)}
}

func (e *Estimator) encodingFor(model string) *tiktoken.Tiktoken {
	encodingName := "cl100k_base"
	switch {
	case strings.Contains(model, "gpt-4o") || strings.Contains(model, "o1") || strings.Contains(model, "o200k"):
		encodingName = "o200k_base"
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.encs[encodingName]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil
	}
	e.encs[encodingName] = enc
	return enc
}

// CountMessages estimates the prompt token count for messages, using the
// tiktoken encoding chosen for model when it loads, else the char/4
// heuristic.
func (e *Estimator) CountMessages(model string, messages []domain.Message) int64 {
	enc := e.encodingFor(model)
	if enc == nil {
		return charHeuristic(messages)
	}

	var total int64
	for _, m := range messages {
		total += 4 // per-message role/delimiter overhead
		if s, ok := m.Content.(string); ok {
			total += int64(len(enc.Encode(s, nil, nil)))
		}
		total += int64(len(enc.Encode(m.Role, nil, nil)))
	}
	return total + 3
}

func charHeuristic(messages []domain.Message) int64 {
	var chars int
	for _, m := range messages {
		if s, ok := m.Content.(string); ok {
			chars += len(s)
		}
	}
	return max1(int64(chars) / 4)
}

// EstimateFromChars implements spec.md §4.10 step 8: when a streaming
// provider never reported usage, estimate prompt and completion tokens
// separately as max(1, chars/4).
func EstimateFromChars(promptChars, completionChars int) (promptTokens, completionTokens int64) {
	return max1(int64(promptChars) / 4), max1(int64(completionChars) / 4)
}

func max1(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}
