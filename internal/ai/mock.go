package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/atiendo/backend/internal/utils"
)

// MockAssistant answers deterministically from the prompt hash and records calls.
type MockAssistant struct {
	Err error

	mu      sync.Mutex
	prompts []string
}

func (m *MockAssistant) Ask(ctx context.Context, prompt string, history []ChatMessage) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	intents := []string{"tracking", "facturacion", "reclamo", "cotizacion", "info", "otro"}
	h := utils.HashStringToUint64(prompt)
	return fmt.Sprintf(`{"intent":%q,"confidence":0.%d}`, intents[int(h%uint64(len(intents)))], 50+int(h%50)), nil
}

func (m *MockAssistant) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
