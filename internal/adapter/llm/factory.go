package llm

import (
	"log"
	"strings"
	"time"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewChatClient creates a chat client for the given mode.
// If mode is MOCK (any case), returns a MockClient; otherwise returns a real Client.
func NewChatClient(mode, baseURL, apiKey string, timeout time.Duration) ChatClient {
	if strings.EqualFold(mode, ModeMock) {
		log.Println("GOGO_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
