package prompts

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

var (
	openaiAPIKey  string
	openaiBaseURL string
)

// fallbackPrompts keeps prompt generation working when no API key is
// configured or the upstream call fails.
var fallbackPrompts = []string{
	"a cat stuck in a teapot",
	"a robot walking a snail",
	"the world's saddest birthday cake",
	"a dragon doing laundry",
	"an octopus playing the drums",
	"a penguin on a skateboard",
	"a haunted vending machine",
	"two ghosts sharing an umbrella",
	"a very suspicious cloud",
	"a dinosaur learning to ride a bike",
}

func Init() {
	openaiAPIKey = os.Getenv("OPENAI_API_KEY")
	openaiBaseURL = os.Getenv("OPENAI_BASE_URL")
	if openaiBaseURL == "" {
		openaiBaseURL = "https://api.openai.com" // Default value
	}
	if openaiAPIKey == "" {
		logrus.Warn("OPENAI_API_KEY environment variable not set. Prompt generation will use the built-in list.")
	}
}

type (
	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatCompletionRequest struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		MaxTokens   int           `json:"max_tokens"`
		Temperature float64       `json:"temperature"`
	}

	chatCompletionResponse struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}

	PromptResponse struct {
		Prompt string `json:"prompt"`
	}
)

// HandleGeneratePrompt returns a fresh drawing prompt, generated via an
// OpenAI-compatible chat-completions endpoint when configured, otherwise
// drawn from the built-in list.
func HandleGeneratePrompt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt := generate(r)
		render.JSON(w, r, PromptResponse{Prompt: prompt})
	}
}

func generate(r *http.Request) string {
	if openaiAPIKey == "" {
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "system", Content: "You generate short, funny drawing prompts for a casual party game. Reply with the prompt only, no quotes, under 10 words."},
			{Role: "user", Content: "Give me one drawing prompt."},
		},
		MaxTokens:   30,
		Temperature: 1.1,
	})
	if err != nil {
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
		openaiBaseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+openaiAPIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		logrus.WithError(err).Warn("Prompt generation request failed, using fallback")
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}
	defer resp.Body.Close()

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil || len(completion.Choices) == 0 {
		logrus.WithError(err).Warn("Prompt generation response unusable, using fallback")
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}

	prompt := strings.TrimSpace(completion.Choices[0].Message.Content)
	if prompt == "" {
		return fallbackPrompts[rand.Intn(len(fallbackPrompts))]
	}
	return prompt
}
