package brain

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPromptTemplate = `Tu es un coach vocal d'éloquence. Tu réponds en %s, de façon brève et orale.
Termine chaque réponse par [EMOTION: <émotion>].
Si l'étape du scénario change, ajoute [ETAPE: <étape>].`

// OpenAIGenerator drives a chat-completion model. Works against the OpenAI
// API or any compatible endpoint via the base URL.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: g.systemPrompt(req),
	}}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role != "user" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserText,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion: empty choices")
	}

	text, emotion, updates := parseMarkers(resp.Choices[0].Message.Content)
	return Response{Text: text, Emotion: emotion, ScenarioUpdates: updates}, nil
}

func (g *OpenAIGenerator) systemPrompt(req Request) string {
	lang := req.Language
	if lang == "" {
		lang = "français"
	}
	var b strings.Builder
	fmt.Fprintf(&b, systemPromptTemplate, lang)
	if len(req.Scenario) > 0 {
		b.WriteString("\nContexte du scénario:")
		for k, v := range req.Scenario {
			fmt.Fprintf(&b, "\n- %s: %s", k, v)
		}
	}
	if req.Interrupted {
		b.WriteString("\nL'utilisateur vient de t'interrompre; reconnais-le brièvement.")
	}
	return b.String()
}
