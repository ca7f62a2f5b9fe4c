package reply

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medbook/booking-assistant/internal/booking"
)

const systemPrompt = `You are a warm, professional medical appointment booking assistant.
You will be given the exact reply the booking system wants to send. Rephrase it in a
friendly, empathetic tone. Keep every fact, list item, name, phone number, date and
time exactly as given. Ask only the question the reply asks. Keep it short.`

// OpenAIParaphraser rewrites canned assistant replies via the OpenAI chat
// completion API. It never changes what the reply asks for, only how it
// sounds; on any failure callers fall back to the canned text.
type OpenAIParaphraser struct {
	client *openai.Client
	model  string
}

func NewOpenAIParaphraser(apiKey, model string) *OpenAIParaphraser {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIParaphraser{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIParaphraser) Paraphrase(ctx context.Context, canned string, history []booking.ChatTurn) (string, error) {
	if p.client == nil {
		return "", errors.New("openai client not initialized")
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}

	// Include the tail of the conversation so the phrasing stays coherent.
	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	for _, turn := range history[start:] {
		role := openai.ChatMessageRoleUser
		if turn.Sender == booking.SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: "Reply to send:\n" + canned,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
