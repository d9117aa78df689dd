package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/config"
	"github.com/vitalog/healthchat/internal/model/record"
)

// historyLimit bounds how many prior turns are sent to the model.
const historyLimit = 10

// Turn is one prior message of a conversation.
type Turn struct {
	Role    string
	Content string
}

// Service answers health questions with an Ark chat model.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    zerolog.Logger
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newService(ctx, chatModel, logger)
}

func newService(ctx context.Context, chatModel model.ChatModel, logger zerolog.Logger) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		logger:    logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Reply answers message in the context of history and the user's records.
func (s *Service) Reply(ctx context.Context, records []record.Record, history []Turn, message string) (string, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(records),
		"history": buildHistoryMessages(history),
		"query":   message,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Debug().Int("history", len(history)).Int("length", len(response.Content)).Msg("generated reply")
	return response.Content, nil
}

// AnalyzeImage asks the model to read the image attached to rec.
func (s *Service) AnalyzeImage(ctx context.Context, rec record.Record, message string) (string, error) {
	if !rec.HasImage() {
		return "", fmt.Errorf("record %s has no image", rec.ID)
	}

	messages := []*schema.Message{
		schema.SystemMessage(assistantPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: buildImageQuestion(rec, message)},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: rec.FilePath}},
			},
		},
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}

	s.logger.Debug().Str("record_id", rec.ID).Int("length", len(response.Content)).Msg("analyzed record image")
	return response.Content, nil
}

func buildHistoryMessages(turns []Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case "user":
			history = append(history, schema.UserMessage(turn.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
