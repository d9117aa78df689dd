package devbackend

import (
	"context"
	"fmt"

	"github.com/vitalog/healthchat/internal/model/record"
	"github.com/vitalog/healthchat/internal/service/ai"
)

// Responder produces the assistant side of a turn.
type Responder interface {
	Reply(ctx context.Context, records []record.Record, history []ai.Turn, message string) (string, error)
	AnalyzeImage(ctx context.Context, rec record.Record, message string) (string, error)
}

var _ Responder = (*ai.Service)(nil)

// EchoResponder answers without a model, for local runs without Ark credentials.
type EchoResponder struct{}

// Reply implements Responder.
func (EchoResponder) Reply(_ context.Context, records []record.Record, history []ai.Turn, message string) (string, error) {
	return fmt.Sprintf("收到：%s\n（当前会话已有 %d 条消息，您共有 %d 份病历）", message, len(history), len(records)), nil
}

// AnalyzeImage implements Responder.
func (EchoResponder) AnalyzeImage(_ context.Context, rec record.Record, message string) (string, error) {
	return fmt.Sprintf("已收到病历「%s」的图片。\n%s", rec.Title, message), nil
}
