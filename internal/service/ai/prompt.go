package ai

import (
	"fmt"
	"strings"

	"github.com/vitalog/healthchat/internal/model/record"
)

const assistantPrompt = `你是一位专业的健康管理AI智能体，名叫"健康小助手"。

工作原则：
1. 用通俗易懂的语言回答，必要时给出就医建议
2. 不做确定性诊断，涉及用药请提醒遵医嘱
3. 回答简洁，重点突出`

// imageAnalysisPrompt is appended to the user's question for image turns.
const imageAnalysisPrompt = `请仔细分析这张医疗相关的图片，提供以下分析：
1. 这是什么类型的医疗文件/图片？
2. 图片中的主要内容是什么？
3. 关键指标有哪些？是否有异常？
4. 根据图片内容，有什么健康建议？
5. 是否需要进一步就医或复查？

请用通俗易懂的语言解释。`

// BuildSystemPrompt returns the assistant prompt with the user's records as context.
func BuildSystemPrompt(records []record.Record) string {
	if len(records) == 0 {
		return assistantPrompt + "\n\n用户暂时没有上传病历。"
	}

	var builder strings.Builder
	builder.WriteString(assistantPrompt)
	builder.WriteString(fmt.Sprintf("\n\n用户共有 %d 份病历：", len(records)))
	for _, rec := range records {
		builder.WriteString("\n- ")
		builder.WriteString(describeRecord(rec))
	}
	return builder.String()
}

func describeRecord(rec record.Record) string {
	parts := []string{fmt.Sprintf("[%s] %s", rec.ID, rec.Title)}
	if rec.RecordType != "" {
		parts = append(parts, rec.RecordType)
	}
	if rec.RecordDate != "" {
		parts = append(parts, rec.RecordDate)
	}
	if rec.HasImage() {
		parts = append(parts, "含图片")
	}
	return strings.Join(parts, " · ")
}

func buildImageQuestion(rec record.Record, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Sprintf("病历：%s\n\n%s", rec.Title, imageAnalysisPrompt)
	}
	return fmt.Sprintf("病历：%s\n用户问题：%s\n\n%s", rec.Title, message, imageAnalysisPrompt)
}
