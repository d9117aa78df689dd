package chat

import "fmt"

// Fixed conversation texts shown to the user.
const (
	WelcomeMessage = "你好！我是您的健康管理AI智能体 🏥\n\n我可以帮助您：\n• 📋 查看和管理您的病历记录\n• 🖼️ 智能分析检查报告、化验单等医疗图片\n• 📊 计算 BMI、每日热量等健康指标\n• 💡 提供个性化健康建议\n\n我是一个**真正的智能体**，会自动判断需要调用哪些工具来回答您的问题！\n\n请问有什么可以帮助您的？"

	// ApologyMessage replaces the reply when the backend reports a failure.
	ApologyMessage = "抱歉，我暂时无法回答您的问题，请稍后再试。"

	// UnavailableMessage replaces the reply when the backend cannot be reached.
	UnavailableMessage = "抱歉，服务暂时不可用，请稍后再试。"

	// DefaultImagePrompt is sent when an image turn has no typed text.
	DefaultImagePrompt = "请分析这张医疗图片"
)

// QuickQuestions are offered while the conversation holds at most the greeting.
var QuickQuestions = []string{
	"我有几份病历？",
	"分析我的所有检查结果",
	"计算我的 BMI",
	"给我一些健康建议",
}

// imageTurnContent is what the timeline shows for an image-analysis turn.
func imageTurnContent(title, prompt string) string {
	return fmt.Sprintf("[分析病历图片: %s]\n%s", title, prompt)
}

// analyzeRecordDraft prefills the input when a record is pushed in for analysis.
func analyzeRecordDraft(title string) string {
	return fmt.Sprintf("请帮我详细分析这份病历：%s", title)
}
