package renderer

import (
	"fmt"
	"strings"

	convo "dstgpt/llm/chat"
	"dstgpt/llm/rag"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// StarterQuestions 欢迎页展示的示例问题
var StarterQuestions = []string{
	"Tell me how characters hunger drains.",
	"What is Wilson?",
	"How to craft an axe?",
	"How do I survive my first winter?",
}

// WelcomeText 没有消息时显示的内容
func WelcomeText() string {
	var sb strings.Builder
	sb.WriteString("Welcome to DSTGPT! Ask anything about Don't Starve Together.\n")
	sb.WriteString("Type a question and press Enter, or /help for commands.\n\nTry (Tab fills the input):\n")
	for _, q := range StarterQuestions {
		sb.WriteString("  • " + q + "\n")
	}
	return sb.String()
}

// MessageRenderer 消息渲染器
type MessageRenderer struct {
	markdownRenderer *glamour.TermRenderer
	styles           *MessageStyles
	renderedCache    []string // 已渲染消息的缓存
	viewportWidth    int
}

// NewMessageRenderer 创建消息渲染器
func NewMessageRenderer(styles *MessageStyles) *MessageRenderer {
	if styles == nil {
		styles = DefaultMessageStyles()
	}

	// 初始化 Markdown 渲染器 (Dracula 主题)
	markdownRenderer, _ := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(0), // 禁用自动换行，由外部控制
	)
	return &MessageRenderer{
		markdownRenderer: markdownRenderer,
		styles:           styles,
		renderedCache:    make([]string, 0),
	}
}

// SetViewportWidth 设置视口宽度；宽度变化后缓存失效
func (r *MessageRenderer) SetViewportWidth(width int) {
	if r.viewportWidth != width {
		r.renderedCache = r.renderedCache[:0]
	}
	r.viewportWidth = width
}

// RenderMessages 渲染所有消息，已完成的消息不会重复渲染
func (r *MessageRenderer) RenderMessages(messages []convo.Message) string {
	if len(messages) == 0 {
		r.renderedCache = r.renderedCache[:0]
		return WelcomeText()
	}

	// 列表变短（例如 /clear）时重置缓存
	if len(messages) < len(r.renderedCache) {
		r.renderedCache = r.renderedCache[:0]
	}
	for i := len(r.renderedCache); i < len(messages); i++ {
		r.renderedCache = append(r.renderedCache, r.RenderMessage(messages[i]))
	}

	var parts []string
	for _, rendered := range r.renderedCache {
		if rendered != "" {
			parts = append(parts, rendered)
		}
	}
	content := strings.Join(parts, "\n\n")

	if r.viewportWidth > 0 {
		return lipgloss.NewStyle().Width(r.viewportWidth).Render(content)
	}
	return content
}

// RenderMessage 渲染单条消息
func (r *MessageRenderer) RenderMessage(msg convo.Message) string {
	switch msg.Role {
	case convo.RoleUser:
		return r.renderUserMessage(msg)
	case convo.RoleAssistant:
		return r.renderAssistantMessage(msg)
	case convo.RoleSystem:
		return r.renderSystemMessage(msg)
	}
	return ""
}

// renderMarkdown 渲染 Markdown 内容
func (r *MessageRenderer) renderMarkdown(content string) string {
	if r.markdownRenderer == nil {
		return content
	}
	rendered, err := r.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	// glamour 会添加前后换行
	return strings.TrimSpace(rendered)
}

func (r *MessageRenderer) renderUserMessage(msg convo.Message) string {
	if msg.Content == "" {
		return ""
	}
	return r.styles.User.Render("You:") + " " + msg.Content
}

// renderAssistantMessage 标题区分知识库回答和纯模型回答，末尾附用量
func (r *MessageRenderer) renderAssistantMessage(msg convo.Message) string {
	header := r.styles.Assistant.Render("DSTGPT")
	switch msg.Side {
	case rag.SideRAG:
		header += " " + r.styles.RAG.Render("[knowledge base]")
	case rag.SidePure:
		header += " " + r.styles.Pure.Render("[model only]")
	}

	body := r.renderMarkdown(msg.Content)
	return header + "\n" + body + "\n" + r.styles.Footer.Render(footer(msg))
}

func (r *MessageRenderer) renderSystemMessage(msg convo.Message) string {
	if msg.Content == "" {
		return ""
	}
	if msg.Failed {
		return r.styles.Failed.Render("⚠ " + msg.Content)
	}
	return r.styles.System.Render(msg.Content)
}

func footer(msg convo.Message) string {
	text := fmt.Sprintf("%s · %d tokens", msg.Model, msg.Usage.TotalTokens)
	if msg.CostKnown {
		text += " · " + FormatCost(msg.Cost)
	}
	return text
}
