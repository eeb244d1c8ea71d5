package renderer

import (
	"github.com/charmbracelet/lipgloss"
)

// MessageStyles 消息渲染样式配置
type MessageStyles struct {
	// 消息角色样式
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Failed    lipgloss.Style

	// 两种回答的标签
	RAG  lipgloss.Style
	Pure lipgloss.Style

	Footer lipgloss.Style
	Indent lipgloss.Style
}

// DefaultMessageStyles 返回默认消息样式配置
func DefaultMessageStyles() *MessageStyles {
	return &MessageStyles{
		User:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true),
		System:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Italic(true),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Italic(true),
		RAG:       lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true),
		Pure:      lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Faint(true),
		Indent:    lipgloss.NewStyle().PaddingLeft(2),
	}
}
