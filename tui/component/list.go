package component

import (
	convo "dstgpt/llm/chat"
	"dstgpt/pubsub"
	"dstgpt/tui/component/renderer"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ListModel 封装消息列表组件
// 负责消息存储和 viewport 管理，渲染逻辑委托给 MessageRenderer
type ListModel struct {
	viewport viewport.Model
	messages []convo.Message
	width    int
	height   int
	ready    bool

	renderer *renderer.MessageRenderer
}

// NewListModel 创建新的消息列表组件
func NewListModel() ListModel {
	vp := viewport.New(30, 30)
	vp.SetContent(renderer.WelcomeText())

	return ListModel{
		viewport: vp,
		messages: make([]convo.Message, 0),
		renderer: renderer.NewMessageRenderer(nil),
		width:    30,
		height:   5,
		ready:    true,
	}
}

// Init 初始化组件
func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update 更新组件状态
func (m ListModel) Update(msg tea.Msg) (ListModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.MouseMsg:
		// 处理鼠标滚轮事件
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.viewport.ScrollUp(3)
		case tea.MouseButtonWheelDown:
			m.viewport.ScrollDown(3)
		}
	case pubsub.Event[convo.Message]:
		if msg.Is(pubsub.CreatedEvent) {
			m.messages = append(m.messages, msg.Payload)
			m.updateViewportContent()
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View 渲染组件视图
func (m ListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.viewport.View()
}

// SetSize 设置组件尺寸
func (m *ListModel) SetSize(width, height int) {
	m.width = width
	m.height = height

	// 确保高度至少为 1，防止负数或零
	if height < 1 {
		height = 1
	}

	m.viewport.Width = width
	m.viewport.Height = height
	m.ready = true

	m.renderer.SetViewportWidth(width)
	m.updateViewportContent()
	m.viewport.GotoBottom()
}

// Clear 清空消息列表，回到欢迎页
func (m *ListModel) Clear() {
	m.messages = m.messages[:0]
	m.updateViewportContent()
}

// Len 返回已显示的消息数
func (m ListModel) Len() int {
	return len(m.messages)
}

func (m *ListModel) updateViewportContent() {
	m.viewport.SetContent(m.renderer.RenderMessages(m.messages))
}
