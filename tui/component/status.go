package component

import (
	"fmt"
	"time"

	convo "dstgpt/llm/chat"
	"dstgpt/pubsub"
	"dstgpt/tui/component/renderer"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SlowAnswerAfter 超过这个时间仍未回答时显示提示，不影响请求本身
const SlowAnswerAfter = 20 * time.Second

// StatusInfo 状态栏右侧显示的信息
type StatusInfo struct {
	Model   string
	RAG     string
	Backend string
	Tokens  int
	Cost    float64
	Warning string
}

type statusTickMsg time.Time

// StatusModel 封装状态显示组件（spinner + 状态文本）
type StatusModel struct {
	spinner spinner.Model
	running bool
	started time.Time
	now     func() time.Time
	text    string
	info    StatusInfo
	width   int
}

// NewStatusModel 创建新的状态组件
func NewStatusModel() StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Jump
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return StatusModel{
		spinner: s,
		now:     time.Now,
		text:    "Ready",
	}
}

// Init 初始化组件
func (m StatusModel) Init() tea.Cmd {
	// 不自动启动 spinner，等待用户提问
	return nil
}

// Update 更新组件状态
func (m StatusModel) Update(msg tea.Msg) (StatusModel, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[convo.Message]:
		switch {
		case msg.Is(pubsub.CreatedEvent) && msg.Payload.Role == convo.RoleUser:
			// 用户提问，启动 spinner 和计时
			if !m.running {
				m.running = true
				m.started = m.now()
				m.text = "Thinking..."
				return m, tea.Batch(m.spinner.Tick, tick())
			}
		case msg.Is(pubsub.FinishedEvent):
			if m.running {
				m.running = false
				m.text = fmt.Sprintf("Ready (last answer took %s)", renderer.FormatDuration(m.now().Sub(m.started)))
			}
			return m, nil
		}
		return m, nil

	case statusTickMsg:
		if !m.running {
			return m, nil
		}
		elapsed := m.now().Sub(m.started)
		m.text = fmt.Sprintf("Thinking... %s", renderer.FormatDuration(elapsed.Truncate(time.Second)))
		if elapsed >= SlowAnswerAfter {
			m.text += " (the model is slow to respond, still waiting)"
		}
		return m, tick()
	}

	// Spinner 动画帧更新
	if m.running {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

// View 渲染组件视图
func (m StatusModel) View() string {
	style := lipgloss.NewStyle().Padding(1, 0, 0, 0)
	left := m.text
	if m.running {
		left = fmt.Sprintf("%s %s", m.spinner.View(), m.text)
	}

	right := fmt.Sprintf("%s · rag %s · %s · %d tokens · %s",
		m.info.Model, m.info.RAG, m.info.Backend, m.info.Tokens, renderer.FormatCost(m.info.Cost))
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	line := left + "  " + infoStyle.Render(right)
	if m.info.Warning != "" {
		warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
		line += "\n" + warn.Render("⚠ "+renderer.Truncate(m.info.Warning, max(m.width-2, 20)))
	}
	return style.Render(line)
}

// SetInfo 更新右侧信息
func (m *StatusModel) SetInfo(info StatusInfo) {
	m.info = info
}

// SetWidth 设置组件宽度
func (m *StatusModel) SetWidth(width int) {
	m.width = width
}

// IsRunning 返回 spinner 是否在运行
func (m StatusModel) IsRunning() bool {
	return m.running
}

// Text 返回状态文本
func (m StatusModel) Text() string {
	return m.text
}
