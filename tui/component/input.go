package component

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const historyLimit = 100

// SubmitMsg 输入框提交的一行内容，已去掉首尾空白
type SubmitMsg struct {
	Value string
}

// InputModel 底部单行输入框。
// 提交过的内容按顺序保存，上下键翻看；翻回最底部时恢复没提交的草稿。
type InputModel struct {
	area    textarea.Model
	history []string
	// pos == len(history) 表示没有在翻看历史
	pos   int
	draft string
}

// NewInputModel 创建获得焦点的输入框
func NewInputModel() InputModel {
	area := textarea.New()
	area.Prompt = "> "
	area.Placeholder = "Ask about Don't Starve Together, or /help"
	area.CharLimit = 4000
	area.ShowLineNumbers = false
	area.FocusedStyle.CursorLine = lipgloss.NewStyle()
	// Enter 用来提交，不换行
	area.KeyMap.InsertNewline.SetEnabled(false)
	area.SetHeight(1)
	area.Focus()

	return InputModel{area: area}
}

func (m InputModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyUp:
			m.recall(-1)
			return m, nil
		case tea.KeyDown:
			m.recall(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.area, cmd = m.area.Update(msg)
	return m, cmd
}

func (m InputModel) submit() (InputModel, tea.Cmd) {
	value := strings.TrimSpace(m.area.Value())
	if value == "" {
		return m, nil
	}

	// 连续重复的内容只记一次
	if n := len(m.history); n == 0 || m.history[n-1] != value {
		m.history = append(m.history, value)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
	}
	m.pos = len(m.history)
	m.draft = ""
	m.area.Reset()

	return m, func() tea.Msg { return SubmitMsg{Value: value} }
}

// recall 在历史中移动 step 条，越界时不动
func (m *InputModel) recall(step int) {
	next := m.pos + step
	if next < 0 || next > len(m.history) {
		return
	}
	if m.pos == len(m.history) {
		m.draft = m.area.Value()
	}
	m.pos = next

	if next == len(m.history) {
		m.area.SetValue(m.draft)
		return
	}
	m.area.SetValue(m.history[next])
}

func (m *InputModel) View() string {
	return m.area.View()
}

func (m *InputModel) SetWidth(width int) {
	m.area.SetWidth(width)
}

// SetValue 预填输入框并退出历史翻看
func (m *InputModel) SetValue(v string) {
	m.pos = len(m.history)
	m.area.SetValue(v)
}

// Value 当前输入内容
func (m *InputModel) Value() string {
	return m.area.Value()
}

func (m *InputModel) Height() int {
	return m.area.Height()
}
