package chat

import (
	"context"
	"errors"
	"fmt"

	"dstgpt/config"
	convo "dstgpt/llm/chat"
	"dstgpt/pubsub"
	"dstgpt/tui/component"
	"dstgpt/tui/component/renderer"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// askDoneMsg 一次提问结束
type askDoneMsg struct {
	err error
}

// commandDoneMsg 一条斜杠命令执行结束
type commandDoneMsg struct {
	cmd   Command
	reply string
	err   error
}

// Model 聊天界面模型
type Model struct {
	list   component.ListModel
	input  component.InputModel
	status component.StatusModel

	session   *convo.Session
	cfg       *config.Store
	kb        Knowledge
	commander *Commander

	msgSub <-chan pubsub.Event[convo.Message]
	cfgSub <-chan pubsub.Event[config.Change]
	ctx    context.Context

	starter int
	width   int
	height  int
}

// InitialModel 创建初始模型
func InitialModel(ctx context.Context, session *convo.Session, cfg *config.Store, kb Knowledge) Model {
	m := Model{
		list:      component.NewListModel(),
		input:     component.NewInputModel(),
		status:    component.NewStatusModel(),
		session:   session,
		cfg:       cfg,
		kb:        kb,
		commander: NewCommander(cfg, kb, session),
		msgSub:    session.Broker().Subscribe(ctx),
		cfgSub:    cfg.Broker().Subscribe(ctx),
		ctx:       ctx,
	}
	m.refreshStatus()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.input.Init(),
		m.status.Init(),
		waitFor(m.msgSub), // 订阅会话消息
		waitFor(m.cfgSub), // 订阅配置变更
	)
}

// waitFor 等待下一条事件；通道关闭后不再继续等待
func waitFor[T any](sub <-chan pubsub.Event[T]) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil
		}
		return event
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case component.SubmitMsg:
		if cmd, ok := ParseCommand(msg.Value); ok {
			if cmd.Name == "quit" || cmd.Name == "exit" {
				return m, tea.Quit
			}
			cmds = append(cmds, m.runCommand(cmd))
			break
		}
		if m.session.Busy() {
			m.session.Warn("Still answering the previous question, please wait.")
			break
		}
		cmds = append(cmds, m.ask(msg.Value))

	case askDoneMsg:
		if errors.Is(msg.err, convo.ErrBusy) {
			m.session.Warn("Still answering the previous question, please wait.")
		}

	case commandDoneMsg:
		if msg.err != nil {
			m.session.Warn(fmt.Sprintf("/%s: %v", msg.cmd.Name, msg.err))
		} else if msg.reply != "" {
			if msg.cmd.Name == "clear" {
				m.list.Clear()
			}
			m.session.Notify(msg.reply)
		}
		m.refreshStatus()

	case pubsub.Event[convo.Message]:
		cmds = append(cmds, waitFor(m.msgSub))
		m.refreshStatus()

	case pubsub.Event[config.Change]:
		cmds = append(cmds, waitFor(m.cfgSub))
		m.refreshStatus()
		m.layout()
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			// 空会话时 Tab 轮换示例问题
			if m.list.Len() == 0 {
				m.input.SetValue(renderer.StarterQuestions[m.starter%len(renderer.StarterQuestions)])
				m.starter++
				return m, nil
			}
		}
	}

	var cmd tea.Cmd

	// 方向键留给输入历史，消息列表只接收翻页键和鼠标
	if key, ok := msg.(tea.KeyMsg); !ok || key.Type == tea.KeyPgUp || key.Type == tea.KeyPgDown {
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.status, cmd = m.status.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// ask 在 goroutine 中提问，结果通过会话事件回到界面
func (m Model) ask(question string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return askDoneMsg{err: session.Ask(question)}
	}
}

// runCommand 配置写入会同步重建模型，放在 goroutine 中执行
func (m Model) runCommand(cmd Command) tea.Cmd {
	ctx, commander := m.ctx, m.commander
	return func() tea.Msg {
		reply, err := commander.Execute(ctx, cmd)
		return commandDoneMsg{cmd: cmd, reply: reply, err: err}
	}
}

func (m *Model) refreshStatus() {
	s := m.cfg.Settings()
	stats := m.session.Stats()
	info := component.StatusInfo{
		Model:   s.BaseModel,
		RAG:     s.RAG,
		Backend: s.VectorstoreBackend,
		Tokens:  stats.PromptTokens + stats.CompletionTokens,
		Cost:    stats.Cost,
	}
	if err := m.kb.Err(); err != nil {
		info.Warning = err.Error()
	}
	m.status.SetInfo(info)
}

// layout 计算各组件高度
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	statusHeight := lipgloss.Height(m.status.View())
	inputHeight := m.input.Height()
	m.list.SetSize(m.width, m.height-statusHeight-inputHeight)
	m.input.SetWidth(m.width)
	m.status.SetWidth(m.width)
}

func (m Model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.list.View(),
		m.status.View(),
		m.input.View(),
	)
}
