package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dstgpt/llm/pricing"
	"dstgpt/llm/rag"
	"dstgpt/pubsub"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBusy 上一个问题还没有回答完
var ErrBusy = errors.New("a question is already being answered")

// ErrNothingToRetry 还没有可以重发的问题
var ErrNothingToRetry = errors.New("no question to retry")

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 会话中的一条消息
type Message struct {
	ID        string
	Role      Role
	Side      rag.Side
	Content   string
	Model     string
	Usage     rag.Usage
	Cost      float64
	CostKnown bool
	// Failed 标记"回答缺失"或警告提示
	Failed    bool
	CreatedAt time.Time
}

// Answerer 生成回答
type Answerer interface {
	Answer(ctx context.Context, question string, mode rag.Mode) (*rag.Answer, error)
}

// Stats 会话累计统计
type Stats struct {
	Questions        int
	Answers          int
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Session 一次只处理一个问题，结果通过 Broker 发布给界面
type Session struct {
	answerer Answerer
	prices   *pricing.Table
	mode     func() rag.Mode
	store    ConversationStore
	broker   *pubsub.Broker[Message]
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	busy         atomic.Bool
	mu           sync.Mutex
	stats        Stats
	lastQuestion string
}

// NewSession 创建会话；mode 在每次提问时读取，保证使用最新的 RAG 设置
func NewSession(ctx context.Context, answerer Answerer, prices *pricing.Table, mode func() rag.Mode, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prices == nil {
		prices = pricing.Default()
	}
	childCtx, cancel := context.WithCancel(ctx)
	return &Session{
		answerer: answerer,
		prices:   prices,
		mode:     mode,
		store:    NewMemoryStore(DefaultHistoryLimit),
		broker:   pubsub.NewBroker[Message](),
		logger:   logger,
		ctx:      childCtx,
		cancel:   cancel,
	}
}

// Ask 提交问题并阻塞到回答完成；已有问题在处理时立即返回 ErrBusy
func (s *Session) Ask(question string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	s.mu.Lock()
	s.lastQuestion = question
	s.stats.Questions++
	s.mu.Unlock()

	s.publish(Message{Role: RoleUser, Content: question})

	err := s.answer(question)

	s.busy.Store(false)
	s.broker.Publish(pubsub.FinishedEvent, Message{Role: RoleSystem, Failed: err != nil})
	return err
}

// Retry 重新发送上一个问题
func (s *Session) Retry() error {
	s.mu.Lock()
	q := s.lastQuestion
	s.mu.Unlock()
	if q == "" {
		return ErrNothingToRetry
	}
	return s.Ask(q)
}

func (s *Session) answer(question string) error {
	mode := s.mode()
	start := time.Now()

	ans, err := s.answerer.Answer(s.ctx, question, mode)
	if err != nil {
		s.logger.Error("answer failed", zap.String("mode", string(mode)), zap.Error(err))
		s.publish(Message{
			Role:    RoleSystem,
			Content: fmt.Sprintf("Answer missing: %v. Use /retry to send the question again.", err),
			Failed:  true,
		})
		return err
	}

	s.logger.Info("answer received",
		zap.String("mode", string(mode)),
		zap.String("model", ans.Model),
		zap.Duration("elapsed", time.Since(start)))

	for _, side := range sidesOf(mode) {
		content, usage := ans.RAG, ans.RAGUsage
		if side == rag.SidePure {
			content, usage = ans.Pure, ans.PureUsage
		}
		if strings.TrimSpace(content) == "" {
			s.logger.Warn("empty answer", zap.String("side", string(side)), zap.String("model", ans.Model))
			s.Warn(fmt.Sprintf("The model returned an empty %s answer. Use /retry to send the question again.", side))
			continue
		}
		s.publishAnswer(ans, side, content, usage)
	}
	return nil
}

// sidesOf 该模式应当产出的回答
func sidesOf(mode rag.Mode) []rag.Side {
	switch mode {
	case rag.ModeDisabled:
		return []rag.Side{rag.SidePure}
	case rag.ModeBoth:
		return []rag.Side{rag.SideRAG, rag.SidePure}
	}
	return []rag.Side{rag.SideRAG}
}

func (s *Session) publishAnswer(ans *rag.Answer, side rag.Side, content string, usage rag.Usage) {
	msg := Message{
		Role:    RoleAssistant,
		Side:    side,
		Content: content,
		Model:   ans.Model,
		Usage:   usage,
	}

	cost, err := s.prices.Cost(ans.Model, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		// 价格缺失只影响本次计费，回答照常显示
		s.logger.Warn("cost lookup failed", zap.String("model", ans.Model), zap.Error(err))
		s.publish(Message{Role: RoleSystem, Content: fmt.Sprintf("Cost unavailable: %v", err)})
	} else {
		msg.Cost = cost
		msg.CostKnown = true
	}

	s.mu.Lock()
	s.stats.Answers++
	s.stats.PromptTokens += usage.PromptTokens
	s.stats.CompletionTokens += usage.CompletionTokens
	s.stats.Cost += msg.Cost
	s.mu.Unlock()

	s.publish(msg)
}

// Notify 发布一条系统提示
func (s *Session) Notify(content string) {
	s.publish(Message{Role: RoleSystem, Content: content})
}

// Warn 发布一条警告提示
func (s *Session) Warn(content string) {
	s.publish(Message{Role: RoleSystem, Content: content, Failed: true})
}

func (s *Session) publish(msg Message) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()
	if err := s.store.Add(s.ctx, msg); err != nil {
		s.logger.Warn("store message failed", zap.Error(err))
	}
	s.broker.Publish(pubsub.CreatedEvent, msg)
}

// Busy 是否有问题正在处理
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Stats 返回统计快照
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// History 返回最近的消息
func (s *Session) History() []Message {
	msgs, _ := s.store.List(s.ctx)
	return msgs
}

// ClearHistory 清空对话记录和统计
func (s *Session) ClearHistory() error {
	s.mu.Lock()
	s.stats = Stats{}
	s.mu.Unlock()
	return s.store.Clear(s.ctx)
}

// Broker 获取事件 Broker
func (s *Session) Broker() *pubsub.Broker[Message] {
	return s.broker
}

// Close 关闭会话
func (s *Session) Close() {
	s.cancel()
	s.broker.Shutdown()
}
