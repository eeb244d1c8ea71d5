package chat

import (
	"context"
	"sync"
)

// DefaultHistoryLimit 默认保留的消息条数
const DefaultHistoryLimit = 50

// ConversationStore 对话存储接口
type ConversationStore interface {
	// Add 添加一条消息到存储
	Add(ctx context.Context, msg Message) error
	// List 获取所有消息历史
	List(ctx context.Context) ([]Message, error)
	// Clear 清空消息历史
	Clear(ctx context.Context) error
}

// MemoryStore 内存实现的对话存储，超过上限时丢弃最旧的消息
type MemoryStore struct {
	mu          sync.RWMutex
	msgs        []Message
	maxMessages int
}

// NewMemoryStore 创建一个新的内存存储
func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultHistoryLimit
	}
	return &MemoryStore{maxMessages: maxMessages}
}

// Add 添加一条消息（滑动窗口）
func (s *MemoryStore) Add(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, msg)
	if len(s.msgs) > s.maxMessages {
		s.msgs = append([]Message(nil), s.msgs[len(s.msgs)-s.maxMessages:]...)
	}
	return nil
}

// List 返回副本，避免外部修改
func (s *MemoryStore) List(_ context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Message, len(s.msgs))
	copy(result, s.msgs)
	return result, nil
}

// Clear 清空所有消息
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
	return nil
}
