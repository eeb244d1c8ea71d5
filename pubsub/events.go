package pubsub

import "slices"

// EventType 区分同一个 Broker 上的不同事件
type EventType string

// 聊天消息 Broker 上的事件
const (
	// CreatedEvent 新增一条消息：提问、回答或系统提示
	CreatedEvent EventType = "created"
	// FinishedEvent 一轮问答结束，Payload.Failed 表示本轮是否出错
	FinishedEvent EventType = "finished"
)

// 配置 Broker 上的事件
const (
	// UpdatedEvent 任一配置项已写入磁盘
	UpdatedEvent EventType = "updated"
	// ModelChangedEvent 紧跟 UpdatedEvent，写入的键会让模型和检索链失效
	ModelChangedEvent EventType = "model_changed"
)

// Event 投递给订阅者的一次变化
type Event[T any] struct {
	Type    EventType
	Payload T
}

// Is 事件类型属于 types 之一
func (e Event[T]) Is(types ...EventType) bool {
	return slices.Contains(types, e.Type)
}
