package run

import (
	"fmt"
	"runtime/debug"

	"cosmossdk.io/log"

	"github.com/John-Robertt/catresize/internal/domain"
)

// Sink 把“进度渲染”从 driver 中解耦出来。
//
// 约束：
// - driver 只发事件，不做任何输出。
// - 回调不返回错误，也不允许 panic 影响 driver；渲染失败由 sink 自己记录。
// - State 是值拷贝，sink 可以随意持有。
type Sink interface {
	// OnStart 在拉取第一个条目之前调用且只调用一次。
	OnStart(total domain.Total)
	// OnAdvance 在每个条目开始处理前调用（LastMessage 为该条目的 key）。
	OnAdvance(st State)
	// OnComplete 在 run 结束时调用且只调用一次（包括 aborted/cancelled）。
	OnComplete(st State)
}

// NopSink 丢弃所有事件。
type NopSink struct{}

func (NopSink) OnStart(domain.Total) {}
func (NopSink) OnAdvance(State)      {}
func (NopSink) OnComplete(State)     {}

// MultiSink 按顺序把事件转发给多个 sink。
type MultiSink []Sink

func (m MultiSink) OnStart(total domain.Total) {
	for _, s := range m {
		s.OnStart(total)
	}
}

func (m MultiSink) OnAdvance(st State) {
	for _, s := range m {
		s.OnAdvance(st)
	}
}

func (m MultiSink) OnComplete(st State) {
	for _, s := range m {
		s.OnComplete(st)
	}
}

// SafeSink 包装 sink：回调中的 panic 被恢复并记录日志，不会传播到 driver。
func SafeSink(s Sink, logger log.Logger) Sink {
	if s == nil {
		return NopSink{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return safeSink{next: s, logger: logger}
}

type safeSink struct {
	next   Sink
	logger log.Logger
}

func (s safeSink) OnStart(total domain.Total) {
	defer s.recover("start")
	s.next.OnStart(total)
}

func (s safeSink) OnAdvance(st State) {
	defer s.recover("advance")
	s.next.OnAdvance(st)
}

func (s safeSink) OnComplete(st State) {
	defer s.recover("complete")
	s.next.OnComplete(st)
}

func (s safeSink) recover(event string) {
	if r := recover(); r != nil {
		s.logger.Error("progress sink panicked", "event", event, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	}
}
