package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/log"

	"github.com/John-Robertt/catresize/internal/domain"
)

// Phase 是 driver 的状态机：Idle -> Running -> {Completed, Aborted, Cancelled}。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseAborted   Phase = "aborted"
	PhaseCancelled Phase = "cancelled"
)

// Terminal 报告该状态是否为终态。
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted || p == PhaseCancelled
}

// State 是一次 run 的进度状态。只由 Driver 修改；sink 收到的是拷贝。
type State struct {
	Current     int
	Total       domain.Total
	LastMessage string
	Failures    []Failure
	Phase       Phase
	StartedAt   time.Time
}

// transition 按状态机推进 Phase；非法迁移是 driver 自身的 bug。
func (s *State) transition(to Phase) {
	switch {
	case s.Phase == PhaseIdle && to == PhaseRunning:
	case s.Phase == PhaseRunning && to.Terminal():
	default:
		panic(fmt.Sprintf("run: illegal phase transition %s -> %s", s.Phase, to))
	}
	s.Phase = to
}

func (s State) snapshot() State {
	s.Failures = append([]Failure(nil), s.Failures...)
	return s
}

// Result 是 Run 的返回值。
type Result struct {
	Processed int
	Failed    []Failure
	Phase     Phase
	// Fatal 仅在 Phase==PhaseAborted 时非空。
	Fatal error
}

func (r Result) Cancelled() bool { return r.Phase == PhaseCancelled }

// OK 表示 run 正常完成且没有任何 item 级失败。
func (r Result) OK() bool { return r.Phase == PhaseCompleted && len(r.Failed) == 0 }

// Source 为一个 Filter 产出惰性的工作序列。
type Source interface {
	Produce(ctx context.Context, f domain.Filter) (domain.Total, Sequence, error)
}

// Sequence 是惰性、不可重放的条目序列。
//
// Next 返回 ok=false 表示序列耗尽；返回 error 表示 source 已不可用（driver 视为 fatal）。
type Sequence interface {
	Next(ctx context.Context) (item domain.WorkItem, ok bool, err error)
	Close() error
}

// Counter 是可选能力：用一次独立的 count pass 得到总数（不物化条目）。
type Counter interface {
	Count(ctx context.Context, f domain.Filter) (int, error)
}

// Processor 处理单个条目。返回 Fatal(err) 包装的错误会中止整个 run。
type Processor interface {
	Process(ctx context.Context, item domain.WorkItem) error
}

// ProcessorFunc 让普通函数满足 Processor。
type ProcessorFunc func(ctx context.Context, item domain.WorkItem) error

func (f ProcessorFunc) Process(ctx context.Context, item domain.WorkItem) error { return f(ctx, item) }

// Driver 串行地拉取序列、处理条目，并向 Sink 报告进度。
type Driver struct {
	proc   Processor
	logger log.Logger
	now    func() time.Time
}

type Option func(*Driver)

func WithLogger(l log.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock 替换时间源（测试用）。
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDriver(proc Processor, opts ...Option) *Driver {
	d := &Driver{
		proc:   proc,
		logger: log.NewNopLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run 消费 seq 直到耗尽、取消或遇到 fatal 错误。
//
// 事件顺序固定：一次 OnStart，每个条目一次 OnAdvance，最后一次 OnComplete。
// item 级失败只记录在 Result.Failed 中；error 返回值只在 aborted 时非空（*FatalError）。
func (d *Driver) Run(ctx context.Context, total domain.Total, seq Sequence, sink Sink) (Result, error) {
	if sink == nil {
		sink = NopSink{}
	}
	sink = SafeSink(sink, d.logger)
	defer func() {
		if err := seq.Close(); err != nil {
			d.logger.Error("close sequence failed", "err", err)
		}
	}()

	st := State{
		Total:     total,
		Phase:     PhaseIdle,
		StartedAt: d.now(),
	}
	var fatal error

	st.transition(PhaseRunning)
	sink.OnStart(total)
	d.logger.Debug("run started", "total", total.String())

loop:
	for {
		if ctx.Err() != nil {
			st.transition(PhaseCancelled)
			break
		}

		item, ok, err := seq.Next(ctx)
		if err != nil {
			if isCancellation(ctx, err) {
				st.transition(PhaseCancelled)
				break
			}
			fatal = Fatal(err)
			st.transition(PhaseAborted)
			break
		}
		if !ok {
			st.transition(PhaseCompleted)
			break
		}

		st.LastMessage = item.Key
		sink.OnAdvance(st.snapshot())

		err = d.proc.Process(ctx, item)
		switch {
		case err == nil:
			st.Current++
			d.logger.Debug("item done", "key", item.Key, "index", item.Index)
		case IsFatal(err):
			fatal = withKey(err, item.Key)
			st.transition(PhaseAborted)
			break loop
		case isCancellation(ctx, err):
			st.transition(PhaseCancelled)
			break loop
		default:
			st.Failures = append(st.Failures, Failure{Key: item.Key, Err: err})
			d.logger.Debug("item failed", "key", item.Key, "err", err)
		}
	}

	sink.OnComplete(st.snapshot())
	d.logger.Debug("run finished",
		"phase", string(st.Phase),
		"processed", st.Current,
		"failed", len(st.Failures),
		"elapsed", d.now().Sub(st.StartedAt).String(),
	)

	res := Result{
		Processed: st.Current,
		Failed:    append([]Failure(nil), st.Failures...),
		Phase:     st.Phase,
		Fatal:     fatal,
	}
	if fatal != nil {
		return res, fatal
	}
	return res, nil
}

// RunSource 是 Produce + Run 的便捷组合。
// Produce 本身失败（source 不可用）按 fatal 处理，且不会发出任何 sink 事件。
func (d *Driver) RunSource(ctx context.Context, src Source, f domain.Filter, sink Sink) (Result, error) {
	total, seq, err := src.Produce(ctx, f)
	if err != nil {
		fe := Fatal(err)
		return Result{Phase: PhaseAborted, Fatal: fe}, fe
	}
	return d.Run(ctx, total, seq, sink)
}

func withKey(err error, key string) error {
	var fe *FatalError
	if errors.As(err, &fe) && fe.Key == "" {
		return &FatalError{Key: key, Err: fe.Err}
	}
	return err
}

// SliceSource 是内存实现的 Source：用于测试与显式 id 列表。
// Produce 对 All 返回全部 keys，对 ByIDs 只返回请求的 id（总数总是已知）。
type SliceSource struct {
	Keys []string
}

func (s SliceSource) Produce(_ context.Context, f domain.Filter) (domain.Total, Sequence, error) {
	keys := s.Keys
	if !f.IsAll() {
		keys = f.IDs()
	}
	return domain.KnownTotal(len(keys)), NewSliceSequence(keys), nil
}

func (s SliceSource) Count(_ context.Context, f domain.Filter) (int, error) {
	if !f.IsAll() {
		return len(f.IDs()), nil
	}
	return len(s.Keys), nil
}

// NewSliceSequence 按顺序产出 keys。
func NewSliceSequence(keys []string) Sequence {
	return &sliceSeq{keys: keys}
}

type sliceSeq struct {
	keys []string
	pos  int
}

func (s *sliceSeq) Next(ctx context.Context) (domain.WorkItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkItem{}, false, err
	}
	if s.pos >= len(s.keys) {
		return domain.WorkItem{}, false, nil
	}
	it := domain.WorkItem{Key: s.keys[s.pos], Index: s.pos}
	s.pos++
	return it, true, nil
}

func (s *sliceSeq) Close() error { return nil }
