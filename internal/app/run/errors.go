package run

import (
	"context"
	"errors"
	"fmt"
)

// FatalError 表示 run 必须立即中止的失败（例如丢失存储访问、work source 不可用）。
// 与之相对，Processor 返回的其它错误都视为 item 级失败：记录后继续下一个条目。
type FatalError struct {
	Key string // 出错时正在处理的条目；拉取阶段失败时为空
	Err error
}

func (e *FatalError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("fatal: %v", e.Err)
	}
	return fmt.Sprintf("fatal (%s): %v", e.Key, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal 把 err 标记为 fatal；nil 保持为 nil，已是 fatal 的错误原样返回。
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return &FatalError{Err: err}
}

// IsFatal 判断 err 链上是否存在 *FatalError。
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Failure 是一条 item 级失败记录。
type Failure struct {
	Key string
	Err error
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
