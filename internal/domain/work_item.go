package domain

import "strconv"

// WorkItem 是一次 resize 的工作单元（一个商品）。
// 由 Sequence 逐个产出，不持久化；driver 同一时刻只持有一个。
type WorkItem struct {
	Key   string // 商品 id，也是进度条上显示的 message
	Index int    // 在序列中的 0-based 位置
}

// Total 是序列长度的提示值；Known=false 表示未知（全量且未做 count pass）。
type Total struct {
	N     int
	Known bool
}

func UnknownTotal() Total { return Total{} }

func KnownTotal(n int) Total {
	if n < 0 {
		n = 0
	}
	return Total{N: n, Known: true}
}

func (t Total) String() string {
	if !t.Known {
		return "?"
	}
	return strconv.Itoa(t.N)
}
