package domain

import "strings"

// Filter 描述一次 resize 要覆盖的商品范围：要么全量（All），要么显式 id 列表。
//
// 约束：ids 已 trim、去空、去重，且保持首次出现的顺序；空列表等价于 All。
type Filter struct {
	ids []string
}

// AllProducts 返回全量 Filter。
func AllProducts() Filter { return Filter{} }

// ByIDs 用显式 id 构造 Filter（同样会 trim/去空/去重）。
func ByIDs(ids ...string) Filter { return ParseFilter(ids) }

// ParseFilter 把 CLI 位置参数规范化为 Filter。
//
// 例如 ["  42 ", "", "42", "7"] => ByIDs{"42","7"}。
func ParseFilter(args []string) Filter {
	seen := make(map[string]struct{}, len(args))
	ids := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		ids = append(ids, a)
	}
	if len(ids) == 0 {
		return Filter{}
	}
	return Filter{ids: ids}
}

func (f Filter) IsAll() bool { return len(f.ids) == 0 }

// IDs 返回 id 列表的副本；All 时返回 nil。
func (f Filter) IDs() []string {
	if f.IsAll() {
		return nil
	}
	return append([]string(nil), f.ids...)
}

// String 用于开始提示与 report：All 返回 "all"，否则逗号拼接。
func (f Filter) String() string {
	if f.IsAll() {
		return "all"
	}
	return strings.Join(f.ids, ",")
}
