package domain

import (
	"fmt"
	"regexp"
)

var productIDRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// CheckProductID 校验商品 id 是否可以安全地作为路径片段使用。
// CLI 只做 trim/去重；非法 id 在处理阶段作为 item 失败报告，而不是整体拒绝。
func CheckProductID(id string) error {
	if len(id) > 128 || !productIDRE.MatchString(id) {
		return fmt.Errorf("invalid product id %q", id)
	}
	return nil
}
