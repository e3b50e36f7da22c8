package domain

import "errors"

// ErrProductNotFound 表示 catalog 中不存在该商品（item 级失败，不中止 run）。
var ErrProductNotFound = errors.New("product not found")

// Original 是一张待缩放的原图。
type Original struct {
	Name string // 文件名（不含目录），也是输出文件名的来源
	Data []byte
}
