package storefront

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/catresize/internal/domain"
)

// HTTPStatusError 表示 storefront 返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d %s location=%s", e.StatusCode, e.URL, loc)
}

// FetchError 表示抓取商品页或原图失败（item 级，报告中记为 fetch_failed）。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ErrorCode 供报告层归类。
func (e *FetchError) ErrorCode() string { return domain.ErrCodeFetchFailed }
