package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 2
	defaultBackoff  = 200 * time.Millisecond
)

// UserAgent 是所有 storefront 请求携带的固定 UA（版本号由 main 在启动时覆盖）。
var UserAgent = "catresize/dev"

// Options 是 storefront client 的网络配置。
type Options struct {
	ProxyURL string
	// Token 非空时以 "Authorization: Bearer <token>" 发送（私有 storefront / staging 环境）。
	Token string
}

// Transport 把“固定 UA + 鉴权头 + 代理 + 有界重试”固化为统一策略。
//
// storefront 包只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	Token string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// Backoff 是重试之间的线性退避基数（第 n 次重试等待 n*Backoff）。
	Backoff time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 && !t.wait(req, attempt) {
			break
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", UserAgent)
		}
		if t.Token != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+t.Token)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if err == nil {
			// 网关类 5xx：最后一次尝试时原样返回给调用方，其余情况丢弃 body 后重试。
			if attempt == max {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			lastErr = nil
			continue
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = req.Context().Err()
	}
	return nil, lastErr
}

func (t *Transport) wait(req *http.Request, attempt int) bool {
	d := t.Backoff * time.Duration(attempt)
	if d <= 0 {
		return req.Context().Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// NewPageClient 构造用于 storefront 页面抓取的 HTTP client。
//
// 规则：
// - ProxyURL 非空：走代理，且禁用 keep-alive（每请求新连接）
// - 有界重试 + 总超时
func NewPageClient(opt Options) (*http.Client, error) {
	return newClient(opt, defaultTimeout)
}

// NewImageClient 构造用于原图下载的 HTTP client（原图可能较大，超时更宽松）。
func NewImageClient(opt Options) (*http.Client, error) {
	return newClient(opt, 2*defaultTimeout)
}

func newClient(opt Options, timeout time.Duration) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	proxyURL := strings.TrimSpace(opt.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy url needs a scheme and host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	tr := &Transport{
		Base:     base,
		Token:    strings.TrimSpace(opt.Token),
		RetryMax: defaultRetryMax,
		Backoff:  defaultBackoff,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
