package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cosmossdk.io/log"

	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
	"github.com/John-Robertt/catresize/internal/infra/httpx"
)

// Name 是 storefront 来源在缓存目录中的分段名。
const Name = "storefront"

const defaultMaxImageBytes = 32 << 20

// Client 把远端 storefront 当作 catalog：既是 WorkSource，也是原图加载器。
type Client struct {
	base *url.URL

	Pages  *http.Client
	Images *http.Client
	Cache  cache.Store

	// Refresh 为 true 时忽略已缓存的商品页，总是重新抓取。
	Refresh bool
	// MaxImageBytes 限制单张原图下载大小（<=0 使用默认值）。
	MaxImageBytes int64

	Logger log.Logger
}

// New 校验 baseURL 并按 opt 构造页面/图片两个 http.Client。
func New(baseURL string, opt httpx.Options, store cache.Store, logger log.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storefront base_url must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid storefront base_url %q", baseURL)
	}
	pages, err := httpx.NewPageClient(opt)
	if err != nil {
		return nil, err
	}
	images, err := httpx.NewImageClient(opt)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Client{base: u, Pages: pages, Images: images, Cache: store, Logger: logger}, nil
}

// ListingURL 返回第 page 页（从 1 开始）的列表页 URL。
func (c *Client) ListingURL(page int) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/catalog"
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// ProductURL 返回商品详情页 URL。
func (c *Client) ProductURL(productID string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/product/" + url.PathEscape(productID)
	u.RawQuery = ""
	return u.String()
}

// Produce 实现 run.Source。
//
// ByIDs：总数已知，原样产出（不存在的商品在处理时记为 item 失败）。
// All：总数未知，逐页拉取列表页，内存只与单页大小相关。
func (c *Client) Produce(_ context.Context, f domain.Filter) (domain.Total, run.Sequence, error) {
	if !f.IsAll() {
		ids := f.IDs()
		return domain.KnownTotal(len(ids)), run.NewSliceSequence(ids), nil
	}
	return domain.UnknownTotal(), &listingSeq{c: c, page: 1}, nil
}

// Count 实现 run.Counter：对 All 做一次完整的列表页遍历。
func (c *Client) Count(ctx context.Context, f domain.Filter) (int, error) {
	if !f.IsAll() {
		return len(f.IDs()), nil
	}
	seq := &listingSeq{c: c, page: 1}
	defer seq.Close()
	n := 0
	for {
		_, ok, err := seq.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// listingSeq 按页拉取商品 id。
//
// 终止条件：列表页 404，或者某页没有任何“上一页之外”的新 id
// （部分 storefront 越界时会重复返回最后一页）。
type listingSeq struct {
	c     *Client
	page  int
	buf   []string
	// seen 是本次 run 已产出的全部 id（只存字符串）。
	seen  map[string]struct{}
	index int
	done  bool
}

func (s *listingSeq) Next(ctx context.Context) (domain.WorkItem, bool, error) {
	for len(s.buf) == 0 {
		if s.done {
			return domain.WorkItem{}, false, nil
		}
		if err := s.fill(ctx); err != nil {
			return domain.WorkItem{}, false, err
		}
	}
	key := s.buf[0]
	s.buf = s.buf[1:]
	it := domain.WorkItem{Key: key, Index: s.index}
	s.index++
	return it, true, nil
}

func (s *listingSeq) fill(ctx context.Context) error {
	u := s.c.ListingURL(s.page)
	b, err := fetchURL(ctx, s.c.Pages, u, 0)
	if err != nil {
		var he *HTTPStatusError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			s.done = true
			return nil
		}
		return fmt.Errorf("fetch listing page %d: %w", s.page, err)
	}
	ids, err := ParseListing(b)
	if err != nil {
		return fmt.Errorf("parse listing page %d: %w", s.page, err)
	}

	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.seen[id]; !ok {
			s.seen[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	s.c.Logger.Debug("storefront listing page", "page", s.page, "ids", len(ids), "new", len(fresh))
	if len(fresh) == 0 {
		s.done = true
		return nil
	}

	s.buf = fresh
	s.page++
	return nil
}

func (s *listingSeq) Close() error {
	s.buf = nil
	s.seen = nil
	s.done = true
	return nil
}

// Load 实现 resize.Originals：取商品页（优先缓存），解析画廊并逐张下载原图。
func (c *Client) Load(ctx context.Context, productID string) ([]domain.Original, error) {
	if err := domain.CheckProductID(productID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProductNotFound, err)
	}
	pageURL := c.ProductURL(productID)
	html, err := c.productPage(ctx, productID, pageURL)
	if err != nil {
		return nil, err
	}
	refs, err := ParseProductPage(html, pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	limit := c.MaxImageBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	out := make([]domain.Original, 0, len(refs))
	for _, r := range refs {
		b, err := fetchURL(ctx, c.Images, r.URL, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &FetchError{URL: r.URL, Err: err}
		}
		out = append(out, domain.Original{Name: r.Name, Data: b})
	}
	return out, nil
}

// productPage 先读缓存；未命中时抓取并在可写时回填缓存。
func (c *Client) productPage(ctx context.Context, productID, pageURL string) ([]byte, error) {
	if !c.Refresh {
		b, ok, err := c.Cache.ReadPage(Name, productID)
		if err != nil {
			c.Logger.Debug("read cached page failed", "product", productID, "err", err)
		}
		if ok && len(b) > 0 {
			return b, nil
		}
	}

	b, err := fetchURL(ctx, c.Pages, pageURL, 0)
	if err != nil {
		var he *HTTPStatusError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	if !c.Cache.ReadOnly {
		if err := c.Cache.WritePage(Name, productID, b); err != nil {
			c.Logger.Debug("write cached page failed", "product", productID, "err", err)
		}
	}
	return b, nil
}

// fetchURL 发起 GET 并读取完整 body；limit>0 时超出即报错。
func fetchURL(ctx context.Context, c *http.Client, u string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
