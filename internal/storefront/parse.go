package storefront

import (
	"bytes"
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseListing 从 catalog 列表页 HTML 中提取商品 id（按文档顺序、页内去重）。
//
// 约定：每个商品卡片带 data-product-id 属性。
func ParseListing(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, 32)
	seen := make(map[string]struct{}, 32)
	doc.Find("[data-product-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-product-id")
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}

// ImageRef 是商品页上的一张原图引用。
type ImageRef struct {
	URL  string
	Name string
}

// ParseProductPage 从商品详情页中提取原图 URL。
//
// 规则（按优先级）：
// 1) 画廊条目 [data-gallery-role=image]：优先 data-full，其次 href/src
// 2) 兜底：img.product-image-photo 的 data-src / src
//
// 相对 URL 以 pageURL 为基准解析；同一 URL 只保留一次。商品没有图片时返回空切片。
func ParseProductPage(html []byte, pageURL string) ([]ImageRef, error) {
	if len(html) == 0 {
		return nil, errors.New("empty html")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var urls []string
	doc.Find("[data-gallery-role=image]").Each(func(_ int, s *goquery.Selection) {
		urls = append(urls, firstAttr(s, "data-full", "href", "src"))
	})
	if len(urls) == 0 {
		doc.Find("img.product-image-photo").Each(func(_ int, s *goquery.Selection) {
			urls = append(urls, firstAttr(s, "data-src", "src"))
		})
	}

	refs := make([]ImageRef, 0, len(urls))
	seenURL := make(map[string]struct{}, len(urls))
	seenName := make(map[string]int, len(urls))
	for _, u := range urls {
		abs := resolveURL(pageURL, u)
		if abs == "" {
			continue
		}
		if _, ok := seenURL[abs]; ok {
			continue
		}
		seenURL[abs] = struct{}{}

		name := imageName(abs)
		if name == "" {
			continue
		}
		// 不同 URL 可能同名（例如 /a/1.jpg 与 /b/1.jpg）：追加序号避免输出互相覆盖。
		if n := seenName[name]; n > 0 {
			ext := path.Ext(name)
			name = strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
		}
		seenName[imageName(abs)]++
		refs = append(refs, ImageRef{URL: abs, Name: name})
	}
	return refs, nil
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func imageName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return ""
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return name
	default:
		return ""
	}
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
