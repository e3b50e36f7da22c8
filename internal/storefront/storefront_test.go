package storefront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
	"github.com/John-Robertt/catresize/internal/infra/httpx"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	return buf.Bytes()
}

func listingHTML(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="product-item" data-product-id="%s">p</li>`, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

// catalogServer 模拟一个分页 storefront：pages[i] 是第 i+1 页的 id。
type catalogServer struct {
	pages        [][]string
	listingHits  atomic.Int32
	productHits  atomic.Int32
	lastPageMode string // "404"（默认）或 "repeat"
}

func (cs *catalogServer) handler(t *testing.T) http.Handler {
	img := tinyPNG(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		cs.listingHits.Add(1)
		n, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if n >= 1 && n <= len(cs.pages) {
			_, _ = w.Write([]byte(listingHTML(cs.pages[n-1]...)))
			return
		}
		if cs.lastPageMode == "repeat" && len(cs.pages) > 0 {
			_, _ = w.Write([]byte(listingHTML(cs.pages[len(cs.pages)-1]...)))
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/product/", func(w http.ResponseWriter, r *http.Request) {
		cs.productHits.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/product/")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		if id == "broken" {
			_, _ = w.Write([]byte(`<div data-gallery-role="image" data-full="/media/gone.jpg"></div>`))
			return
		}
		fmt.Fprintf(w, `<html><body>
<div class="gallery">
  <a data-gallery-role="image" data-full="/media/%[1]s/a.png" href="/media/%[1]s/a-small.png"></a>
  <a data-gallery-role="image" href="/media/%[1]s/b.png"></a>
  <a data-gallery-role="image" data-full="/media/%[1]s/a.png"></a>
</div></body></html>`, id)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "gone.jpg") {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	return mux
}

func newTestClient(t *testing.T, baseURL string, store cache.Store) *Client {
	t.Helper()
	c, err := New(baseURL, httpx.Options{}, store, nil)
	require.NoError(t, err)
	return c
}

func drain(t *testing.T, c *Client, f domain.Filter) (domain.Total, []domain.WorkItem) {
	t.Helper()
	total, seq, err := c.Produce(context.Background(), f)
	require.NoError(t, err)
	defer seq.Close()
	var items []domain.WorkItem
	for {
		it, ok, err := seq.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return total, items
		}
		items = append(items, it)
	}
}

func keysOf(items []domain.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Key)
	}
	return out
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, in := range []string{"", "  ", "not a url", "/relative"} {
		_, err := New(in, httpx.Options{}, cache.Store{}, nil)
		assert.Error(t, err, "base_url=%q", in)
	}
}

func TestURLs(t *testing.T) {
	c := newTestClient(t, "https://shop.example.com/store/", cache.Store{})
	assert.Equal(t, "https://shop.example.com/store/catalog?page=3", c.ListingURL(3))
	assert.Equal(t, "https://shop.example.com/store/product/SKU-1", c.ProductURL("SKU-1"))
}

func TestProduce_ByIDsDoesNotTouchNetwork(t *testing.T) {
	cs := &catalogServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	total, items := drain(t, c, domain.ByIDs("42", "7", "42"))

	assert.Equal(t, domain.KnownTotal(2), total)
	assert.Equal(t, []string{"42", "7"}, keysOf(items))
	assert.Equal(t, int32(0), cs.listingHits.Load())
}

func TestProduce_AllPaginatesLazily(t *testing.T) {
	cs := &catalogServer{pages: [][]string{{"a", "b"}, {"c"}, {"d", "e"}}}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	total, seq, err := c.Produce(context.Background(), domain.AllProducts())
	require.NoError(t, err)
	defer seq.Close()
	assert.False(t, total.Known)
	assert.Equal(t, int32(0), cs.listingHits.Load(), "Produce 不应预取")

	it, ok, err := seq.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.WorkItem{Key: "a", Index: 0}, it)
	assert.Equal(t, int32(1), cs.listingHits.Load())

	_, _, _ = seq.Next(context.Background())
	assert.Equal(t, int32(1), cs.listingHits.Load(), "同一页内不应再次请求")

	_, items := drain(t, c, domain.AllProducts())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keysOf(items))
	for i, it := range items {
		assert.Equal(t, i, it.Index)
	}
}

func TestProduce_AllStopsOnRepeatedPage(t *testing.T) {
	cs := &catalogServer{pages: [][]string{{"a", "b"}, {"c"}}, lastPageMode: "repeat"}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	_, items := drain(t, c, domain.AllProducts())
	assert.Equal(t, []string{"a", "b", "c"}, keysOf(items))
}

func TestProduce_AllSkipsIDsSeenOnEarlierPages(t *testing.T) {
	cs := &catalogServer{pages: [][]string{{"a", "b"}, {"c"}, {"a", "d"}, {"b", "c"}}}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	_, items := drain(t, c, domain.AllProducts())
	assert.Equal(t, []string{"a", "b", "c", "d"}, keysOf(items))
	for i, it := range items {
		assert.Equal(t, i, it.Index)
	}
	// 第 4 页没有新 id，遍历在此结束，不再请求第 5 页。
	assert.EqualValues(t, 4, cs.listingHits.Load())
}

func TestProduce_ListingFailureIsSequenceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	_, seq, err := c.Produce(context.Background(), domain.AllProducts())
	require.NoError(t, err)
	_, ok, err := seq.Next(context.Background())
	assert.False(t, ok)

	var he *HTTPStatusError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.StatusCode)
}

func TestCount(t *testing.T) {
	cs := &catalogServer{pages: [][]string{{"a", "b"}, {"c"}}}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{})
	n, err := c.Count(context.Background(), domain.AllProducts())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Count(context.Background(), domain.ByIDs("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoad_DownloadsGalleryAndCachesPage(t *testing.T) {
	cs := &catalogServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	store := cache.New(t.TempDir(), false)
	c := newTestClient(t, srv.URL, store)

	orig, err := c.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, orig, 2)
	assert.Equal(t, "a.png", orig[0].Name)
	assert.Equal(t, "b.png", orig[1].Name)
	assert.NotEmpty(t, orig[0].Data)

	_, ok, err := store.ReadPage(Name, "42")
	require.NoError(t, err)
	assert.True(t, ok, "商品页应写入缓存")

	_, err = c.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.productHits.Load(), "第二次应命中缓存")

	c.Refresh = true
	_, err = c.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.productHits.Load())
}

func TestLoad_ReadOnlyCacheIsNotWritten(t *testing.T) {
	cs := &catalogServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	store := cache.New(t.TempDir(), true)
	c := newTestClient(t, srv.URL, store)
	_, err := c.Load(context.Background(), "42")
	require.NoError(t, err)

	_, ok, err := store.ReadPage(Name, "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_ErrorClassification(t *testing.T) {
	cs := &catalogServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv.URL, cache.Store{ReadOnly: true})

	_, err := c.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound), "err=%v", err)

	_, err = c.Load(context.Background(), "../etc")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound), "err=%v", err)

	_, err = c.Load(context.Background(), "broken")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.ErrCodeFetchFailed, fe.ErrorCode())
	var he *HTTPStatusError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusGone, he.StatusCode)
}

func TestLoad_ImageSizeLimit(t *testing.T) {
	cs := &catalogServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, cache.Store{ReadOnly: true})
	c.MaxImageBytes = 8
	_, err := c.Load(context.Background(), "42")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}
