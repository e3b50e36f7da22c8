package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/fsx"
)

// Store 管理 <path>/cache/ 下的内部状态：storefront 页面缓存、resized 输出与 report。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - 其余情况允许写
type Store struct {
	Root     string // <path>（catalog 根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

// ErrNoRoot 表示 <path> 本身不存在；此时不在其下创建 cache/。
var ErrNoRoot = errors.New("cache: root does not exist")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Dir 返回 <path>/cache。
func (s Store) Dir() string { return filepath.Join(s.Root, "cache") }

// ResizedRoot 返回 resized 输出根目录 <path>/cache/resized。
func (s Store) ResizedRoot() string { return filepath.Join(s.Dir(), "resized") }

// ResizedDir 返回某尺寸下某商品的输出目录：<path>/cache/resized/<size>/<product>。
func (s Store) ResizedDir(sizeID, productID string) (string, error) {
	if err := domain.CheckProductID(productID); err != nil {
		return "", err
	}
	if !segmentRE.MatchString(sizeID) {
		return "", fmt.Errorf("invalid size id %q", sizeID)
	}
	return filepath.Join(s.ResizedRoot(), sizeID, productID), nil
}

// ReportPath 返回 <path>/cache/report.json。
func (s Store) ReportPath() string { return filepath.Join(s.Dir(), "report.json") }

// WriteReport 原子覆盖写入 report.json。
func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if fi, err := os.Stat(s.Root); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoRoot, s.Root)
	}
	return fsx.WriteFileAtomicReplace(s.Dir(), "report.json", b)
}

// PagePath 返回 storefront 商品页 HTML 缓存的绝对路径。
func (s Store) PagePath(source, productID string) (string, error) {
	src, err := cleanSource(source)
	if err != nil {
		return "", err
	}
	if err := domain.CheckProductID(productID); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir(), "pages", src, productID+".html"), nil
}

func (s Store) ReadPage(source, productID string) ([]byte, bool, error) {
	path, err := s.PagePath(source, productID)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WritePage(source, productID string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(source, productID)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), html)
}

var segmentRE = regexp.MustCompile(`^[a-z0-9_\-]+$`)

func cleanSource(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("source must not be empty")
	}
	// 最小约束：避免路径穿越。
	if !segmentRE.MatchString(p) {
		return "", fmt.Errorf("invalid source %q", p)
	}
	return p, nil
}
