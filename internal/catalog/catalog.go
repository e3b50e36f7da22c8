package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/domain"
)

const defaultBatch = 256

// Dir 是本地 catalog：<root>/<productID>/<image>。
//
// 每个一级子目录是一个商品，目录内的图片文件是该商品的原图。
type Dir struct {
	Root string
	// Batch 是一次 ReadDir 读取的目录项数（<=0 使用默认值）。
	Batch int
}

// New 返回以 root 为 catalog 根目录的 Dir。
func New(root string) Dir {
	return Dir{Root: filepath.Clean(root)}
}

// Produce 实现 run.Source。
//
// catalog 根目录不可用时直接报错（ByIDs 与 All 相同）。
// All 时不预先列目录：序列按批读取目录项，内存只与批大小相关；
// 目录项顺序由文件系统决定（不排序）。
func (d Dir) Produce(_ context.Context, f domain.Filter) (domain.Total, run.Sequence, error) {
	if err := d.checkRoot(); err != nil {
		return domain.UnknownTotal(), nil, err
	}
	if !f.IsAll() {
		ids := f.IDs()
		return domain.KnownTotal(len(ids)), run.NewSliceSequence(ids), nil
	}
	return domain.UnknownTotal(), &dirSeq{root: d.Root, batch: d.batch()}, nil
}

// Count 实现 run.Counter。
func (d Dir) Count(ctx context.Context, f domain.Filter) (int, error) {
	if err := d.checkRoot(); err != nil {
		return 0, err
	}
	if !f.IsAll() {
		return len(f.IDs()), nil
	}
	seq := &dirSeq{root: d.Root, batch: d.batch()}
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

// Load 实现 resize.Originals：读取商品目录下的全部原图（按文件名排序）。
func (d Dir) Load(ctx context.Context, productID string) ([]domain.Original, error) {
	if err := domain.CheckProductID(productID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProductNotFound, err)
	}
	dir := filepath.Join(d.Root, productID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(dir) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !IsImageExt(filepath.Ext(name)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.Original, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Original{Name: name, Data: b})
	}
	return out, nil
}

// IsImageExt 判断扩展名是否为可处理的原图格式（大小写不敏感）。
func IsImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

func (d Dir) batch() int {
	if d.Batch <= 0 {
		return defaultBatch
	}
	return d.Batch
}

func (d Dir) checkRoot() error {
	st, err := os.Stat(d.Root)
	if err != nil {
		return fmt.Errorf("catalog dir unavailable: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("catalog path is not a directory: %s", d.Root)
	}
	return nil
}

func isNotDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// dirSeq 惰性遍历 catalog 根目录的一级子目录。
type dirSeq struct {
	root  string
	batch int

	f     *os.File
	buf   []os.DirEntry
	index int
	eof   bool
}

func (s *dirSeq) Next(ctx context.Context) (domain.WorkItem, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.WorkItem{}, false, err
		}
		for len(s.buf) > 0 {
			e := s.buf[0]
			s.buf = s.buf[1:]
			if !isProductEntry(s.root, e) {
				continue
			}
			it := domain.WorkItem{Key: e.Name(), Index: s.index}
			s.index++
			return it, true, nil
		}
		if s.eof {
			return domain.WorkItem{}, false, nil
		}
		if err := s.fill(); err != nil {
			return domain.WorkItem{}, false, err
		}
	}
}

func (s *dirSeq) fill() error {
	if s.f == nil {
		f, err := os.Open(s.root)
		if err != nil {
			return fmt.Errorf("open catalog dir: %w", err)
		}
		s.f = f
	}
	entries, err := s.f.ReadDir(s.batch)
	s.buf = entries
	if errors.Is(err, io.EOF) {
		s.eof = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog dir: %w", err)
	}
	return nil
}

func (s *dirSeq) Close() error {
	s.buf = nil
	s.eof = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// isProductEntry：一级子目录（跟随符号链接）、非隐藏、名称是合法商品 id。
func isProductEntry(root string, e os.DirEntry) bool {
	name := e.Name()
	if strings.HasPrefix(name, ".") || domain.CheckProductID(name) != nil {
		return false
	}
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	st, err := os.Stat(filepath.Join(root, name))
	return err == nil && st.IsDir()
}
