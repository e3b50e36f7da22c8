package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/John-Robertt/catresize/internal/domain"
)

func TestProduce_AllYieldsEveryProductDir(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"42", "7", "SKU-9", "a", "b", "c", "d"} {
		touch(t, filepath.Join(root, id, "1.jpg"))
	}
	touch(t, filepath.Join(root, "stray.jpg"))
	touch(t, filepath.Join(root, ".hidden", "1.jpg"))

	// 小批量，覆盖跨批读取。
	d := Dir{Root: root, Batch: 2}
	total, keys := drain(t, d, domain.AllProducts())
	if total.Known {
		t.Fatalf("All 的总数应为未知，实际=%v", total)
	}
	sort.Strings(keys)
	want := []string{"42", "7", "SKU-9", "a", "b", "c", "d"}
	if len(keys) != len(want) {
		t.Fatalf("期望 %d 个商品，实际 %d：%v", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("期望 keys=%v，实际=%v", want, keys)
		}
	}
}

func TestProduce_IndexIsSequential(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"a", "b", "c"} {
		touch(t, filepath.Join(root, id, "1.png"))
	}
	_, seq, err := New(root).Produce(context.Background(), domain.AllProducts())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer seq.Close()
	for i := 0; i < 3; i++ {
		it, ok, err := seq.Next(context.Background())
		if err != nil || !ok {
			t.Fatalf("期望第 %d 项存在：ok=%v err=%v", i, ok, err)
		}
		if it.Index != i {
			t.Fatalf("期望 index=%d，实际=%d", i, it.Index)
		}
	}
}

func TestProduce_ByIDsKeepsRequestedKeys(t *testing.T) {
	d := New(t.TempDir())
	total, keys := drain(t, d, domain.ByIDs("42", "nope", "42"))
	if !total.Known || total.N != 2 {
		t.Fatalf("期望已知总数 2，实际=%v", total)
	}
	if len(keys) != 2 || keys[0] != "42" || keys[1] != "nope" {
		t.Fatalf("期望 [42 nope]，实际=%v", keys)
	}
}

func TestProduce_MissingRoot(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "missing"))
	for _, f := range []domain.Filter{domain.AllProducts(), domain.ByIDs("1", "2")} {
		if _, _, err := d.Produce(context.Background(), f); err == nil {
			t.Fatalf("期望 catalog 目录缺失时报错（filter=%q）", f.String())
		}
	}
}

func TestNext_RespectsCancelledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "1.jpg"))
	_, seq, err := New(root).Produce(context.Background(), domain.AllProducts())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer seq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := seq.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际=%v", err)
	}
}

func TestCount(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"a", "b", "c"} {
		touch(t, filepath.Join(root, id, "1.jpg"))
	}
	n, err := Dir{Root: root, Batch: 1}.Count(context.Background(), domain.AllProducts())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n != 3 {
		t.Fatalf("期望 3，实际 %d", n)
	}
}

func TestLoad_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "42", "b.PNG"))
	touch(t, filepath.Join(root, "42", "a.jpg"))
	touch(t, filepath.Join(root, "42", "notes.txt"))
	touch(t, filepath.Join(root, "42", ".DS_Store.jpg"))
	touch(t, filepath.Join(root, "42", "sub", "c.jpg"))

	got, err := New(root).Load(context.Background(), "42")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 || got[0].Name != "a.jpg" || got[1].Name != "b.PNG" {
		t.Fatalf("期望 [a.jpg b.PNG]，实际=%v", names(got))
	}
	if string(got[0].Data) != "x" {
		t.Fatalf("期望读取文件内容")
	}
}

func TestLoad_NotFound(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "file-not-dir"))

	for _, id := range []string{"missing", "file-not-dir", "../escape"} {
		_, err := New(root).Load(context.Background(), id)
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("id=%q 期望 ErrProductNotFound，实际=%v", id, err)
		}
	}
}

func TestIsImageExt(t *testing.T) {
	for _, ext := range []string{".jpg", ".JPEG", ".png", ".gif", ".WebP"} {
		if !IsImageExt(ext) {
			t.Fatalf("期望 %q 为图片扩展名", ext)
		}
	}
	for _, ext := range []string{"", ".txt", ".mp4", "jpg"} {
		if IsImageExt(ext) {
			t.Fatalf("期望 %q 不是图片扩展名", ext)
		}
	}
}

func drain(t *testing.T, d Dir, f domain.Filter) (domain.Total, []string) {
	t.Helper()
	total, seq, err := d.Produce(context.Background(), f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer seq.Close()
	var keys []string
	for {
		it, ok, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if !ok {
			return total, keys
		}
		keys = append(keys, it.Key)
	}
}

func names(in []domain.Original) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		out = append(out, o.Name)
	}
	return out
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
