package resize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
	"github.com/John-Robertt/catresize/internal/infra/imgx"
)

// Job 是一张原图在一个尺寸下的输出任务。
type Job struct {
	Original int // originals 下标
	Size     domain.ImageSize
	Format   string
	Dir      string
	Name     string
	// Exists 表示规划时输出已存在（非 force 时跳过）。
	Exists bool
}

// Dst 返回输出文件的绝对路径。
func (j Job) Dst() string { return filepath.Join(j.Dir, j.Name) }

// ItemPlan 是单个商品的确定性执行计划（不做任何写入）。
type ItemPlan struct {
	ProductID string
	Jobs      []Job
}

// Pending 返回需要生成的输出数；force 时已存在的输出也计入。
func (p ItemPlan) Pending(force bool) int {
	n := 0
	for _, j := range p.Jobs {
		if force || !j.Exists {
			n++
		}
	}
	return n
}

// ReadOutState 读取输出目录的现有文件名（只做 ReadDir，不读内容）。
// 目录不存在时返回空集合且不报错。
func ReadOutState(dir string) (map[string]struct{}, error) {
	names := map[string]struct{}{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}

// Plan 为 productID 的每张原图、每个尺寸生成一个 Job。
//
// 输出名由原图名与输出格式决定；同一尺寸下不同原图映射到同名输出时
// （例如 a.png 与 a.webp 都输出为 jpeg），后者追加 __N 序号。
func Plan(productID string, originals []domain.Original, sizes []domain.ImageSize, store cache.Store) (ItemPlan, error) {
	plan := ItemPlan{ProductID: productID, Jobs: make([]Job, 0, len(originals)*len(sizes))}
	for _, size := range sizes {
		dir, err := store.ResizedDir(size.ID, productID)
		if err != nil {
			return ItemPlan{}, err
		}
		existing, err := ReadOutState(dir)
		if err != nil {
			return ItemPlan{}, fmt.Errorf("read output dir: %w", err)
		}

		used := make(map[string]struct{}, len(originals))
		for i, o := range originals {
			format := imgx.OutputFormat(imgx.FormatByName(o.Name), size)
			name := allocName(imgx.OutputName(o.Name, format), used)
			used[name] = struct{}{}

			_, exists := existing[name]
			plan.Jobs = append(plan.Jobs, Job{
				Original: i,
				Size:     size,
				Format:   format,
				Dir:      dir,
				Name:     name,
				Exists:   exists,
			})
		}
	}
	return plan, nil
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", base, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
