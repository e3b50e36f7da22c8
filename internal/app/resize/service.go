package resize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"cosmossdk.io/log"

	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
	"github.com/John-Robertt/catresize/internal/infra/fsx"
	"github.com/John-Robertt/catresize/internal/infra/imgx"
)

// Originals 加载某个商品的全部原图。
//
// 商品不存在时返回包装了 domain.ErrProductNotFound 的错误。
type Originals interface {
	Load(ctx context.Context, productID string) ([]domain.Original, error)
}

// Service 为每个商品生成全部尺寸的缩放图，实现 run.Processor。
type Service struct {
	Originals Originals
	Sizes     []domain.ImageSize
	Store     cache.Store

	// DryRun 只解码与缩放，不写任何文件。
	DryRun bool
	// Force 重新生成已存在的输出。
	Force bool

	Logger log.Logger

	mu      sync.Mutex
	results []domain.ItemResult
}

// New 返回使用默认 nop logger 的 Service。
func New(orig Originals, store cache.Store, sizes []domain.ImageSize) *Service {
	return &Service{Originals: orig, Store: store, Sizes: sizes, Logger: log.NewNopLogger()}
}

// Results 返回已处理条目的结果副本（按处理顺序）。
func (s *Service) Results() []domain.ItemResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ItemResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *Service) record(r domain.ItemResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *Service) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

// Process 处理单个商品。
//
// 返回值语义：
// - nil：全部尺寸已生成或已存在
// - run.Fatal(...)：输出存储不可用，run 应中止
// - ctx 取消错误：原样返回
// - 其它：item 级失败（已记录到 Results）
func (s *Service) Process(ctx context.Context, item domain.WorkItem) error {
	if !s.DryRun {
		if err := fsx.EnsureRoot(s.Store.ResizedRoot()); err != nil {
			s.record(failed(item.Key, nil, domain.ErrCodeFatal, err))
			return run.Fatal(err)
		}
	}

	originals, err := s.Originals.Load(ctx, item.Key)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.record(failed(item.Key, nil, ErrorCode(err), err))
		return err
	}

	plan, err := Plan(item.Key, originals, s.Sizes, s.Store)
	if err != nil {
		if fsx.IsStorageFatal(err) {
			s.record(failed(item.Key, nil, domain.ErrCodeFatal, err))
			return run.Fatal(err)
		}
		s.record(failed(item.Key, nil, domain.ErrCodeIOFailed, err))
		return err
	}

	s.logger().Debug("product planned", "product", item.Key, "originals", len(originals), "outputs", len(plan.Jobs), "pending", plan.Pending(s.Force))

	decoded := make(map[int]image.Image, len(originals))
	images := make([]domain.ImageResult, 0, len(plan.Jobs))
	var firstErr error
	for _, job := range plan.Jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := domain.ImageResult{
			Src:  originals[job.Original].Name,
			Size: job.Size.ID,
			Dst:  s.rel(job.Dst()),
		}
		if job.Exists && !s.Force {
			res.Status = domain.ImageStatusSkipped
			images = append(images, res)
			continue
		}

		img, ok := decoded[job.Original]
		if !ok {
			var derr error
			img, _, derr = imgx.Decode(originals[job.Original].Data)
			if derr != nil {
				derr = fmt.Errorf("%s: %w", originals[job.Original].Name, derr)
				// 解码失败的原图在后续尺寸中不再重试。
				decoded[job.Original] = nil
				res.Status = domain.ImageStatusFailed
				images = append(images, res)
				if firstErr == nil {
					firstErr = derr
				}
				continue
			}
			decoded[job.Original] = img
		}
		if img == nil {
			res.Status = domain.ImageStatusFailed
			images = append(images, res)
			continue
		}

		b, err := imgx.Render(img, job.Format, job.Size)
		if err != nil {
			res.Status = domain.ImageStatusFailed
			images = append(images, res)
			if firstErr == nil {
				firstErr = fmt.Errorf("encode %s: %w", job.Name, err)
			}
			continue
		}
		if s.DryRun {
			res.Status = domain.ImageStatusPlanned
			images = append(images, res)
			continue
		}

		status, err := s.write(job, b)
		if err != nil {
			if fsx.IsStorageFatal(err) {
				res.Status = domain.ImageStatusFailed
				images = append(images, res)
				r := failed(item.Key, images, domain.ErrCodeFatal, err)
				s.record(r)
				return run.Fatal(err)
			}
			res.Status = domain.ImageStatusFailed
			images = append(images, res)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Status = status
		images = append(images, res)
	}

	if firstErr != nil {
		s.record(failed(item.Key, images, ErrorCode(firstErr), firstErr))
		return firstErr
	}
	s.record(domain.ItemResult{Key: item.Key, Status: domain.StatusProcessed, Images: images})
	s.logger().Debug("product resized", "product", item.Key, "images", len(images))
	return nil
}

// write 落盘一个输出；非 force 时若并发出现同名文件则视为已存在。
func (s *Service) write(job Job, b []byte) (string, error) {
	if s.Force {
		if err := fsx.WriteFileAtomicReplace(job.Dir, job.Name, b); err != nil {
			return "", fmt.Errorf("write %s: %w", job.Dst(), err)
		}
		return domain.ImageStatusWritten, nil
	}
	err := fsx.WriteFileAtomicNoOverwrite(job.Dir, job.Name, b)
	if errors.Is(err, os.ErrExist) {
		return domain.ImageStatusSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", job.Dst(), err)
	}
	return domain.ImageStatusWritten, nil
}

// rel 把输出路径转换为相对 catalog 根目录的 slash 路径（报告中使用）。
func (s *Service) rel(p string) string {
	r, err := filepath.Rel(s.Store.Root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func failed(key string, images []domain.ImageResult, code string, err error) domain.ItemResult {
	return domain.ItemResult{
		Key:       key,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  err.Error(),
		Images:    images,
	}
}

// ErrorCode 把 item 级错误归类为报告中的 error_code。
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if run.IsFatal(err) {
		return domain.ErrCodeFatal
	}
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.ErrCodeNotFound
	}
	var de *imgx.DecodeError
	if errors.As(err, &de) {
		return domain.ErrCodeDecodeFailed
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return domain.ErrCodeIOFailed
}
