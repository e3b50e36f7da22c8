package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/catresize/internal/app/resize"
	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/config"
	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
)

// buildReport 把 driver 结果与每个条目的处理记录合并为 RunReport。
//
// 对 ByIDs，中止/取消时尚未处理的 id 以 not_reached 出现在报告中，
// 让调用方能区分“失败”与“没轮到”。
func buildReport(eff config.EffectiveConfig, filter domain.Filter, res run.Result, items []domain.ItemResult, started, finished time.Time) domain.RunReport {
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Path:       eff.Path,
		Source:     eff.Source,
		Filter:     filter.String(),
		DryRun:     eff.DryRun,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome(res.Phase),
		Items:      append([]domain.ItemResult(nil), items...),
	}
	if res.Fatal != nil {
		rr.FatalError = res.Fatal.Error()
	}

	// Processor 记录不到的失败（例如自定义 Processor）以 driver 结果补齐。
	seen := make(map[string]struct{}, len(rr.Items))
	for _, it := range rr.Items {
		seen[it.Key] = struct{}{}
	}
	for _, f := range res.Failed {
		if _, ok := seen[f.Key]; ok {
			continue
		}
		seen[f.Key] = struct{}{}
		rr.Items = append(rr.Items, domain.ItemResult{
			Key:       f.Key,
			Status:    domain.StatusFailed,
			ErrorCode: resize.ErrorCode(f.Err),
			ErrorMsg:  f.Err.Error(),
		})
	}

	if res.Phase != run.PhaseCompleted && !filter.IsAll() {
		for _, id := range filter.IDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			rr.Items = append(rr.Items, domain.ItemResult{Key: id, Status: domain.StatusNotReached})
		}
	}

	rr.Finalize()
	return rr
}

func outcome(p run.Phase) string {
	switch p {
	case run.PhaseAborted:
		return domain.OutcomeAborted
	case run.PhaseCancelled:
		return domain.OutcomeCancelled
	default:
		return domain.OutcomeCompleted
	}
}

func writeReport(store cache.Store, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return store.WriteReport(b)
}

// emitReportJSON 在 stdout 非 TTY 时输出且仅输出一个 RunReport JSON。
func emitReportJSON(w io.Writer, rr domain.RunReport) {
	_ = json.NewEncoder(w).Encode(rr)
}
