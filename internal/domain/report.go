package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	// StatusNotReached 表示 run 在该条目之前被中止/取消（仅出现在 fatal/cancel 报告中）。
	StatusNotReached = "not_reached"
)

const (
	ImageStatusWritten = "written"
	ImageStatusSkipped = "skipped"
	ImageStatusPlanned = "planned" // dry-run
	ImageStatusFailed  = "failed"
)

const (
	ErrCodeNotFound     = "not_found"
	ErrCodeDecodeFailed = "decode_failed"
	ErrCodeFetchFailed  = "fetch_failed"
	ErrCodeIOFailed     = "io_failed"
	ErrCodeFatal        = "fatal"
)

const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	Source string `json:"source"`
	Filter string `json:"filter"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Outcome    string `json:"outcome"`
	FatalError string `json:"fatal_error,omitempty"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed     int `json:"processed"`
	Failed        int `json:"failed"`
	ImagesWritten int `json:"images_written"`
	ImagesSkipped int `json:"images_skipped"`
}

type ItemResult struct {
	Key       string        `json:"key"`
	Status    string        `json:"status"`
	ErrorCode string        `json:"error_code"`
	ErrorMsg  string        `json:"error_msg"`
	Images    []ImageResult `json:"images"`
}

type ImageResult struct {
	Src    string `json:"src"`
	Size   string `json:"size"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按 key 稳定排序
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Key < r.Items[j].Key })

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		}
		for _, img := range it.Images {
			switch img.Status {
			case ImageStatusWritten:
				s.ImagesWritten++
			case ImageStatusSkipped:
				s.ImagesSkipped++
			}
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
