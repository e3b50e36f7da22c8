package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/domain"
)

var (
	_ run.Sink = (*barUI)(nil)
	_ run.Sink = (*lineUI)(nil)
	_ run.Sink = logSink{}
)

// barUI 是交互终端上的单行进度条：
//
//	3/120 [████░░░░]   2% 00:00:04 | SKU-1042
//
// 总数未知时只显示计数与耗时。overwrite=false（-v）时每个事件单独成行。
type barUI struct {
	w         io.Writer
	overwrite bool
	now       func() time.Time

	bar progress.Model
	key lipgloss.Style

	mu        sync.Mutex
	total     domain.Total
	startedAt time.Time
	lastWidth int
}

func newBarUI(w io.Writer, overwrite bool) *barUI {
	return &barUI{
		w:         w,
		overwrite: overwrite,
		now:       time.Now,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		key:       lipgloss.NewStyle().Bold(true),
	}
}

func (p *barUI) OnStart(total domain.Total) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.startedAt = p.now()
	p.printLocked(p.lineLocked(0, ""))
}

func (p *barUI) OnAdvance(st run.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked(p.lineLocked(done(st), st.LastMessage))
}

func (p *barUI) OnComplete(st run.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked(p.lineLocked(done(st), ""))
	if p.overwrite {
		fmt.Fprintln(p.w)
	}
}

func (p *barUI) lineLocked(n int, key string) string {
	elapsed := formatElapsed(p.now().Sub(p.startedAt))
	var sb strings.Builder
	if p.total.Known {
		pct := 0.0
		if p.total.N > 0 {
			pct = float64(n) / float64(p.total.N)
		}
		if pct > 1 {
			pct = 1
		}
		fmt.Fprintf(&sb, "%d/%d %s %3.0f%% %s", n, p.total.N, p.bar.ViewAs(pct), pct*100, elapsed)
	} else {
		fmt.Fprintf(&sb, "%d/? %s", n, elapsed)
	}
	if key != "" {
		sb.WriteString(" | ")
		sb.WriteString(p.key.Render(truncate(key, 60)))
	}
	return sb.String()
}

func (p *barUI) printLocked(line string) {
	if !p.overwrite {
		fmt.Fprintln(p.w, line)
		return
	}
	// 用空格覆盖上一行更长的残留部分。
	pad := ""
	if w := lipgloss.Width(line); w < p.lastWidth {
		pad = strings.Repeat(" ", p.lastWidth-w)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.lastWidth = lipgloss.Width(line)
}

// lineUI 是非交互环境（CI、重定向到文件）下的逐行输出。
//
// 单个条目长时间未完成时按 keepalive 间隔补一行，避免日志看起来卡住。
type lineUI struct {
	w   io.Writer
	now func() time.Time

	mu          sync.Mutex
	total       domain.Total
	startedAt   time.Time
	lastPrinted time.Time
	current     string
	pos         int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration
	stopCh             chan struct{}
}

func newLineUI(w io.Writer) *lineUI {
	return &lineUI{
		w:                  w,
		now:                time.Now,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *lineUI) OnStart(total domain.Total) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.startedAt = p.now()
	if total.Known {
		fmt.Fprintf(p.w, "Processing %d product(s)\n", total.N)
	} else {
		fmt.Fprintln(p.w, "Processing products (total unknown)")
	}
	p.lastPrinted = p.now()
	if p.tickerInterval > 0 {
		p.startTickerLocked()
	}
}

func (p *lineUI) OnAdvance(st run.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = done(st) + 1
	p.current = st.LastMessage
	fmt.Fprintf(p.w, "[%d/%s] %s\n", p.pos, st.Total.String(), st.LastMessage)
	p.lastPrinted = p.now()
}

func (p *lineUI) OnComplete(st run.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	fmt.Fprintf(p.w, "Done: %s processed=%d failed=%d elapsed=%s\n",
		st.Phase, st.Current, len(st.Failures), formatElapsed(p.now().Sub(p.startedAt)),
	)
}

func (p *lineUI) startTickerLocked() {
	stop := make(chan struct{})
	p.stopCh = stop
	interval := p.tickerInterval
	threshold := p.keepaliveThreshold

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.current != "" && p.now().Sub(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "[%d/%s] %s still running (elapsed %s)\n",
						p.pos, p.total.String(), p.current, formatElapsed(p.now().Sub(p.startedAt)),
					)
					p.lastPrinted = p.now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// logSink 在 -v 时把进度事件同时写入结构化日志。
type logSink struct {
	logger log.Logger
}

func (s logSink) OnStart(total domain.Total) {
	s.logger.Debug("run started", "total", total.String())
}

func (s logSink) OnAdvance(st run.State) {
	s.logger.Debug("processing item", "key", st.LastMessage, "pos", done(st)+1, "total", st.Total.String())
}

func (s logSink) OnComplete(st run.State) {
	s.logger.Debug("run finished", "phase", string(st.Phase), "processed", st.Current, "failed", len(st.Failures))
}

// done 是已经处理完（成功或失败）的条目数。
func done(st run.State) int { return st.Current + len(st.Failures) }

// truncate 按终端显示宽度截断，不会切断多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 3 {
		return runewidth.Truncate(s, max, "")
	}
	return runewidth.Truncate(s, max, "...")
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
