package logging

import (
	"io"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
)

// Options 控制诊断日志的输出形式。
type Options struct {
	Verbose bool // debug 级别
	JSON    bool // JSON 行输出（便于采集）
	NoColor bool
}

// New 返回写往 w 的结构化 logger：默认 info 级别，Verbose 时为 debug。
func New(w io.Writer, opt Options) log.Logger {
	level := zerolog.InfoLevel
	if opt.Verbose {
		level = zerolog.DebugLevel
	}
	opts := []log.Option{log.LevelOption(level)}
	if opt.JSON {
		opts = append(opts, log.OutputJSONOption())
	} else {
		opts = append(opts, log.ColorOption(!opt.NoColor))
	}
	return log.NewLogger(w, opts...)
}
