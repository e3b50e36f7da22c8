package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Console 是面向用户的彩色输出（开始提示、最终结果、错误行）。
//
// 诊断日志走 cosmossdk.io/log（见 New），两者互不替代。
type Console struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
}

// NewConsole 创建 Console；out 通常为 stderr（stdout 留给 JSON 报告）。
func NewConsole(out, errOut io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Console{out: out, errOut: errOut}
}

// SetNoColor 关闭颜色（同时影响 fatih/color 的全局开关）。
func (c *Console) SetNoColor(noColor bool) {
	color.NoColor = noColor
}

func (c *Console) SetVerbose(verbose bool) { c.verbose = verbose }

// Verbose 返回是否开启了详细输出。
func (c *Console) Verbose() bool { return c.verbose }

func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Notice(format string, args ...any) {
	color.New(color.FgCyan).Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Warn(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(c.errOut, format+"\n", args...)
}

// Error 输出单行错误，统一带 "Error: " 前缀。
func (c *Console) Error(format string, args ...any) {
	color.New(color.FgRed).Fprintf(c.errOut, "Error: "+format+"\n", args...)
}

func (c *Console) Debug(format string, args ...any) {
	if !c.verbose {
		return
	}
	color.New(color.FgHiBlack).Fprintf(c.out, "[debug] "+format+"\n", args...)
}
