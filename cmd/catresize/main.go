package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/John-Robertt/catresize/internal/infra/httpx"
	"github.com/John-Robertt/catresize/internal/version"
)

const (
	exitOK         = 0
	exitFatal      = 1
	exitValidation = 2
	exitFailures   = 3
	exitCancelled  = 130
)

// exitError 携带进程退出码；错误信息已由命令自行输出。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWith(code int) error {
	if code == exitOK {
		return nil
	}
	return &exitError{code: code}
}

// streams 是命令可见的标准流；TTY 标记在启动时探测一次。
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer

	inTTY  bool
	outTTY bool
	errTTY bool
}

func stdStreams() streams {
	return streams{
		in:     os.Stdin,
		out:    os.Stdout,
		err:    os.Stderr,
		inTTY:  isTerminal(os.Stdin),
		outTTY: isTerminal(os.Stdout),
		errTTY: isTerminal(os.Stderr),
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func main() {
	httpx.UserAgent = version.Get().UserAgent()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, stdStreams(), os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, st streams, args []string) int {
	root := newRootCmd(st)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 自身的参数/子命令错误。
	fmt.Fprintf(st.err, "Error: %v\n", err)
	fmt.Fprintf(st.err, "Run '%s --help' for usage.\n", root.CommandPath())
	return exitValidation
}

type globalOptions struct {
	verbose bool
	noColor bool
	logJSON bool
}

func newRootCmd(st streams) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "catresize",
		Short:         "Regenerate resized catalog product images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(st.in)
	root.SetOut(st.out)
	root.SetErr(st.err)

	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output (debug logs, one progress line per product)")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&g.logJSON, "log-json", false, "emit diagnostic logs as JSON lines on stderr")

	root.AddCommand(newResizeCmd(st, g))
	root.AddCommand(newVersionCmd(st))
	return root
}

func newVersionCmd(st streams) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := version.Get().Format(output)
			if err != nil {
				fmt.Fprintf(st.err, "Error: %v\n", err)
				return exitWith(exitValidation)
			}
			fmt.Fprint(st.out, s)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text|json|yaml")
	return cmd
}
