package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/catresize/internal/app/resize"
	"github.com/John-Robertt/catresize/internal/app/run"
	"github.com/John-Robertt/catresize/internal/catalog"
	"github.com/John-Robertt/catresize/internal/config"
	"github.com/John-Robertt/catresize/internal/domain"
	"github.com/John-Robertt/catresize/internal/infra/cache"
	"github.com/John-Robertt/catresize/internal/infra/httpx"
	"github.com/John-Robertt/catresize/internal/logging"
	"github.com/John-Robertt/catresize/internal/storefront"
)

type resizeOptions struct {
	path       string
	configFile string
	source     string

	strict bool
	force  bool
	dryRun bool
	count  bool
	yes    bool
}

func newResizeCmd(st streams, g *globalOptions) *cobra.Command {
	o := &resizeOptions{}
	cmd := &cobra.Command{
		Use:     "catalog:images:resize [products...]",
		Aliases: []string{"resize"},
		Short:   "Create resized product images",
		Long: `Create resized product images for every configured theme size.

Without product ids the whole catalog is processed. Product ids are trimmed
and duplicates are ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				Path:       o.path,
				ConfigFile: o.configFile,
				Source:     o.source,
				SourceSet:  cmd.Flags().Changed("source"),
				DryRun:     o.dryRun,
				DryRunSet:  cmd.Flags().Changed("dry-run"),
				Strict:     o.strict,
				StrictSet:  cmd.Flags().Changed("strict"),
			}
			return exitWith(runResize(cmd.Context(), st, g, o, cli, args))
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.path, "path", "", "catalog root (default: config path, then current directory)")
	f.StringVar(&o.configFile, "config", "", "explicit config file (.toml or .yaml)")
	f.StringVar(&o.source, "source", config.DefaultSource, "product source: local|storefront")
	f.BoolVar(&o.strict, "strict", false, "exit with code 3 when any product fails")
	f.BoolVar(&o.force, "force", false, "regenerate images that already exist")
	f.BoolVar(&o.dryRun, "dry-run", false, "decode and scale without writing anything")
	f.BoolVar(&o.count, "count", false, "count the catalog first so progress can show a percentage")
	f.BoolVarP(&o.yes, "yes", "y", false, "do not ask for confirmation when processing the whole catalog")
	return cmd
}

// confirmAll 询问是否处理整个 catalog；拒绝返回 false。
var confirmAll = func() (bool, error) {
	p := promptui.Prompt{
		Label:     "Resize images for every product in the catalog",
		IsConfirm: true,
	}
	_, err := p.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrEOF):
		return false, nil
	default:
		return false, err
	}
}

// app 是一次 resize 运行所需的全部协作者。
type app struct {
	eff    config.EffectiveConfig
	store  cache.Store
	source run.Source
	svc    *resize.Service
	logger log.Logger
}

func runResize(ctx context.Context, st streams, g *globalOptions, o *resizeOptions, cli config.CLIArgs, args []string) int {
	con := logging.NewConsole(st.err, st.err)
	con.SetNoColor(g.noColor || !st.errTTY)
	con.SetVerbose(g.verbose)

	filter := domain.ParseFilter(args)

	cwd, err := os.Getwd()
	if err != nil {
		con.Error("cannot read current directory: %v", err)
		return exitFatal
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		con.Error("%v", err)
		return exitValidation
	}

	logger := logging.New(st.err, logging.Options{Verbose: g.verbose, JSON: g.logJSON, NoColor: g.noColor || !st.errTTY})
	a, err := newApp(eff, o, logger)
	if err != nil {
		con.Error("%v", err)
		return exitValidation
	}

	if filter.IsAll() {
		con.Notice("No product ids given. All catalog images will be generated.")
		if !o.yes && st.inTTY && st.errTTY {
			ok, err := confirmAll()
			if errors.Is(err, promptui.ErrInterrupt) {
				return exitCancelled
			}
			if err != nil {
				con.Error("%v", err)
				return exitFatal
			}
			if !ok {
				con.Info("Aborted. No images were generated.")
				return exitOK
			}
		}
	} else {
		con.Notice("Start generating images for product(s): %s", filter.String())
	}
	if eff.DryRun {
		con.Warn("Dry run: nothing will be written.")
	}

	return a.run(ctx, st, con, filter, o.count)
}

func newApp(eff config.EffectiveConfig, o *resizeOptions, logger log.Logger) (*app, error) {
	store := cache.New(eff.Path, eff.DryRun)

	var (
		src  run.Source
		orig resize.Originals
	)
	switch eff.Source {
	case config.SourceStorefront:
		c, err := storefront.New(eff.BaseURL, httpx.Options{ProxyURL: eff.ProxyURL, Token: eff.Token}, store, logger.With("module", "storefront"))
		if err != nil {
			return nil, err
		}
		c.Refresh = o.force
		src, orig = c, c
	default:
		d := catalog.New(eff.CatalogDir())
		src, orig = d, d
	}

	svc := resize.New(orig, store, eff.Sizes)
	svc.DryRun = eff.DryRun
	svc.Force = o.force
	svc.Logger = logger.With("module", "resize")

	return &app{eff: eff, store: store, source: src, svc: svc, logger: logger}, nil
}

func (a *app) run(ctx context.Context, st streams, con *logging.Console, filter domain.Filter, count bool) int {
	started := time.Now()

	total, seq, err := a.source.Produce(ctx, filter)
	if err == nil && count && filter.IsAll() {
		total, err = a.countAll(ctx, filter)
	}
	if err != nil {
		if seq != nil {
			_ = seq.Close()
		}
		if ctx.Err() != nil {
			con.Warn("Cancelled.")
			return exitCancelled
		}
		res := run.Result{Phase: run.PhaseAborted, Fatal: run.Fatal(err)}
		return a.finish(st, con, filter, res, started)
	}

	var sink run.Sink
	if st.errTTY {
		sink = newBarUI(st.err, !con.Verbose())
	} else {
		sink = newLineUI(st.err)
	}
	if con.Verbose() {
		sink = run.MultiSink{sink, logSink{logger: a.logger.With("module", "progress")}}
	}

	d := run.NewDriver(a.svc, run.WithLogger(a.logger.With("module", "run")))
	res, _ := d.Run(ctx, total, seq, sink)
	return a.finish(st, con, filter, res, started)
}

func (a *app) countAll(ctx context.Context, filter domain.Filter) (domain.Total, error) {
	c, ok := a.source.(run.Counter)
	if !ok {
		return domain.UnknownTotal(), nil
	}
	n, err := c.Count(ctx, filter)
	if err != nil {
		return domain.UnknownTotal(), err
	}
	return domain.KnownTotal(n), nil
}

// finish 输出报告与最终结果行，并返回退出码。
func (a *app) finish(st streams, con *logging.Console, filter domain.Filter, res run.Result, started time.Time) int {
	rr := buildReport(a.eff, filter, res, a.svc.Results(), started, time.Now())
	reportOK := true
	if !a.eff.DryRun {
		if err := writeReport(a.store, rr); errors.Is(err, cache.ErrNoRoot) {
			con.Debug("report not written: %v", err)
		} else if err != nil {
			con.Error("writing report.json failed: %v", err)
			reportOK = false
		} else {
			con.Debug("report: %s", a.store.ReportPath())
		}
	}
	if !st.outTTY {
		emitReportJSON(st.out, rr)
	}

	switch res.Phase {
	case run.PhaseCancelled:
		con.Warn("Cancelled after %d product(s).", res.Processed+len(res.Failed))
		return exitCancelled
	case run.PhaseAborted:
		con.Error("%s", oneLine(res.Fatal))
		return exitFatal
	}

	if len(res.Failed) == 0 {
		con.Success("Product images resized successfully")
	} else {
		con.Warn("Finished with %d failure(s):", len(res.Failed))
		for _, f := range res.Failed {
			con.Warn("  %s: %s", f.Key, oneLine(f.Err))
		}
	}
	switch {
	case !reportOK:
		return exitFatal
	case len(res.Failed) > 0 && a.eff.Strict:
		return exitFailures
	default:
		return exitOK
	}
}

func oneLine(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
