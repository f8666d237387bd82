package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/adapters/workerpool"
	"github.com/corey/hilite/internal/app"
	"github.com/corey/hilite/internal/domain/dispatch"
)

var (
	hlLang   string
	hlAsync  bool
	hlRemote bool
	hlRaw    bool
	hlColor  string
)

var highlightCmd = &cobra.Command{
	Use:   "highlight [files...]",
	Short: "Highlight files or stdin as HTML markup",
	Long: `Highlights each file with the grammar named by --lang, else the grammar
registered for its extension, else the grammar whose signatures it matches.
Reads stdin when no file is given. Several files are highlighted in parallel
(--jobs) and printed in argument order.`,
	RunE: runHighlight,
}

func init() {
	f := highlightCmd.Flags()
	f.StringVarP(&hlLang, "lang", "l", "", "Grammar to use (default: by extension, then by detection)")
	f.BoolVar(&hlAsync, "async", false, "Tokenize on a worker instead of the calling goroutine")
	f.BoolVar(&hlRemote, "remote", false, "Tokenize on the running daemon (implies --async)")
	f.BoolVar(&hlRaw, "raw", false, "Input is already HTML-escaped")
	f.IntP("jobs", "j", 0, "Files highlighted in parallel (0 = one per CPU)")
	f.StringVar(&hlColor, "color", "auto", "Color file headers: auto, always, never")
	viper.BindPFlag("jobs", f.Lookup("jobs"))
}

type fileOutput struct {
	lang   string
	result *dispatch.Result
	took   string
}

func runHighlight(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	engine, cleanup, err := newCLIEngine(cfg, hlRemote)
	if err != nil {
		return err
	}
	defer cleanup()

	mode := dispatch.Sync
	if hlAsync || hlRemote {
		mode = dispatch.Async
	}

	if len(args) == 0 {
		if !isStdinPipe() {
			return fmt.Errorf("no input: pass files or pipe source on stdin")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		out, err := highlightSource(cmd.Context(), engine, "", string(data), mode)
		if err != nil {
			return err
		}
		fmt.Print(out.result.Highlighted)
		return nil
	}

	outputs := make([]*fileOutput, len(args))
	batch := workerpool.NewBatch(cfg.Jobs)
	defer batch.Close()
	for i, file := range args {
		i, file := i, file
		err := batch.Submit(file, func(ctx context.Context) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			out, err := highlightSource(ctx, engine, file, string(data), mode)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
		if err != nil {
			return err
		}
	}
	report, err := batch.Wait()
	if err != nil {
		return err
	}

	p := newPalette(resolveColor(hlColor))
	for i, out := range outputs {
		if out == nil {
			continue
		}
		if len(args) > 1 {
			fmt.Print(formatFileHeader(p, args[i], out.lang, out.took, resultFlags(out.result)))
		}
		fmt.Print(out.result.Highlighted)
		if len(args) > 1 {
			fmt.Println()
		}
	}

	for _, failed := range report.Failed {
		fmt.Fprintf(os.Stderr, "%s✗%s %v\n", p.yellow, p.reset, failed)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(report.Failed), report.Total)
	}
	return nil
}

func highlightSource(ctx context.Context, engine *app.Engine, file, code string, mode dispatch.Mode) (*fileOutput, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lang := engine.ResolveLanguage(hlLang, file, code)
	start := time.Now()
	res, err := engine.HighlightCode(ctx, app.HighlightRequest{
		Language: lang,
		Code:     code,
		Mode:     mode,
		Raw:      hlRaw,
	})
	if err != nil {
		return nil, err
	}
	return &fileOutput{lang: lang, result: res, took: elapsedString(time.Since(start))}, nil
}

func resultFlags(res *dispatch.Result) []string {
	var flags []string
	if res.Cached {
		flags = append(flags, "cached")
	}
	if res.Fallback {
		flags = append(flags, "fallback")
	}
	if res.Aborted {
		flags = append(flags, "aborted")
	}
	return flags
}

// newCLIEngine builds an in-process engine. The tree cache is skipped while a
// daemon holds it; --remote sends tokenization to that daemon instead.
func newCLIEngine(cfg app.Config, remote bool) (*app.Engine, func(), error) {
	cleanup := func() {}
	paths := app.NewPaths(cfg.ProjectRoot)
	client := socket.NewClient(paths.Socket)
	daemonUp := client.Ping()

	var opts []app.EngineOption
	if remote {
		if !daemonUp {
			return nil, cleanup, fmt.Errorf("daemon is not running (start it with: hilite daemon start)")
		}
		opts = append(opts, app.WithWorker(client))
	}
	if cfg.Cache && !daemonUp {
		store, err := app.OpenCache(cfg.DBPath, cfg.CacheTTL)
		switch {
		case isDBLockError(err):
			log.Warn(diagnoseDBLock(paths.Socket))
		case err != nil:
			log.WithError(err).Warn("Tree cache unavailable")
		default:
			opts = append(opts, app.WithTreeCache(store))
			cleanup = func() { store.Close() }
		}
	}

	engine, err := app.NewEngine(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return engine, cleanup, nil
}
