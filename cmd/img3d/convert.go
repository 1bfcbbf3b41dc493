package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/img3d/config"
	"github.com/BaSui01/img3d/threed"
	"github.com/BaSui01/img3d/tracker"
)

// =============================================================================
// 🧊 convert 命令
// =============================================================================

// convertOptions convert 命令参数
type convertOptions struct {
	file       string
	server     string
	token      string
	direct     bool
	configPath string
	timeout    time.Duration
	verbose    bool
}

func runConvertCommand(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	opts := convertOptions{}
	fs.StringVar(&opts.file, "file", "", "Image to convert")
	fs.StringVar(&opts.server, "server", "http://localhost:8080", "img3d server address")
	fs.StringVar(&opts.token, "token", os.Getenv("IMG3D_TOKEN"), "Bearer token for the server")
	fs.BoolVar(&opts.direct, "direct", false, "Call the upstream provider directly")
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall conversion deadline")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log tracker activity to stderr")
	fs.Parse(args)

	if opts.file == "" {
		fmt.Fprintln(os.Stderr, "convert: --file is required")
		return 2
	}
	payload, err := os.ReadFile(opts.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		return 1
	}

	loader := config.NewLoader()
	if opts.configPath != "" {
		loader = loader.WithConfigPath(opts.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: failed to load config: %v\n", err)
		return 1
	}

	logger := zap.NewNop()
	if opts.verbose {
		logger = initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
		defer logger.Sync()
	}

	var gw threed.Gateway
	if opts.direct {
		if cfg.Meshy.APIKey == "" {
			fmt.Fprintln(os.Stderr, "convert: --direct requires IMG3D_MESHY_API_KEY or meshy.api_key")
			return 2
		}
		gw = threed.NewMeshyProvider(meshyConfig(cfg.Meshy), logger)
	} else {
		gw = threed.NewHTTPGateway(opts.server, opts.token, cfg.Meshy.Timeout)
	}

	trackerOpts := trackerOptions(cfg.Tracker, logger, nil)
	if opts.timeout > 0 {
		trackerOpts.Deadline = opts.timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	final, err := convert(ctx, gw, trackerOpts, payload, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert: %v\n", err)
		return 1
	}
	if final.Error != "" {
		fmt.Fprintf(os.Stderr, "convert: %s\n", final.Error)
		return 1
	}
	return 0
}

// convert 启动一次转换并把每次状态变化写入 out，返回最终状态。
// ctx 取消时转换随之取消。
func convert(ctx context.Context, gw threed.Gateway, opts tracker.Options, payload []byte, out io.Writer) (tracker.State, error) {
	tr := tracker.New(gw, opts)
	defer tr.Close()

	updates, unsubscribe := tr.Subscribe(16)
	defer unsubscribe()

	handle, err := tr.ConvertImage(ctx, payload)
	if err != nil {
		return tr.State(), err
	}

	for {
		select {
		case <-ctx.Done():
			handle.Cancel()
			return tr.State(), ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return tr.State(), errors.New("tracker closed")
			}
			if st.Generation != handle.Generation() {
				continue
			}
			printState(out, st)
			if st.Terminal() {
				return st, nil
			}
		case <-handle.Done():
			// 订阅通道可能丢弃中间状态，以循环退出后的状态为准
			st := tr.State()
			printState(out, st)
			return st, nil
		}
	}
}

func printState(out io.Writer, st tracker.State) {
	switch {
	case st.Error != "":
		fmt.Fprintf(out, "error: %s\n", st.Error)
	case st.CurrentTask == nil:
		fmt.Fprintln(out, "encoding and submitting image...")
	default:
		task := st.CurrentTask
		fmt.Fprintf(out, "%s %-11s %3d%%\n", task.ID, task.Status, task.Progress)
		if task.Status == threed.StatusSucceeded {
			if url := task.ModelURLs.Format("glb"); url != "" {
				fmt.Fprintf(out, "model: %s\n", url)
			}
			if task.ThumbnailURL != "" {
				fmt.Fprintf(out, "thumbnail: %s\n", task.ThumbnailURL)
			}
		}
	}
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

func meshyConfig(cfg config.MeshyConfig) threed.MeshyConfig {
	return threed.MeshyConfig{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		EnablePBR:     cfg.EnablePBR,
		ShouldRemesh:  cfg.ShouldRemesh,
		ShouldTexture: cfg.ShouldTexture,
	}
}

func trackerOptions(cfg config.TrackerConfig, logger *zap.Logger, observer tracker.Observer) tracker.Options {
	opts := tracker.DefaultOptions()
	opts.PollInterval = cfg.PollInterval
	opts.Deadline = cfg.Deadline
	opts.MonotonicProgress = cfg.MonotonicProgress
	opts.CompleteOnSuccess = cfg.CompleteOnSuccess
	opts.Retry.MaxRetries = cfg.MaxPollRetries
	if cfg.RetryInitialDelay > 0 {
		opts.Retry.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		opts.Retry.MaxDelay = cfg.RetryMaxDelay
	}
	opts.Logger = logger
	opts.Observer = observer
	return opts
}
