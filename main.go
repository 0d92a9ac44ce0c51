package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempcast/config"
	qhttp "tempcast/http"
	"tempcast/logging"
	"tempcast/ml"
)

var (
	configPath string
	host       string
	port       int

	rootCmd = &cobra.Command{
		Use:          "tempcast",
		Short:        "Serve temperature change predictions from the trained model artifact",
		SilenceUsage: true,
		RunE:         runServer,
	}
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "config file path")
	rootCmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("tempcast: %v", err)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// 2. 模型文件每次请求都重新定位，搜索路径来自当前生效的配置
	holder := config.NewHolder(cfg)
	locate := ml.SearchPaths(func() []string { return holder.Get().SearchPaths() })
	service := qhttp.NewPredictionService(locate, ml.LoadArtifact)

	if path, err := locate(); err != nil {
		logger.Warn("model artifact not found yet", zap.Error(err))
	} else {
		logger.Info("model artifact located", zap.String("path", path))
	}

	// 3. Start HTTP server and config watcher
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := qhttp.NewServer(cfg.Server, service, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		// 4. Handle graceful shutdown
		<-gctx.Done()
		return server.Stop(context.Background())
	})
	g.Go(func() error {
		err := config.Watch(gctx, configPath, holder, logger, func(next *config.Config) {
			if err := logging.SetLevel(level, next.Log.Level); err != nil {
				logger.Warn("ignoring log level", zap.Error(err))
			}
			effective := *next
			applyFlags(&effective)
			if effective.Addr() != server.Addr() {
				logger.Warn("server address changes need a restart",
					zap.String("current", server.Addr()),
					zap.String("configured", effective.Addr()))
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			// 热更新不可用时服务照常运行
			logger.Warn("config watcher stopped", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("exiting")
	return err
}

// applyFlags 命令行参数优先于配置文件
func applyFlags(cfg *config.Config) {
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
}
