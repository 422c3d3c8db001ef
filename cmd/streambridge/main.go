// =============================================================================
// streambridge 主入口
// =============================================================================
// host 端把本地数据源以流的形式暴露在消息通道上；gateway 端连接 host，
// 把远端流渲染为分块 HTTP 响应。
//
// 使用方法:
//
//	streambridge host                       # 启动 host（WebSocket 端点或 Redis 通道）
//	streambridge gateway                    # 启动 HTTP 网关
//	streambridge host --config config.yaml  # 指定配置文件
//	streambridge version                    # 显示版本信息
//	streambridge health                     # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/streambridge/config"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/telemetry"
	"github.com/BaSui01/streambridge/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "host":
		runRole("host", os.Args[2:])
	case "gateway":
		runRole("gateway", os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ host / gateway 命令
// =============================================================================

// runner 是一个角色的运行入口，ctx 结束时优雅退出
type runner interface {
	Run(ctx context.Context) error
}

func runRole(role string, args []string) {
	fs := flag.NewFlagSet(role, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Log.Level))
	logger := initLogger(cfg.Log, level)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting streambridge",
		zap.String("role", role),
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := telemetry.Init(cfg.Telemetry, telemetry.Identity{Role: role, Version: Version}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if otelProviders == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// 配置文件变更时调整日志级别，其余字段需要重启
	if *configPath != "" {
		watcher, err := config.NewWatcher(loader, cfg, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			watcher.OnReload(func(oldCfg, newCfg *config.Config) {
				if oldCfg.Log.Level != newCfg.Log.Level {
					level.SetLevel(parseLevel(newCfg.Log.Level))
					logger.Info("log level changed", zap.String("level", newCfg.Log.Level))
				}
			})
			if err := watcher.Start(ctx); err == nil {
				defer watcher.Stop()
			}
		}
	}

	collector := metrics.NewCollector(cfg.Server.MetricsNamespace, nil, logger)

	var r runner
	if role == "host" {
		r = newHostServer(cfg, logger, collector)
	} else {
		r = newGatewayServer(cfg, logger, collector)
	}
	if err := r.Run(ctx); err != nil {
		logger.Error("streambridge exited with error", zap.String("role", role), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("streambridge stopped", zap.String("role", role))
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("streambridge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	usage := `streambridge - cross-context stream bridge

Usage:
  streambridge <command> [options]

Commands:
  host      Serve local sources to consumers over the bridge channel
  gateway   Expose remote streams as chunked HTTP responses
  version   Show version information
  health    Check server readiness
  help      Show this help message

Options for 'host' and 'gateway':
  --config <path>   Path to configuration file (YAML)

Examples:
  streambridge host --config /etc/streambridge/host.yaml
  streambridge gateway --config /etc/streambridge/gateway.yaml
  curl -N 'http://localhost:8081/v1/streams?url=ticker:?interval=1s%26count=5'
  streambridge health --addr http://localhost:8081
  streambridge version`
	fmt.Println(usage)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initLogger(cfg config.LogConfig, level zap.AtomicLevel) *zap.Logger {
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
