package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/robz323/alcancia-digital/internal/accounts"
	"github.com/robz323/alcancia-digital/internal/agent"
	"github.com/robz323/alcancia-digital/internal/chain"
	"github.com/robz323/alcancia-digital/internal/gateway"
	"github.com/robz323/alcancia-digital/pkg/config"
	"github.com/robz323/alcancia-digital/pkg/dedup"
	"github.com/robz323/alcancia-digital/pkg/logger"
	"github.com/robz323/alcancia-digital/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	flag.Parse()

	// .env 仅用于本地开发；不存在时静默使用进程环境变量
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Errorf("初始化账户存储失败: %v", err)
		os.Exit(1)
	}

	if cfg.Starknet.DerivationSecret == "" {
		logger.Warnf("未配置派生密钥：私钥为随机生成，进程重启后不可恢复")
	}

	// 原生链上动作由外部插件注册；注册表为空时 transfer / deploy-token 降级提示
	rawRegistry := agent.NewStaticRegistry()

	service := agent.NewService(
		store,
		cfg.Starknet,
		chain.NewDeployer(cfg.Starknet),
		chain.NewBalanceReader(cfg.Starknet),
		rawRegistry,
		dedup.NewGuard(time.Duration(cfg.Dedup.ActionWindowMs)*time.Millisecond),
		dedup.NewGuard(time.Duration(cfg.Dedup.WarnWindowMs)*time.Millisecond),
	)

	router := agent.NewKeywordRouter(
		service,
		dedup.NewGuard(time.Duration(cfg.Dedup.RouterWindowMs)*time.Millisecond),
		cfg.Gateway.Source,
	)

	server := gateway.NewServer(cfg.Gateway, router)

	manager := shutdown.NewManager()
	manager.OnShutdown(func(ctx context.Context) {
		if err := server.Shutdown(ctx); err != nil {
			logger.Warnf("关闭网关失败: %v", err)
		}
	})
	manager.OnShutdown(func(ctx context.Context) {
		if err := store.Close(); err != nil {
			logger.Warnf("关闭账户存储失败: %v", err)
		}
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Infof("收到信号 %v，开始关闭", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		manager.Shutdown(ctx)
		os.Exit(0)
	}()

	if err := server.Run(); err != nil {
		logger.Errorf("网关异常退出: %v", err)
		os.Exit(1)
	}
}

// openStore 根据配置选择账户存储后端
func openStore(cfg *config.Config) (accounts.Store, error) {
	switch cfg.Store.Backend {
	case "badger":
		key, err := accounts.ParseEncryptionKey(cfg.Store.BadgerEncryptionKey)
		if err != nil {
			return nil, err
		}
		return accounts.OpenBadger(accounts.BadgerOptions{
			Path:          cfg.Store.BadgerPath,
			EncryptionKey: key,
		})
	default:
		return accounts.NewMemoryStore(), nil
	}
}
