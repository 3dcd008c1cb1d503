package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/vinlotto-backend/internal/cli"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (cli.Backend, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg.Service.Kind = "lotteryctl"
		logg := logger.New(logger.Options{
			ServiceName: "lotteryctl",
			Level:       cfg.App.LogLevel,
			WarnStack:   cfg.App.LogWarnStack,
			Output:      os.Stderr,
		})
		b, err := openBackend(ctx, cfg, logg)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
