package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ninenotes/internal/platform/config"
	"github.com/jinford/ninenotes/internal/platform/database"
)

// MigrateUpAction は未適用のマイグレーションをすべて適用するコマンドのアクション
func MigrateUpAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	if err := database.MigrateUp(cfg.Database.URL()); err != nil {
		return fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	slog.Info("マイグレーションを適用しました")
	return nil
}

// MigrateDownAction は直近1件のマイグレーションを巻き戻すコマンドのアクション
func MigrateDownAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	if err := database.MigrateDown(cfg.Database.URL()); err != nil {
		return fmt.Errorf("マイグレーションの巻き戻しに失敗: %w", err)
	}

	slog.Info("マイグレーションを巻き戻しました")
	return nil
}
