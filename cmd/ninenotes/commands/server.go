package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/jinford/ninenotes/internal/interface/httpserver"
	"github.com/jinford/ninenotes/internal/platform/config"
	"github.com/jinford/ninenotes/internal/platform/container"
)

// shutdownTimeout はグレースフルシャットダウンの猶予時間
const shutdownTimeout = 10 * time.Second

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	port := cfg.Server.Port
	if p := cmd.Int("port"); p > 0 {
		port = p
	}

	gin.SetMode(gin.ReleaseMode)

	cont, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}
	defer cont.Close()

	server := httpserver.NewServer(cont)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバを起動します", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTPサーバが異常終了しました: %w", err)
	case <-ctx.Done():
	}

	slog.Info("シャットダウンを開始します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}

	slog.Info("シャットダウンが完了しました")
	return nil
}
