// Package httpserver はコンテキスト終了で停止するHTTPサーバーの起動処理を提供する。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownTimeout は停止時に処理中のリクエストを待つ上限。
const ShutdownTimeout = 15 * time.Second

// Serve はaddrでhandlerを公開し、ctxが終了するまでブロックする。
// ctxの終了後は処理中のリクエストを待ってから停止し、nilを返す。
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTPサーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	logger.Info().Str("addr", addr).Msg("HTTPサーバーを停止しました")
	return nil
}
