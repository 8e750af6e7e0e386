package httpserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/rentit/pkg/logging"
)

func TestServe(t *testing.T) {
	t.Parallel()

	t.Run("コンテキスト終了で停止しnilを返す", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("空きポートの取得に失敗: %v", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Serve(ctx, addr, http.NotFoundHandler(), logging.Nop())
		}()

		// 起動を待つ
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			conn, err := net.Dial("tcp", addr)
			if err == nil {
				_ = conn.Close()
				break
			}
			time.Sleep(20 * time.Millisecond)
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v, want nil", err)
			}
		case <-time.After(ShutdownTimeout + time.Second):
			t.Fatal("Serve() が停止しませんでした")
		}
	})

	t.Run("待ち受けに失敗した場合はエラーを返す", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("ポートの確保に失敗: %v", err)
		}
		defer ln.Close()

		err = Serve(context.Background(), ln.Addr().String(), http.NotFoundHandler(), logging.Nop())
		if err == nil {
			t.Error("Serve() error = nil, want error")
		}
	})
}
