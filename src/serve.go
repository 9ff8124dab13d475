package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"KepuasanMasyarakat/src/datasource/file"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动仪表盘服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.serve(cmd.Context())
	},
}

// serve 启动 HTTP 服务和后台任务, 收到 SIGINT/SIGTERM 后优雅退出
func (a *App) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := writePIDFile(a.cfg.Server.PIDFile); err != nil {
		return err
	}
	defer removePIDFile(a.cfg.Server.PIDFile)

	a.enableAlerts(ctx)

	// 启动时先加载一次
	res := a.store.Current(ctx)
	a.logger.Info("数据已加载",
		zap.String("status", string(res.Status)),
		zap.String("source", res.Source),
		zap.Int("rows", res.Rows()))

	c := a.newScheduler()
	if err := a.scheduleJobs(ctx, c); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	if a.cfg.Watch.Enabled {
		if err := a.watchLocalFile(ctx); err != nil {
			a.logger.Warning("无法监听本地文件", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.server().Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(a.logger.Zap()),
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("服务已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err, ok := <-errCh:
			if ok && err != nil {
				return fmt.Errorf("HTTP 服务异常退出: %w", err)
			}
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				a.reload()
				continue
			}
			a.logger.Info("Received signal: " + sig.String() + ", shutting down...")
			return a.shutdown(srv)
		case <-ctx.Done():
			return a.shutdown(srv)
		}
	}
}

// reload 处理 SIGHUP: 清除缓存并重新打开日志文件
func (a *App) reload() {
	a.store.Invalidate()
	if err := a.logger.Reopen(""); err != nil {
		a.logger.Error("重新打开日志失败", zap.Error(err))
	}
	a.logger.Info("收到 SIGHUP, 缓存已清除")
}

func (a *App) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
	}
	return nil
}

// watchLocalFile 本地备用文件变化时清除缓存
func (a *App) watchLocalFile(ctx context.Context) error {
	monitor, err := file.NewFileMonitor(a.cfg.Source.LocalFile)
	if err != nil {
		return err
	}
	go func() {
		err := monitor.Watch(ctx, func(path string) {
			a.logger.Info("本地文件已更新", zap.String("path", path))
			a.store.Invalidate()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("文件监听出错", zap.Error(err))
		}
	}()
	return nil
}
