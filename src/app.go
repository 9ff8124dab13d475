package main

import (
	"context"
	"fmt"
	"time"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/datapush"
	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/datasource/email"
	"KepuasanMasyarakat/src/datasource/file"
	"KepuasanMasyarakat/src/datasource/sheet"
	"KepuasanMasyarakat/src/metrics"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/storage"
	"KepuasanMasyarakat/src/web"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// App 组装好的各个组件
type App struct {
	cfg        *config.Config
	logger     *storage.Logger
	metrics    *metrics.Manager
	store      *dataset.Store
	dispatcher *datapush.Dispatcher
	mailbox    *email.EmailClient
	attachment *email.SurveyAttachmentHandler
}

// newApp 按配置创建日志、数据源、缓存与告警
func newApp(cfg *config.Config) (*App, error) {
	logger, err := storage.NewLogger(cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Close()
		return nil, err
	}

	var remote dataset.Fetcher
	if cfg.Source.RemoteURL != "" {
		remote = sheet.NewClient(cfg.Source.RemoteURL, cfg.Source.FetchTimeout)
	}
	local := file.NewReader(cfg.Source.LocalFile, cfg.Source.SheetName)

	loader := dataset.NewLoader(remote, local, cfg.JobTopN, logger)
	store := dataset.NewStore(loader, cfg.Cache.TTL)

	m := metrics.NewManager(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithHistogramBuckets(cfg.Metrics.LoadBuckets),
	)
	store.SetRecorder(m)

	app := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		store:   store,
	}

	var pushers []datapush.Pusher
	if p := datapush.NewWebhookPusher(cfg.Alert.WebhookURL); p != nil {
		pushers = append(pushers, p)
	}
	if p := datapush.NewMailPusher(cfg.Alert.SMTPServer, cfg.Alert.Username, cfg.Alert.Password, cfg.Alert.To); p != nil {
		pushers = append(pushers, p)
	}
	app.dispatcher = datapush.NewDispatcher(logger, pushers...)

	store.OnStatusChange(func(prev dataset.Status, res *dataset.Result) {
		m.StatusChange(string(res.Status))
		logger.Warning("数据源状态变化",
			zap.String("from", string(prev)),
			zap.String("to", string(res.Status)))
	})

	if cfg.Mailbox.Enabled {
		app.mailbox = email.NewEmailClient(cfg.Mailbox.Server, cfg.Mailbox.Username, cfg.Mailbox.Password, logger)
		app.attachment = email.NewSurveyAttachmentHandler(cfg.Source.LocalFile, cfg.Source.SheetName, logger)
	}
	return app, nil
}

// Close 释放资源
func (a *App) Close() error {
	return a.logger.Close()
}

// enableAlerts 仅服务模式推送告警
func (a *App) enableAlerts(ctx context.Context) {
	if a.dispatcher.Len() == 0 {
		return
	}
	a.store.OnStatusChange(a.dispatcher.Hook(ctx))
}

func (a *App) scale() processor.Scale {
	return processor.Scale{
		TargetScore: a.cfg.Scale.TargetScore,
		MaxScale:    a.cfg.Scale.MaxScale,
	}
}

func (a *App) server() *web.Server {
	return web.NewServer(a.store, web.Options{
		Scale:          a.scale(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RefreshPerMin:  a.cfg.Server.RefreshPerMin,
	}, a.logger, a.metrics)
}

// syncMailbox 检查邮箱, 更新了本地文件时清除缓存
func (a *App) syncMailbox(ctx context.Context) {
	if a.mailbox == nil {
		return
	}
	saved, err := email.CheckAndProcessEmails(ctx, a.mailbox, a.attachment, a.cfg.Mailbox.TargetSubject, a.logger)
	switch {
	case err != nil:
		a.metrics.MailSync("error")
		a.logger.Error("检查处理邮件失败", zap.Error(err))
	case saved:
		a.metrics.MailSync("saved")
		a.store.Invalidate()
	default:
		a.metrics.MailSync("empty")
	}
}

// rotateLog 日志超过大小后轮转
func (a *App) rotateLog() {
	if a.cfg.Log.File == "" || a.cfg.Log.MaxSize <= 0 {
		return
	}
	rotated, err := a.logger.CheckRotate(a.cfg.Log.MaxSize)
	if err != nil {
		a.logger.Error("日志轮转失败", zap.Error(err))
		return
	}
	if rotated {
		a.logger.Info("日志已轮转")
	}
}

// newScheduler 创建定时任务调度器, 任务 panic 等错误写入应用日志
func (a *App) newScheduler() *cron.Cron {
	c := cron.New()
	c.ErrorLog = zap.NewStdLog(a.logger.Zap())
	return c
}

// scheduleJobs 注册定时任务: 预热缓存、检查邮箱、日志轮转
func (a *App) scheduleJobs(ctx context.Context, c *cron.Cron) error {
	warm := fmt.Sprintf("@every %s", a.cfg.Cache.TTL)
	if err := c.AddFunc(warm, func() {
		a.store.Current(ctx)
	}); err != nil {
		return fmt.Errorf("创建缓存预热任务失败: %w", err)
	}

	if a.mailbox != nil {
		interval := a.cfg.Mailbox.CheckInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		if err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			a.syncMailbox(jobCtx)
		}); err != nil {
			return fmt.Errorf("创建邮箱检查任务失败: %w", err)
		}
	}

	if err := c.AddFunc("@every 1m", a.rotateLog); err != nil {
		return fmt.Errorf("创建日志轮转任务失败: %w", err)
	}
	return nil
}
