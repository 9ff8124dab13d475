// Package web 仪表盘 JSON 接口
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/metrics"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DataStore 缓存的数据集, dataset.Store 实现了它
type DataStore interface {
	Current(ctx context.Context) *dataset.Result
	Invalidate()
}

// Options 接口配置
type Options struct {
	Scale          processor.Scale
	AllowedOrigins []string // 为空时允许所有来源
	RefreshPerMin  int      // /api/refresh 每分钟允许次数, <=0 不限制
}

// Server 仪表盘接口服务
type Server struct {
	store   DataStore
	opts    Options
	logger  *storage.Logger
	metrics *metrics.Manager
	refresh *rate.Limiter
}

// NewServer 创建接口服务, metrics 可为 nil
func NewServer(store DataStore, opts Options, logger *storage.Logger, m *metrics.Manager) *Server {
	s := &Server{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
	if opts.RefreshPerMin > 0 {
		s.refresh = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RefreshPerMin)), 1)
	}
	return s
}

// Router 注册全部路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.corsMiddleware())

	r.GET("/healthz", s.healthz)

	api := r.Group("/api")
	{
		api.GET("/status", s.status)
		api.GET("/options", s.options)
		api.GET("/summary", s.summary)
		api.GET("/aspects", s.aspects)
		api.GET("/demographics", s.demographics)
		api.GET("/feedback", s.feedback)
		api.GET("/export", s.export)
		api.POST("/refresh", s.rateLimit(s.refresh), s.refreshData)
	}

	if s.logger != nil {
		r.GET("/logs", s.logs)
	}
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	var origins []string
	for _, o := range s.opts.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			origins = nil
			break
		}
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
