package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀, 例如 SKM_SOURCE__REMOTE_URL 对应 source.remote_url
const EnvPrefix = "SKM_"

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Source struct {
		RemoteURL    string        `koanf:"remote_url"`    // 远程数据源(Google Sheet CSV 地址), 可为空
		LocalFile    string        `koanf:"local_file"`    // 本地备用文件
		SheetName    string        `koanf:"sheet_name"`    // 本地 xlsx 的工作表名, 为空取第一个
		FetchTimeout time.Duration `koanf:"fetch_timeout"` // 远程请求超时
	} `koanf:"source"`

	Cache struct {
		TTL time.Duration `koanf:"ttl"` // 数据缓存时间
	} `koanf:"cache"`

	Scale struct {
		TargetScore float64 `koanf:"target_score"` // 视为"良好"的目标分
		MaxScale    float64 `koanf:"max_scale"`    // 问卷最高分
	} `koanf:"scale"`

	JobTopN int `koanf:"job_top_n"` // 职业保留的前 N 类

	Server struct {
		Addr           string   `koanf:"addr"`
		AllowedOrigins []string `koanf:"allowed_origins"`
		RefreshPerMin  int      `koanf:"refresh_per_min"` // /api/refresh 每分钟允许次数
		PIDFile        string   `koanf:"pid_file"`
	} `koanf:"server"`

	Log struct {
		File    string `koanf:"file"` // 为空输出到标准输出
		Level   string `koanf:"level"`
		MaxSize int64  `koanf:"max_size"` // 超过该字节数后轮转
	} `koanf:"log"`

	Metrics struct {
		Namespace   string    `koanf:"namespace"`    // 指标前缀
		LoadBuckets []float64 `koanf:"load_buckets"` // 加载耗时直方图分桶(秒), 为空用默认值
	} `koanf:"metrics"`

	Watch struct {
		Enabled bool `koanf:"enabled"` // 监听本地备用文件变化
	} `koanf:"watch"`

	Mailbox struct {
		Enabled       bool          `koanf:"enabled"`
		Server        string        `koanf:"server"`         // IMAP 服务器地址(含端口)
		Username      string        `koanf:"username"`       // 邮箱用户名
		Password      string        `koanf:"password"`       // 邮箱密码/授权码
		TargetSubject string        `koanf:"target_subject"` // 需要匹配的邮件主题
		CheckInterval time.Duration `koanf:"check_interval"` // 检查新邮件的间隔时间
	} `koanf:"mailbox"`

	Alert struct {
		WebhookURL string   `koanf:"webhook_url"`
		SMTPServer string   `koanf:"smtp_server"`
		Username   string   `koanf:"username"`
		Password   string   `koanf:"password"`
		To         []string `koanf:"to"`
	} `koanf:"alert"`
}

// New 返回带默认值的配置
func New() *Config {
	cfg := &Config{}
	cfg.Source.LocalFile = "Survey Kepuasan Masyarakat.csv"
	cfg.Source.FetchTimeout = 15 * time.Second
	cfg.Cache.TTL = 60 * time.Second
	cfg.Scale.TargetScore = 4.0
	cfg.Scale.MaxScale = 5.0
	cfg.JobTopN = 5
	cfg.Server.Addr = ":8080"
	cfg.Server.RefreshPerMin = 6
	cfg.Metrics.Namespace = "skm"
	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 10 * 1024 * 1024
	cfg.Mailbox.CheckInterval = 5 * time.Minute
	return cfg
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// LoadConfig 进程内只加载一次配置
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		instance, loadErr = Load(path)
	})
	return instance, loadErr
}

// Load 依次叠加默认值、配置文件(可选)与环境变量
// 优先级(低 -> 高): 默认值 -> 文件 -> SKM_ 环境变量
func Load(path string) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			// yaml 解析器同样可以解析 JSON
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("无法读取文件 %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("解析Config失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 基本校验
func (c *Config) Validate() error {
	var errs []error
	if c.Source.LocalFile == "" {
		errs = append(errs, errors.New("source.local_file must not be empty"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.JobTopN <= 0 {
		errs = append(errs, errors.New("job_top_n must be positive"))
	}
	if c.Scale.MaxScale <= 0 {
		errs = append(errs, errors.New("scale.max_scale must be positive"))
	}
	if c.Mailbox.Enabled && c.Mailbox.Server == "" {
		errs = append(errs, errors.New("mailbox.server is required when mailbox is enabled"))
	}
	return errors.Join(errs...)
}
