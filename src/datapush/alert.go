package datapush

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/storage"

	"go.uber.org/zap"
)

// Alert 数据源状态变化告警
type Alert struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	Source     string    `json:"source,omitempty"`
	Message    string    `json:"message,omitempty"`
	Rows       int       `json:"rows"`
	At         time.Time `json:"at"`
}

// Pusher 告警推送渠道
type Pusher interface {
	Name() string
	Push(ctx context.Context, alert Alert) error
}

// ShouldAlert 状态是否值得告警: 首次加载成功不告警, 之后每次状态变化都告警
func ShouldAlert(prev, next dataset.Status) bool {
	if prev == next {
		return false
	}
	return !(prev == "" && next == dataset.StatusOnline)
}

// AlertFromResult 由加载结果生成告警
func AlertFromResult(prev dataset.Status, res *dataset.Result) Alert {
	msg := res.Message
	if msg == "" && res.RemoteError != "" {
		msg = "remote: " + res.RemoteError
	}
	return Alert{
		ID:         res.ID,
		Status:     string(res.Status),
		PrevStatus: string(prev),
		Source:     res.Source,
		Message:    msg,
		Rows:       res.Rows(),
		At:         res.LoadedAt,
	}
}

// Title 告警标题
func (a Alert) Title() string {
	return fmt.Sprintf("[SKM] Status data: %s", strings.ToUpper(a.Status))
}

// Text 告警正文
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Title())
	b.WriteString("\n")
	if a.PrevStatus != "" {
		fmt.Fprintf(&b, "Sebelumnya: %s\n", a.PrevStatus)
	}
	if a.Source != "" {
		fmt.Fprintf(&b, "Sumber: %s\n", a.Source)
	}
	fmt.Fprintf(&b, "Responden: %d\n", a.Rows)
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "Waktu: %s\n", a.At.Format("2006-01-02 15:04:05"))
	}
	if a.Message != "" {
		fmt.Fprintf(&b, "Pesan: %s\n", a.Message)
	}
	return b.String()
}

// Dispatcher 把告警发给所有渠道
type Dispatcher struct {
	pushers []Pusher
	logger  *storage.Logger
}

// NewDispatcher 创建告警分发器, nil 渠道被忽略
func NewDispatcher(logger *storage.Logger, pushers ...Pusher) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, p := range pushers {
		if p != nil {
			d.pushers = append(d.pushers, p)
		}
	}
	return d
}

// Len 渠道数量
func (d *Dispatcher) Len() int { return len(d.pushers) }

// Push 依次推送, 返回所有失败渠道的错误
func (d *Dispatcher) Push(ctx context.Context, alert Alert) error {
	var errs []error
	for _, p := range d.pushers {
		if err := p.Push(ctx, alert); err != nil {
			d.logger.Error("告警推送失败", zap.String("channel", p.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		d.logger.Info("告警已推送", zap.String("channel", p.Name()), zap.String("status", alert.Status))
	}
	return errors.Join(errs...)
}

// Hook 适配 dataset.Store 的状态回调, 推送在后台进行
func (d *Dispatcher) Hook(ctx context.Context) dataset.StatusHook {
	return func(prev dataset.Status, res *dataset.Result) {
		if len(d.pushers) == 0 || !ShouldAlert(prev, res.Status) {
			return
		}
		alert := AlertFromResult(prev, res)
		go func() {
			pushCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			_ = d.Push(pushCtx, alert)
		}()
	}
}

// retry 重试函数, ctx 结束时提前返回
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("重试 %d 次后取消: %w", i+1, err)
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
