package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// WebhookResponse 机器人 webhook 的响应, 普通 webhook 可以不返回内容
type WebhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// WebhookPusher 以文本消息格式推送到群机器人 webhook
type WebhookPusher struct {
	URL           string
	Client        *http.Client
	RetryTimes    int
	RetryInterval time.Duration
}

// NewWebhookPusher 创建 webhook 推送, url 为空时返回 nil
func NewWebhookPusher(url string) *WebhookPusher {
	if url == "" {
		return nil
	}
	return &WebhookPusher{
		URL:           url,
		Client:        &http.Client{Timeout: 10 * time.Second},
		RetryTimes:    RETRY_TIMES,
		RetryInterval: RETRY_INTERVAL,
	}
}

func (w *WebhookPusher) Name() string { return "webhook" }

// Push 推送告警, 失败时按间隔重试
func (w *WebhookPusher) Push(ctx context.Context, alert Alert) error {
	payload := map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": alert.Text(),
		},
		"alert": alert,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	times := w.RetryTimes
	if times <= 0 {
		times = 1
	}
	return retry(ctx, func() error {
		return w.send(ctx, payloadBytes)
	}, times, w.RetryInterval)
}

func (w *WebhookPusher) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook 返回 %s", resp.Status)
	}

	var result WebhookResponse
	if len(bytes.TrimSpace(respBody)) > 0 && json.Unmarshal(respBody, &result) == nil && result.ErrCode != 0 {
		return fmt.Errorf("推送失败: %s", result.ErrMsg)
	}
	return nil
}
