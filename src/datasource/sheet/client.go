package sheet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// DefaultMaxBytes 远程表格的默认最大字节数
const DefaultMaxBytes = 32 << 20

// Client 远程 CSV 数据源, 一般是公开发布的 Google Sheets
type Client struct {
	URL        string
	HTTPClient *http.Client
	MaxBytes   int64 // 超过视为错误, <=0 时使用 DefaultMaxBytes
}

// NewClient 创建远程数据源, timeout<=0 时不限制
func NewClient(rawURL string, timeout time.Duration) *Client {
	return &Client{
		URL:        ExportURL(strings.TrimSpace(rawURL)),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ExportURL 把 Google Sheets 的编辑链接改写为 CSV 导出链接, 其他地址原样返回
//
//	https://docs.google.com/spreadsheets/d/<id>/edit#gid=0
//	-> https://docs.google.com/spreadsheets/d/<id>/export?format=csv&gid=0
func ExportURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "docs.google.com" || !strings.HasPrefix(u.Path, "/spreadsheets/d/") {
		return raw
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/spreadsheets/d/"), "/")
	if len(parts) < 2 || parts[1] != "edit" {
		return raw
	}

	gid := u.Query().Get("gid")
	if gid == "" && strings.HasPrefix(u.Fragment, "gid=") {
		gid = strings.TrimPrefix(u.Fragment, "gid=")
	}
	q := url.Values{}
	q.Set("format", "csv")
	if gid != "" {
		q.Set("gid", gid)
	}
	out := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     "/spreadsheets/d/" + parts[0] + "/export",
		RawQuery: q.Encode(),
	}
	return out.String()
}

// Fetch 下载并解析远程 CSV
func (c *Client) Fetch(ctx context.Context) (dataframe.DataFrame, error) {
	if c.URL == "" {
		return dataframe.New(), dataset.ErrNoLocator
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return dataframe.New(), fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return dataframe.New(), fmt.Errorf("fetch remote sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return dataframe.New(), fmt.Errorf("fetch remote sheet: unexpected status %s", resp.Status)
	}

	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	// 多读一个字节用来判断是否被截断
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return dataframe.New(), fmt.Errorf("read remote sheet: %w", err)
	}
	if int64(len(body)) > limit {
		return dataframe.New(), fmt.Errorf("read remote sheet: body exceeds %d bytes", limit)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return dataframe.New(), dataset.ErrEmptyTable
	}
	// 未公开的表格会跳转到登录页
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return dataframe.New(), fmt.Errorf("fetch remote sheet: got %s instead of csv", ct)
	}

	df, err := utils.ReadCSV(strings.NewReader(string(body)))
	if err != nil {
		return dataframe.New(), err
	}
	if df.Ncol() == 0 {
		return dataframe.New(), dataset.ErrEmptyTable
	}
	return df, nil
}
