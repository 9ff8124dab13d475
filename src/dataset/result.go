package dataset

import (
	"errors"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Status 数据来源状态
type Status string

const (
	StatusOnline   Status = "online"   // 远程数据源成功
	StatusOffline  Status = "offline"  // 远程失败, 使用本地备份
	StatusCritical Status = "critical" // 两个数据源都失败
)

// CriticalPrefix 两个数据源都失败时给用户看的提示前缀
const CriticalPrefix = "Gagal memuat data. Error: "

var (
	// ErrNoLocator 未配置远程数据源地址
	ErrNoLocator = errors.New("remote locator not configured")
	// ErrEmptyTable 数据源中没有任何列
	ErrEmptyTable = errors.New("empty table")
	// ErrRenameConflict 重命名后出现重复列名
	ErrRenameConflict = errors.New("duplicate column after rename")
)

// Result 一次加载的结果
type Result struct {
	ID          string              `json:"id"`
	Frame       dataframe.DataFrame `json:"-"`
	Status      Status              `json:"status"`
	Message     string              `json:"message,omitempty"`
	Source      string              `json:"source,omitempty"` // remote / local
	RemoteError string              `json:"remote_error,omitempty"`
	LoadedAt    time.Time           `json:"loaded_at"`
	Duration    time.Duration       `json:"duration"`
}

// IsCritical 调用方在 critical 时必须停止后续处理
func (r *Result) IsCritical() bool {
	return r == nil || r.Status == StatusCritical
}

// Rows 结果表的行数, critical 时为 0
func (r *Result) Rows() int {
	if r.IsCritical() {
		return 0
	}
	return r.Frame.Nrow()
}
