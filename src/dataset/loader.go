package dataset

import (
	"context"
	"time"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/storage"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultJobTopN 加载时保留的职业类别数
const DefaultJobTopN = 5

// Fetcher 数据源, 返回带表头的原始表
type Fetcher interface {
	Fetch(ctx context.Context) (dataframe.DataFrame, error)
}

// FetcherFunc 将函数适配为 Fetcher
type FetcherFunc func(ctx context.Context) (dataframe.DataFrame, error)

func (f FetcherFunc) Fetch(ctx context.Context) (dataframe.DataFrame, error) {
	return f(ctx)
}

// Loader 先远程后本地加载问卷数据并规范化
type Loader struct {
	remote Fetcher // 可为 nil, 表示只用本地文件
	local  Fetcher
	topN   int
	logger *storage.Logger
	now    func() time.Time
}

// NewLoader 创建加载器, topN<=0 时使用 DefaultJobTopN
func NewLoader(remote, local Fetcher, topN int, logger *storage.Logger) *Loader {
	if topN <= 0 {
		topN = DefaultJobTopN
	}
	return &Loader{
		remote: remote,
		local:  local,
		topN:   topN,
		logger: logger,
		now:    time.Now,
	}
}

// Load 执行一次完整的加载流程
func (l *Loader) Load(ctx context.Context) *Result {
	start := l.now()
	res := &Result{
		ID:       uuid.NewString(),
		LoadedAt: start,
	}
	defer func() { res.Duration = l.now().Sub(start) }()

	df, err := l.fetchRemote(ctx)
	if err == nil {
		res.Status, res.Source = StatusOnline, "remote"
	} else {
		res.RemoteError = err.Error()
		l.logger.Warning("远程数据源加载失败, 使用本地文件", zap.Error(err))

		df, err = fetchFrame(ctx, l.local)
		if err != nil {
			l.logger.Error("本地数据源加载失败", zap.Error(err))
			res.Status = StatusCritical
			res.Message = CriticalPrefix + err.Error()
			res.Frame = dataframe.New()
			return res
		}
		res.Status, res.Source = StatusOffline, "local"
	}

	res.Frame = l.normalize(df)
	l.logger.Info("数据加载完成",
		zap.String("status", string(res.Status)),
		zap.Int("rows", res.Frame.Nrow()),
		zap.String("id", res.ID))
	return res
}

func (l *Loader) fetchRemote(ctx context.Context) (dataframe.DataFrame, error) {
	if l.remote == nil {
		return dataframe.New(), ErrNoLocator
	}
	return fetchFrame(ctx, l.remote)
}

func fetchFrame(ctx context.Context, f Fetcher) (dataframe.DataFrame, error) {
	df, err := f.Fetch(ctx)
	if err != nil {
		return dataframe.New(), err
	}
	// 没有列的 DataFrame 同时带着 gota 的 "empty DataFrame" 错误, 先判断列数
	if df.Ncol() == 0 {
		return dataframe.New(), ErrEmptyTable
	}
	if df.Err != nil {
		return dataframe.New(), df.Err
	}
	return df, nil
}

// normalize 重命名 -> 数值转换 -> 时间排序 -> 职业归类
// 每一步失败都保留上一步的表继续
func (l *Loader) normalize(df dataframe.DataFrame) dataframe.DataFrame {
	if renamed, err := renameColumns(df); err != nil {
		l.logger.Debug("列重命名失败, 保留原始列名", zap.Error(err))
	} else {
		df = renamed
	}

	df = coerceNumeric(df)

	if sorted, err := sortByTimestamp(df); err != nil {
		l.logger.Debug("时间排序失败", zap.Error(err))
	} else {
		df = sorted
	}

	return processor.CleanJobTitles(df, config.ColJob, l.topN)
}
