package processor

import (
	"sort"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// Scale 问卷分值刻度
type Scale struct {
	TargetScore float64 `json:"target_score"`
	MaxScale    float64 `json:"max_scale"`
}

// Summary 仪表盘顶部的四个指标
type Summary struct {
	Respondents       int     `json:"respondents"`
	AverageAge        float64 `json:"average_age"`
	SatisfactionIndex float64 `json:"satisfaction_index"` // IKM
	RatingTotal       float64 `json:"rating_total"`
	Delta             float64 `json:"delta"` // IKM - 目标分
	Scale             Scale   `json:"scale"`
}

// AspectScore 单个题目的平均分
type AspectScore struct {
	Code  string  `json:"code"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// CategoryCount 分类计数
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Demographics 人口统计分布, 列不存在时对应字段为 nil
type Demographics struct {
	Gender    []CategoryCount `json:"gender,omitempty"`
	Education []CategoryCount `json:"education,omitempty"`
	Job       []CategoryCount `json:"job,omitempty"`
}

// FeedbackEntry 一条意见反馈
type FeedbackEntry struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Job       string `json:"job"`
	Feedback  string `json:"feedback"`
	Evidence  string `json:"evidence,omitempty"`
}

// meanOf 列均值, 跳过空值; 列不存在或没有数值时 ok=false
func meanOf(df dataframe.DataFrame, colName string) (float64, bool) {
	if !utils.HasColumn(df, colName) {
		return 0, false
	}
	values := utils.FloatValues(df.Col(colName))
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

// ExistingScoreColumns 表中实际存在的题目列
func ExistingScoreColumns(df dataframe.DataFrame) []string {
	var cols []string
	for _, c := range config.ScoreColumns {
		if utils.HasColumn(df, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// ComputeSummary 计算受访人数、平均年龄、满意度指数(IKM)与总体评分
// IKM 为各题平均分的平均值
func ComputeSummary(df dataframe.DataFrame, scale Scale) Summary {
	s := Summary{
		Respondents: df.Nrow(),
		Scale:       scale,
	}
	if s.Respondents == 0 {
		s.Delta = -scale.TargetScore
		return s
	}

	if avg, ok := meanOf(df, config.ColUmur); ok {
		s.AverageAge = avg
	}

	var means []float64
	for _, c := range ExistingScoreColumns(df) {
		if m, ok := meanOf(df, c); ok {
			means = append(means, m)
		}
	}
	if len(means) > 0 {
		s.SatisfactionIndex = stat.Mean(means, nil)
	}

	if avg, ok := meanOf(df, config.ColQ9); ok {
		s.RatingTotal = avg
	}
	s.Delta = s.SatisfactionIndex - scale.TargetScore
	return s
}

// AspectScores 各题平均分, 按分数升序(与条形图顺序一致)
func AspectScores(df dataframe.DataFrame) []AspectScore {
	var scores []AspectScore
	if df.Nrow() == 0 {
		return scores
	}
	for _, c := range ExistingScoreColumns(df) {
		m, ok := meanOf(df, c)
		if !ok {
			continue
		}
		label, found := config.AspectLabels[c]
		if !found {
			label = c
		}
		scores = append(scores, AspectScore{Code: c, Label: label, Score: m})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score < scores[j].Score
	})
	return scores
}

// CountBy 统计某列各取值的数量, 按数量降序, 相同数量按首次出现顺序; 空值不计
func CountBy(df dataframe.DataFrame, colName string) []CategoryCount {
	if !utils.HasColumn(df, colName) {
		return nil
	}
	col := df.Col(colName)
	counts := make(map[string]int)
	var order []string
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		if el.IsNA() {
			continue
		}
		v := el.String()
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	result := make([]CategoryCount, 0, len(order))
	for _, v := range order {
		result = append(result, CategoryCount{Value: v, Count: counts[v]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// ComputeDemographics 性别、学历、职业分布
func ComputeDemographics(df dataframe.DataFrame) Demographics {
	return Demographics{
		Gender:    CountBy(df, config.ColGender),
		Education: CountBy(df, config.ColEducation),
		Job:       CountBy(df, config.ColJob),
	}
}

// FeedbackEntries 有反馈内容的行, 保持表内顺序(时间倒序)
func FeedbackEntries(df dataframe.DataFrame) []FeedbackEntry {
	if !utils.HasColumn(df, config.ColFeedback) {
		return nil
	}
	// Col 每次都会复制整列, 先取出需要的列
	cols := make(map[string]series.Series)
	for _, c := range []string{config.ColTimestamp, config.ColNama, config.ColJob, config.ColBukti} {
		if utils.HasColumn(df, c) {
			cols[c] = df.Col(c)
		}
	}
	text := func(colName string, i int, fallback string) string {
		col, ok := cols[colName]
		if !ok {
			return fallback
		}
		el := col.Elem(i)
		if el.IsNA() {
			return fallback
		}
		return el.String()
	}

	feedback := df.Col(config.ColFeedback)
	entries := []FeedbackEntry{}
	for i := 0; i < feedback.Len(); i++ {
		if feedback.Elem(i).IsNA() {
			continue
		}
		entries = append(entries, FeedbackEntry{
			Timestamp: text(config.ColTimestamp, i, "-"),
			Name:      text(config.ColNama, i, "Anonim"),
			Job:       text(config.ColJob, i, "-"),
			Feedback:  feedback.Elem(i).String(),
			Evidence:  text(config.ColBukti, i, ""),
		})
	}
	return entries
}
