package processor

import (
	"sort"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// AllOption 筛选项中表示"全部"的值
const AllOption = "Semua"

// Filter 侧边栏筛选条件, 空字符串或 AllOption 表示不筛选
type Filter struct {
	Gender    string `form:"gender" json:"gender"`
	Education string `form:"education" json:"education"`
	Job       string `form:"job" json:"job"`
}

// Options 各筛选下拉框的可选值
type Options struct {
	Gender    []string `json:"gender"`
	Education []string `json:"education"`
	Job       []string `json:"job"`
}

// FilterOptions 返回 ["Semua"] + 排序后的非空唯一值, 列不存在时只有 "Semua"
func FilterOptions(df dataframe.DataFrame) Options {
	return Options{
		Gender:    optionValues(df, config.ColGender),
		Education: optionValues(df, config.ColEducation),
		Job:       optionValues(df, config.ColJob),
	}
}

func optionValues(df dataframe.DataFrame, colName string) []string {
	opts := []string{AllOption}
	if !utils.HasColumn(df, colName) {
		return opts
	}
	col := df.Col(colName)
	seen := make(map[string]bool)
	var values []string
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		if el.IsNA() {
			continue
		}
		v := el.String()
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return append(opts, values...)
}

// IsZero 是否没有任何筛选条件
func (f Filter) IsZero() bool {
	return isAll(f.Gender) && isAll(f.Education) && isAll(f.Job)
}

// Apply 返回筛选后的新DataFrame, 不修改原表; 列不存在的条件被跳过
func (f Filter) Apply(df dataframe.DataFrame) dataframe.DataFrame {
	out := df.Copy()
	out = filterEq(out, config.ColGender, f.Gender)
	out = filterEq(out, config.ColEducation, f.Education)
	out = filterEq(out, config.ColJob, f.Job)
	return out
}

func isAll(v string) bool {
	return v == "" || v == AllOption
}

func filterEq(df dataframe.DataFrame, colName, value string) dataframe.DataFrame {
	if isAll(value) || !utils.HasColumn(df, colName) || df.Nrow() == 0 {
		return df
	}
	return df.Filter(
		dataframe.F{
			Colname:    colName,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !el.IsNA() && el.String() == value
			},
		},
	)
}
