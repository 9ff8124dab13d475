package processor

import (
	"sort"
	"strings"

	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// OtherJobLabel 不在前 N 名内的职业统一归入该类
	OtherJobLabel = "Pekerjaan Lainnya"
	// DefaultJobTopN 默认保留的职业类别数
	DefaultJobTopN = 6
)

// CleanJobTitles 规范化职业列: 去首尾空白、首字母大写,
// 只保留出现次数最多的 topN 个职业, 其余归为 OtherJobLabel.
// 列不存在时原样返回. 次数相同时按首次出现顺序排名, 空值保持为空且不参与排名.
func CleanJobTitles(df dataframe.DataFrame, colName string, topN int) dataframe.DataFrame {
	if !utils.HasColumn(df, colName) {
		return df
	}
	if topN < 0 {
		topN = 0
	}

	// cases.Caser 不能并发使用, 每次调用新建
	caser := cases.Title(language.Indonesian)

	col := df.Col(colName)
	values := make([]string, col.Len())
	counts := make(map[string]int)
	var order []string
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		if el.IsNA() {
			values[i] = utils.NA
			continue
		}
		v := strings.TrimSpace(el.String())
		if v == "" {
			values[i] = utils.NA
			continue
		}
		v = caser.String(v)
		values[i] = v
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	// 稳定排序保证相同次数按首次出现顺序
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	keep := make(map[string]bool, len(order))
	for _, v := range order {
		keep[v] = true
	}

	for i, v := range values {
		if v == utils.NA || keep[v] {
			continue
		}
		values[i] = OtherJobLabel
	}

	// Copy 避免 Mutate 改动原表共享的列
	return df.Copy().Mutate(series.New(values, series.String, colName))
}
