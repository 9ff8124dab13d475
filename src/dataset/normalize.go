package dataset

import (
	"fmt"
	"sort"
	"time"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// renameColumns 按固定映射把问卷原始表头改为规范列名, 未知列保持不变.
// 出错时返回原表和错误, 由调用方决定是否忽略.
func renameColumns(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, fmt.Errorf("frame error: %w", df.Err)
	}
	names := df.Names()
	renamed := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	changed := false
	for i, raw := range names {
		name := raw
		if canonical, ok := config.CanonicalName(raw); ok {
			name = canonical
		}
		if seen[name] {
			return df, fmt.Errorf("%w: %q", ErrRenameConflict, name)
		}
		seen[name] = true
		renamed[i] = name
		if name != raw {
			changed = true
		}
	}
	if !changed {
		return df, nil
	}

	out := df.Copy()
	if err := out.SetNames(renamed...); err != nil {
		return df, fmt.Errorf("set names: %w", err)
	}
	return out, nil
}

// coerceNumeric 年龄与各题分数转为数值列, 无法解析的值变为空值
func coerceNumeric(df dataframe.DataFrame) dataframe.DataFrame {
	df = utils.ToNumeric(df, config.ColUmur)
	for _, c := range config.ScoreColumns {
		df = utils.ToNumeric(df, c)
	}
	return df
}

// sortByTimestamp 解析时间列并按时间倒序排列整表.
// 无法解析的时间变为空值并排在最后, 相同时间保持原顺序.
func sortByTimestamp(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if !utils.HasColumn(df, config.ColTimestamp) {
		return df, nil
	}
	col := df.Col(config.ColTimestamp)
	n := col.Len()
	values := make([]string, n)
	times := make([]time.Time, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		el := col.Elem(i)
		if el.IsNA() {
			values[i] = utils.NA
			continue
		}
		t, ok := utils.ParseTime(el.String())
		if !ok {
			values[i] = utils.NA
			continue
		}
		times[i], valid[i] = t, true
		values[i] = t.Format(utils.TimeLayout)
	}

	out := df.Copy().Mutate(series.New(values, series.String, config.ColTimestamp))
	if out.Err != nil {
		return df, fmt.Errorf("mutate timestamp: %w", out.Err)
	}
	if n == 0 {
		return out, nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if valid[ia] != valid[ib] {
			return valid[ia]
		}
		if !valid[ia] {
			return false
		}
		return times[ia].After(times[ib])
	})

	sorted := out.Subset(order)
	if sorted.Err != nil {
		return df, fmt.Errorf("subset: %w", sorted.Err)
	}
	return sorted, nil
}
