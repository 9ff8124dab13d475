package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TimeLayout 解析后的时间统一格式, 字典序与时间序一致
const TimeLayout = "2006-01-02 15:04:05"

// NA gota 中表示空值的字符串
const NA = "NaN"

// 尝试的时间格式, 月在前的格式优先于日在前
var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02/01/2006 15:04:05",
}

// 读取CSV时视为空值的单元格内容
var naValues = []string{"", "NA", "N/A", "NaN", "nan", "<nil>", "null"}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ParseTime 依次尝试多种格式解析时间, 空值返回 ok=false
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == NA {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseFloat 解析数字, 允许首尾空白; 逗号小数等无法解析的值返回 ok=false
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == NA {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatValues 取出一列中可解析的数值, 跳过空值
func FloatValues(s series.Series) []float64 {
	values := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		el := s.Elem(i)
		if el.IsNA() {
			continue
		}
		if s.Type() == series.Float || s.Type() == series.Int {
			f := el.Float()
			if !math.IsNaN(f) {
				values = append(values, f)
			}
			continue
		}
		if f, ok := ParseFloat(el.String()); ok {
			values = append(values, f)
		}
	}
	return values
}

// ToNumeric 将列转换为浮点列, 无法解析的值变为空值
func ToNumeric(df dataframe.DataFrame, colName string) dataframe.DataFrame {
	if !HasColumn(df, colName) {
		return df
	}
	col := df.Col(colName)
	values := make([]string, col.Len())
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		if el.IsNA() {
			values[i] = NA
			continue
		}
		if f, ok := ParseFloat(el.String()); ok {
			values[i] = strconv.FormatFloat(f, 'f', -1, 64)
		} else {
			values[i] = NA
		}
	}
	return df.Copy().Mutate(series.New(values, series.Float, colName))
}

// ReadCSV 读取带表头的CSV为全字符串列的DataFrame
// 会去掉UTF-8 BOM, 空单元格视为空值; 只有表头时返回 0 行的表
func ReadCSV(r io.Reader) (dataframe.DataFrame, error) {
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return dataframe.New(), fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return dataframe.New(), fmt.Errorf("failed to parse csv: no header row")
	}
	// gota 不接受只有表头的记录
	if len(records) == 1 {
		return RecordsToDataFrame(records)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(naValues),
	)
	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("failed to parse csv: %w", df.Err)
	}
	return df, nil
}

// RecordsToDataFrame 将首行为表头的二维记录转换为全字符串列的DataFrame
func RecordsToDataFrame(records [][]string) (dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.New(), fmt.Errorf("no header row")
	}
	headers := records[0]
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(records)-1)
	}
	for _, row := range records[1:] {
		for i := range headers {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			if Contains(naValues, strings.TrimSpace(v)) {
				v = NA
			}
			columns[i] = append(columns[i], v)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}
	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return dataframe.New(), df.Err
	}
	return df, nil
}

// CellValue 返回适合写入表格的单元格值, 空值写为空单元格
func CellValue(el series.Element) interface{} {
	if el.IsNA() {
		return nil
	}
	switch el.Type() {
	case series.Float:
		return el.Float()
	case series.Int:
		v, err := el.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Bool:
		v, err := el.Bool()
		if err != nil {
			return nil
		}
		return v
	default:
		return el.String()
	}
}

// WriteExcel 将DataFrame写入 xlsx, 首行为列名
func WriteExcel(df dataframe.DataFrame, w io.Writer, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return fmt.Errorf("设置工作表名失败: %w", err)
		}
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, name)
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < col.Len(); rowIdx++ {
			v := CellValue(col.Elem(rowIdx))
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
