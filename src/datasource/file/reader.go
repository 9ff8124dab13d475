// reader.go
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/tealeg/xlsx"
)

// Reader 本地备份文件数据源, 支持 .csv 与 .xlsx
type Reader struct {
	Path      string
	SheetName string // 仅 xlsx 使用, 为空取第一个工作表
}

// NewReader 创建本地文件数据源
func NewReader(path, sheetName string) *Reader {
	return &Reader{Path: path, SheetName: sheetName}
}

// Fetch 读取整个文件为全字符串列的 DataFrame
func (r *Reader) Fetch(ctx context.Context) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.New(), err
	}
	switch strings.ToLower(filepath.Ext(r.Path)) {
	case ".xlsx":
		return ReadXLSX(r.Path, r.SheetName)
	default:
		return ReadCSVFile(r.Path)
	}
}

// ReadCSVFile 读取本地 CSV 文件
func ReadCSVFile(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.New(), err
	}
	defer f.Close()

	df, err := utils.ReadCSV(f)
	if err != nil {
		return dataframe.New(), fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return df, nil
}

// ReadXLSX 读取本地 xlsx 文件的指定工作表
func ReadXLSX(path, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return dataframe.New(), fmt.Errorf("xlsx open file false: %w", err)
	}
	return workbookToDataFrame(xlFile, sheetName)
}

// ParseXLSX 解析内存中的 xlsx 内容, 用于校验邮件附件
func ParseXLSX(data []byte, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.New(), fmt.Errorf("xlsx open binary false: %w", err)
	}
	return workbookToDataFrame(xlFile, sheetName)
}

func workbookToDataFrame(xlFile *xlsx.File, sheetName string) (dataframe.DataFrame, error) {
	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("excel文件中没有工作表")
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.New(), fmt.Errorf("sheet name %s 获取失败", sheetName)
		}
		sheet = s
	}
	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame, 第一行是标题行
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 || len(sheet.Rows[0].Cells) == 0 {
		return dataframe.New(), fmt.Errorf("工作表 %s 为空", sheet.Name)
	}

	records := make([][]string, 0, len(sheet.Rows))
	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimRight(cell.Value, "\r\n"))
	}
	records = append(records, headers)

	// 时间列在 xlsx 中通常是序列号
	timeCol := -1
	for i, h := range headers {
		if name, ok := config.CanonicalName(h); (ok && name == config.ColTimestamp) || h == config.ColTimestamp {
			timeCol = i
			break
		}
	}

	for _, row := range sheet.Rows[1:] {
		if row == nil || isEmptyRow(row) {
			continue
		}
		values := make([]string, len(headers))
		for i, cell := range row.Cells {
			if i >= len(headers) { // 确保不超出列数范围
				break
			}
			v := cell.Value
			if i == timeCol {
				v = excelToTime(v)
			}
			values[i] = v
		}
		records = append(records, values)
	}

	return utils.RecordsToDataFrame(records)
}

func isEmptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.Value) != "" {
			return false
		}
	}
	return true
}

// excelToTime excel 日期序列号转时间字符串, 不是数字时原样返回
func excelToTime(v string) string {
	excelDays, ok := utils.ParseFloat(v)
	if !ok || excelDays <= 0 {
		return v
	}

	// 基准日 1899-12-30 已抵消 Excel 的 1900 闰年错误
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := int(excelDays)
	fraction := excelDays - float64(days)

	result := base.AddDate(0, 0, days).
		Add(time.Duration(86400 * fraction * float64(time.Second)))
	return result.Round(time.Second).Format(utils.TimeLayout)
}
