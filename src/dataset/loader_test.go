package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"KepuasanMasyarakat/src/config"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 与问卷导出文件一致的原始表头
var rawHeader = []string{
	"Cap waktu",
	"1. Nama Lengkap",
	"2. Umur",
	"3. Jenis Kelamin",
	"5. Pekerjaan",
	"6. Bagaimana pendapat saudara tentang perilaku petugas dalam memberikan pelayanan?",
	"11. Bagaimana pendapat saudara untuk tentang kemampuan petugas dalam memberikan pelayanan ",
	"Catatan",
}

func frameOf(t *testing.T, records ...[]string) dataframe.DataFrame {
	t.Helper()
	df, err := utils.RecordsToDataFrame(records)
	require.NoError(t, err)
	return df
}

func staticFetcher(df dataframe.DataFrame, calls *int) Fetcher {
	return FetcherFunc(func(ctx context.Context) (dataframe.DataFrame, error) {
		if calls != nil {
			*calls++
		}
		return df, nil
	})
}

func failingFetcher(msg string, calls *int) Fetcher {
	return FetcherFunc(func(ctx context.Context) (dataframe.DataFrame, error) {
		if calls != nil {
			*calls++
		}
		return dataframe.New(), errors.New(msg)
	})
}

func surveyRecords() [][]string {
	return [][]string{
		rawHeader,
		{"2023-01-01", "Budi", "41", "Laki-laki", "petani ", "4", "5", "x"},
		{"2024-01-01", "Siti", "abc", "Perempuan", "Guru", "5", "4", ""},
	}
}

func TestLoadOnline(t *testing.T) {
	var localCalls int
	loader := NewLoader(staticFetcher(frameOf(t, surveyRecords()...), nil), failingFetcher("unused", &localCalls), 0, nil)

	res := loader.Load(context.Background())
	require.Equal(t, StatusOnline, res.Status)
	assert.Equal(t, "remote", res.Source)
	assert.Empty(t, res.Message)
	assert.Empty(t, res.RemoteError)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2, res.Rows())
	assert.Zero(t, localCalls)

	names := res.Frame.Names()
	for _, c := range []string{config.ColTimestamp, config.ColNama, config.ColUmur, config.ColGender, config.ColJob, config.ColQ1, config.ColQ6} {
		assert.Contains(t, names, c)
	}
	// 未知列保持原样
	assert.Contains(t, names, "Catatan")
}

func TestLoadOfflineFallback(t *testing.T) {
	loader := NewLoader(failingFetcher("dial tcp: timeout", nil), staticFetcher(frameOf(t, surveyRecords()...), nil), 0, nil)

	res := loader.Load(context.Background())
	assert.Equal(t, StatusOffline, res.Status)
	assert.Equal(t, "local", res.Source)
	assert.Empty(t, res.Message)
	assert.Equal(t, "dial tcp: timeout", res.RemoteError)
	assert.Greater(t, res.Frame.Nrow(), 0)
	assert.False(t, res.IsCritical())
}

func TestLoadWithoutRemote(t *testing.T) {
	loader := NewLoader(nil, staticFetcher(frameOf(t, surveyRecords()...), nil), 0, nil)

	res := loader.Load(context.Background())
	assert.Equal(t, StatusOffline, res.Status)
	assert.Equal(t, ErrNoLocator.Error(), res.RemoteError)
}

func TestLoadCritical(t *testing.T) {
	loader := NewLoader(failingFetcher("remote boom", nil), failingFetcher("open Survey Kepuasan Masyarakat.csv: no such file or directory", nil), 0, nil)

	res := loader.Load(context.Background())
	assert.Equal(t, StatusCritical, res.Status)
	assert.True(t, res.IsCritical())
	assert.Zero(t, res.Frame.Nrow())
	assert.Zero(t, res.Rows())
	assert.Equal(t, CriticalPrefix+"open Survey Kepuasan Masyarakat.csv: no such file or directory", res.Message)
	assert.NotContains(t, res.Message, "remote boom")
}

func TestLoadEmptyTableFallsBack(t *testing.T) {
	loader := NewLoader(staticFetcher(dataframe.New(), nil), staticFetcher(frameOf(t, surveyRecords()...), nil), 0, nil)

	res := loader.Load(context.Background())
	assert.Equal(t, StatusOffline, res.Status)
	assert.Equal(t, ErrEmptyTable.Error(), res.RemoteError)
}

func TestLoadHeaderOnlyRemoteIsOnline(t *testing.T) {
	var localCalls int
	remote := FetcherFunc(func(ctx context.Context) (dataframe.DataFrame, error) {
		return utils.ReadCSV(strings.NewReader(strings.Join(rawHeader, ",") + "\n"))
	})
	loader := NewLoader(remote, staticFetcher(frameOf(t, surveyRecords()...), &localCalls), 0, nil)

	res := loader.Load(context.Background())
	require.Equal(t, StatusOnline, res.Status)
	assert.Zero(t, localCalls)
	assert.Zero(t, res.Rows())
	assert.Contains(t, res.Frame.Names(), config.ColUmur)
	assert.Contains(t, res.Frame.Names(), config.ColJob)

	summary := processor.ComputeSummary(res.Frame, processor.Scale{TargetScore: 4, MaxScale: 5})
	assert.Zero(t, summary.Respondents)
}

func TestLoadCoercesAge(t *testing.T) {
	loader := NewLoader(staticFetcher(frameOf(t, surveyRecords()...), nil), nil, 0, nil)
	res := loader.Load(context.Background())
	require.Equal(t, StatusOnline, res.Status)
	require.Equal(t, 2, res.Frame.Nrow())

	umur := res.Frame.Col(config.ColUmur)
	nama := res.Frame.Col(config.ColNama)
	// 时间倒序后 Siti 在第一行, "abc" 变为空值但行保留
	assert.Equal(t, "Siti", nama.Elem(0).String())
	assert.True(t, umur.Elem(0).IsNA())
	assert.Equal(t, 41.0, umur.Elem(1).Float())

	// 分数列同样转为数值
	assert.Equal(t, 5.0, res.Frame.Col(config.ColQ1).Elem(0).Float())
}

func TestLoadSortsByTimestampDesc(t *testing.T) {
	df := frameOf(t,
		[]string{"Timestamp", "Nama"},
		[]string{"2023-01-01", "a"},
		[]string{"bukan tanggal", "b"},
		[]string{"2024-01-01", "c"},
		[]string{"1/15/2024 10:30:00", "d"},
	)
	loader := NewLoader(staticFetcher(df, nil), nil, 0, nil)
	res := loader.Load(context.Background())

	assert.Equal(t, []string{"d", "c", "a", "b"}, res.Frame.Col(config.ColNama).Records())
	ts := res.Frame.Col(config.ColTimestamp)
	assert.Equal(t, "2024-01-15 10:30:00", ts.Elem(0).String())
	assert.Equal(t, "2024-01-01 00:00:00", ts.Elem(1).String())
	assert.True(t, ts.Elem(3).IsNA())
}

func TestLoadRenameConflictKeepsLabels(t *testing.T) {
	// "Cap waktu" 与已有的 "Timestamp" 冲突
	df := frameOf(t,
		[]string{"Cap waktu", "Timestamp", "2. Umur"},
		[]string{"2024-01-01", "2024-01-02", "30"},
	)
	loader := NewLoader(staticFetcher(df, nil), nil, 0, nil)
	res := loader.Load(context.Background())

	require.Equal(t, StatusOnline, res.Status)
	assert.Equal(t, []string{"Cap waktu", "Timestamp", "2. Umur"}, res.Frame.Names())
	assert.Equal(t, 1, res.Frame.Nrow())
}

func TestLoadCollapsesJobTitles(t *testing.T) {
	records := [][]string{{"5. Pekerjaan"}}
	for _, j := range []string{"petani", "petani", "guru", "guru", "nelayan", "dokter", "bidan", "pns", "tni"} {
		records = append(records, []string{j})
	}
	loader := NewLoader(staticFetcher(frameOf(t, records...), nil), nil, 2, nil)
	res := loader.Load(context.Background())

	distinct := map[string]int{}
	for _, v := range res.Frame.Col(config.ColJob).Records() {
		distinct[v]++
	}
	assert.Equal(t, map[string]int{"Petani": 2, "Guru": 2, processor.OtherJobLabel: 5}, distinct)
}

func TestRenameColumnsLooseMatch(t *testing.T) {
	df := frameOf(t,
		[]string{"11.  Bagaimana pendapat saudara untuk tentang kemampuan petugas dalam memberikan pelayanan"},
		[]string{"4"},
	)
	out, err := renameColumns(df)
	require.NoError(t, err)
	assert.Equal(t, []string{config.ColQ6}, out.Names())
}

func TestRenameColumnsConflict(t *testing.T) {
	df := frameOf(t, []string{"2. Umur", "Umur"}, []string{"1", "2"})
	out, err := renameColumns(df)
	assert.ErrorIs(t, err, ErrRenameConflict)
	assert.Equal(t, []string{"2. Umur", "Umur"}, out.Names())
}
