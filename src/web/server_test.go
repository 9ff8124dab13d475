package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/metrics"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/storage"
	"KepuasanMasyarakat/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-gota/gota/dataframe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var testScale = processor.Scale{TargetScore: 4.0, MaxScale: 5.0}

func surveyRecords() [][]string {
	return [][]string{
		{"Timestamp", "Nama", "Umur", "Jenis Kelamin", "Pendidikan", "Pekerjaan", "Q1_Perilaku", "Q9_Rating_Total", "Feedback", "Bukti"},
		{"2024-01-01", "Ani", "50", "Perempuan", "S1", "guru", "4", "3", "Lambat", "https://bukti.example/1"},
		{"2024-01-03", "Siti", "30", "Perempuan", "SMA", "Guru", "5", "5", "Bagus", ""},
		{"2024-01-02", "Budi", "40", "Laki-laki", "S1", "petani", "3", "4", "", ""},
	}
}

type testEnv struct {
	router *gin.Engine
	store  *dataset.Store
	calls  *int
}

func newEnv(t *testing.T, opts Options, logger *storage.Logger, failing bool) testEnv {
	t.Helper()
	calls := new(int)
	local := dataset.FetcherFunc(func(ctx context.Context) (dataframe.DataFrame, error) {
		*calls++
		if failing {
			return dataframe.New(), errors.New("open Survey Kepuasan Masyarakat.csv: no such file or directory")
		}
		return utils.RecordsToDataFrame(surveyRecords())
	})
	store := dataset.NewStore(dataset.NewLoader(nil, local, 0, logger), time.Minute)
	m := metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry()))
	if opts.Scale == (processor.Scale{}) {
		opts.Scale = testScale
	}
	srv := NewServer(store, opts, logger, m)
	return testEnv{router: srv.Router(), store: store, calls: calls}
}

func (e testEnv) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)
	rec := env.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, *env.calls)
}

func TestStatus(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)
	rec := env.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "offline", body["status"])
	assert.Equal(t, "local", body["source"])
	assert.Equal(t, 3.0, body["rows"])
	assert.NotContains(t, body, "remote_error")
}

func TestSummaryWithFilter(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)

	var all struct {
		Status  string            `json:"status"`
		Summary processor.Summary `json:"summary"`
	}
	rec := env.do(http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &all)
	assert.Equal(t, "offline", all.Status)
	assert.Equal(t, 3, all.Summary.Respondents)
	assert.InDelta(t, 40.0, all.Summary.AverageAge, 1e-9)
	assert.InDelta(t, 4.0, all.Summary.SatisfactionIndex, 1e-9)
	assert.InDelta(t, 0.0, all.Summary.Delta, 1e-9)

	var women struct {
		Summary processor.Summary `json:"summary"`
	}
	rec = env.do(http.MethodGet, "/api/summary?gender=Perempuan&education=Semua", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &women)
	assert.Equal(t, 2, women.Summary.Respondents)
	assert.InDelta(t, 4.25, women.Summary.SatisfactionIndex, 1e-9)

	// 多次请求只加载一次
	assert.Equal(t, 1, *env.calls)
}

func TestOptionsAndDemographics(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)

	var opts processor.Options
	rec := env.do(http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &opts)
	assert.Equal(t, []string{"Semua", "Laki-laki", "Perempuan"}, opts.Gender)
	// 职业已规范化
	assert.Equal(t, []string{"Semua", "Guru", "Petani"}, opts.Job)

	var demo processor.Demographics
	rec = env.do(http.MethodGet, "/api/demographics?job=Guru", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &demo)
	assert.Equal(t, []processor.CategoryCount{{Value: "Perempuan", Count: 2}}, demo.Gender)
}

func TestAspects(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)

	var body struct {
		Aspects []processor.AspectScore `json:"aspects"`
	}
	rec := env.do(http.MethodGet, "/api/aspects?gender=Laki-laki", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Aspects, 2)
	assert.Equal(t, "Q1_Perilaku", body.Aspects[0].Code)
	assert.Equal(t, 3.0, body.Aspects[0].Score)

	rec = env.do(http.MethodGet, "/api/aspects?gender=Tidak+Ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aspects":[],"scale":{"target_score":4,"max_scale":5}}`, rec.Body.String())
}

func TestFeedback(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)

	var body struct {
		Total   int                       `json:"total"`
		Entries []processor.FeedbackEntry `json:"entries"`
	}
	rec := env.do(http.MethodGet, "/api/feedback?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Entries, 1)
	// 时间倒序, 最新的在前
	assert.Equal(t, "Siti", body.Entries[0].Name)
	assert.Equal(t, "2024-01-03 00:00:00", body.Entries[0].Timestamp)

	rec = env.do(http.MethodGet, "/api/feedback?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCriticalAnswers503(t *testing.T) {
	env := newEnv(t, Options{}, nil, true)

	for _, path := range []string{"/api/summary", "/api/options", "/api/aspects", "/api/demographics", "/api/feedback", "/api/export", "/api/status"} {
		rec := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)

		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, "critical", body["status"], path)
		assert.Equal(t, dataset.CriticalPrefix+"open Survey Kepuasan Masyarakat.csv: no such file or directory", body["message"], path)
	}
	// critical 结果同样被缓存
	assert.Equal(t, 1, *env.calls)
}

func TestExport(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)

	rec := env.do(http.MethodGet, "/api/export?gender=Perempuan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Survey")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Timestamp", rows[0][0])
	assert.Equal(t, "Siti", rows[1][1])
}

func TestRefreshIsRateLimited(t *testing.T) {
	env := newEnv(t, Options{RefreshPerMin: 1}, nil, false)

	env.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, 1, *env.calls)

	rec := env.do(http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *env.calls)

	rec = env.do(http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, *env.calls)
}

func TestCORS(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)
	rec := env.do(http.MethodGet, "/healthz", http.Header{"Origin": {"https://dashboard.example"}})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	env = newEnv(t, Options{AllowedOrigins: []string{"https://dashboard.example"}}, nil, false)
	rec = env.do(http.MethodGet, "/healthz", http.Header{"Origin": {"https://dashboard.example"}})
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodGet, "/healthz", http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t, Options{}, nil, false)
	env.do(http.MethodGet, "/api/summary", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `skm_http_requests_total{code="200",method="GET",route="/api/summary"} 1`)
}

func TestLogsStream(t *testing.T) {
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	env := newEnv(t, Options{}, logger, false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/logs", nil)
	require.NoError(t, err)

	// 订阅在请求到达后才建立, 持续写日志直到读到
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				logger.Info("stream-check")
			}
		}
	}()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data:") && strings.Contains(scanner.Text(), "stream-check") {
			found = true
			break
		}
	}
	assert.True(t, found)
}
