package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"KepuasanMasyarakat/src/dataset"
	"KepuasanMasyarakat/src/processor"
	"KepuasanMasyarakat/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusBody 状态信息, 不包含远程错误细节
func statusBody(res *dataset.Result) gin.H {
	return gin.H{
		"id":        res.ID,
		"status":    res.Status,
		"message":   res.Message,
		"source":    res.Source,
		"rows":      res.Rows(),
		"loaded_at": res.LoadedAt,
	}
}

// current 取缓存数据集, critical 时直接返回 503
func (s *Server) current(c *gin.Context) (*dataset.Result, bool) {
	res := s.store.Current(c.Request.Context())
	if res.IsCritical() {
		body := gin.H{"status": dataset.StatusCritical, "message": ""}
		if res != nil {
			body["message"] = res.Message
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, body)
		return nil, false
	}
	return res, true
}

// filtered 按查询参数筛选
func (s *Server) filtered(c *gin.Context) (*dataset.Result, dataframe.DataFrame, bool) {
	res, ok := s.current(c)
	if !ok {
		return nil, dataframe.DataFrame{}, false
	}
	var f processor.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return nil, dataframe.DataFrame{}, false
	}
	return res, f.Apply(res.Frame), true
}

func (s *Server) status(c *gin.Context) {
	res := s.store.Current(c.Request.Context())
	code := http.StatusOK
	if res.IsCritical() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, statusBody(res))
}

func (s *Server) options(c *gin.Context) {
	res, ok := s.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, processor.FilterOptions(res.Frame))
}

func (s *Server) summary(c *gin.Context) {
	res, df, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  res.Status,
		"source":  res.Source,
		"summary": processor.ComputeSummary(df, s.opts.Scale),
	})
}

func (s *Server) aspects(c *gin.Context) {
	_, df, ok := s.filtered(c)
	if !ok {
		return
	}
	scores := processor.AspectScores(df)
	if scores == nil {
		scores = []processor.AspectScore{}
	}
	c.JSON(http.StatusOK, gin.H{"aspects": scores, "scale": s.opts.Scale})
}

func (s *Server) demographics(c *gin.Context) {
	_, df, ok := s.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, processor.ComputeDemographics(df))
}

func (s *Server) feedback(c *gin.Context) {
	_, df, ok := s.filtered(c)
	if !ok {
		return
	}
	entries := processor.FeedbackEntries(df)
	if entries == nil {
		entries = []processor.FeedbackEntry{}
	}
	total := len(entries)
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit tidak valid"})
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "entries": entries})
}

func (s *Server) export(c *gin.Context) {
	_, df, ok := s.filtered(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := utils.WriteExcel(df, &buf, "Survey"); err != nil {
		s.logger.Error("导出失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Gagal membuat file ekspor"})
		return
	}
	name := fmt.Sprintf("survey-%s-%s.xlsx", time.Now().Format("20060102"), uuid.NewString()[:8])
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) refreshData(c *gin.Context) {
	s.store.Invalidate()
	res := s.store.Current(c.Request.Context())
	s.logger.Info("手动刷新数据", zap.String("status", string(res.Status)))
	code := http.StatusOK
	if res.IsCritical() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, statusBody(res))
}

// logs 以 SSE 推送实时日志
func (s *Server) logs(c *gin.Context) {
	ch := s.logger.Subscribe()
	defer s.logger.Unsubscribe(ch)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("log", msg)
			return true
		}
	})
}
