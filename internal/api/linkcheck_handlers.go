package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/core/domain"
	"github.com/panwatch/panwatch/internal/linkcheck"
	db "github.com/panwatch/panwatch/internal/storage"
)

type startCheckRequest struct {
	Period        string `json:"period" binding:"required"`
	MaxConcurrent int    `json:"max_concurrent"`
}

func (s *Server) startCheck(c *gin.Context) {
	req := startCheckRequest{MaxConcurrent: 5}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	id, err := s.checks.Start(c.Request.Context(), req.Period, req.MaxConcurrent)
	if err != nil {
		abortError(c, http.StatusBadRequest, "启动链接检测任务失败: "+err.Error())
		return
	}

	status, err := s.checks.Status(id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "启动链接检测任务失败")
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) checkStatus(c *gin.Context) {
	id := c.Param("task_id")

	status, err := s.checks.Status(id)
	if errors.Is(err, linkcheck.ErrTaskNotFound) {
		abortError(c, http.StatusNotFound, "任务 "+id+" 不存在")
		return
	}

	if err != nil {
		abortError(c, http.StatusInternalServerError, "获取任务状态失败")
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) cancelCheck(c *gin.Context) {
	id := c.Param("task_id")

	err := s.checks.Cancel(id)
	if errors.Is(err, linkcheck.ErrTaskNotFound) {
		abortError(c, http.StatusNotFound, "任务 "+id+" 不存在")
		return
	}

	if err != nil {
		abortError(c, http.StatusInternalServerError, "取消任务失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "任务已取消", "task_id": id})
}

type checkHistoryView struct {
	ID            int64     `json:"id"`
	CheckTime     time.Time `json:"check_time"`
	TotalMessages int       `json:"total_messages"`
	TotalLinks    int       `json:"total_links"`
	ValidLinks    int       `json:"valid_links"`
	InvalidLinks  int       `json:"invalid_links"`
	Status        string    `json:"status"`
	Duration      float64   `json:"duration"`
}

func (s *Server) checkHistory(c *gin.Context) {
	limit := intQuery(c, "limit", 20, 1, 100)

	stats, err := s.database.CheckHistory(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("check history")
		abortError(c, http.StatusInternalServerError, "获取检测历史失败")

		return
	}

	views := make([]checkHistoryView, 0, len(stats))
	for _, st := range stats {
		views = append(views, checkHistoryView{
			ID:            st.ID,
			CheckTime:     st.CheckTime,
			TotalMessages: st.TotalMessages,
			TotalLinks:    st.TotalLinks,
			ValidLinks:    st.ValidLinks,
			InvalidLinks:  st.InvalidLinks,
			Status:        st.Status,
			Duration:      st.CheckDuration,
		})
	}

	c.JSON(http.StatusOK, views)
}

type checkStatView struct {
	ID              int64                          `json:"id"`
	CheckTime       time.Time                      `json:"check_time"`
	TotalMessages   int                            `json:"total_messages"`
	TotalLinks      int                            `json:"total_links"`
	ValidLinks      int                            `json:"valid_links"`
	InvalidLinks    int                            `json:"invalid_links"`
	DeletedMessages int                            `json:"deleted_messages"`
	UpdatedMessages int                            `json:"updated_messages"`
	NetdiskStats    map[string]domain.ProviderStat `json:"netdisk_stats"`
	CheckDuration   float64                        `json:"check_duration"`
	Status          string                         `json:"status"`
}

type checkDetailView struct {
	ID           int64     `json:"id"`
	CheckTime    time.Time `json:"check_time"`
	MessageID    int64     `json:"message_id"`
	NetdiskType  string    `json:"netdisk_type"`
	URL          string    `json:"url"`
	IsValid      bool      `json:"is_valid"`
	ResponseTime float64   `json:"response_time"`
	ErrorReason  string    `json:"error_reason"`
	ActionTaken  string    `json:"action_taken"`
}

// checkResult looks up a finalized run by its check time, passed in
// the :task_id path segment as an RFC 3339 timestamp.
func (s *Server) checkResult(c *gin.Context) {
	raw := c.Param("task_id")

	checkTime, err := parseCheckTime(raw)
	if err != nil {
		abortError(c, http.StatusBadRequest, "无效的检测时间: "+raw)
		return
	}

	stat, details, err := s.database.CheckResult(c.Request.Context(), checkTime)
	if errors.Is(err, db.ErrNotFound) {
		abortError(c, http.StatusNotFound, "检测结果不存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("check result")
		abortError(c, http.StatusInternalServerError, "获取检测结果失败")

		return
	}

	detailViews := make([]checkDetailView, 0, len(details))
	for _, d := range details {
		detailViews = append(detailViews, checkDetailView{
			ID:           d.ID,
			CheckTime:    d.CheckTime,
			MessageID:    d.MessageID,
			NetdiskType:  d.NetdiskType,
			URL:          d.URL,
			IsValid:      d.IsValid,
			ResponseTime: d.ResponseTime,
			ErrorReason:  d.ErrorReason,
			ActionTaken:  d.ActionTaken,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": checkStatView{
			ID:              stat.ID,
			CheckTime:       stat.CheckTime,
			TotalMessages:   stat.TotalMessages,
			TotalLinks:      stat.TotalLinks,
			ValidLinks:      stat.ValidLinks,
			InvalidLinks:    stat.InvalidLinks,
			DeletedMessages: stat.DeletedMessages,
			UpdatedMessages: stat.UpdatedMessages,
			NetdiskStats:    stat.NetdiskStats,
			CheckDuration:   stat.CheckDuration,
			Status:          stat.Status,
		},
		"details": detailViews,
	})
}

var checkTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseCheckTime(raw string) (time.Time, error) {
	var lastErr error

	for _, layout := range checkTimeLayouts {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return t, nil
		}

		lastErr = err
	}

	return time.Time{}, lastErr
}
