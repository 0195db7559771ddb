package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) overview(c *gin.Context) {
	if _, ok := s.guestGate(c); !ok {
		return
	}

	o, err := s.database.GetOverview(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("overview")
		abortError(c, http.StatusInternalServerError, "获取总体统计失败")

		return
	}

	c.JSON(http.StatusOK, o)
}

func (s *Server) dailyTrend(c *gin.Context) {
	isGuest, ok := s.guestGate(c)
	if !ok {
		return
	}

	days := intQuery(c, "days", 10, 1, 30)
	if isGuest {
		days = 1
	}

	points, err := s.database.GetDailyTrend(c.Request.Context(), days)
	if err != nil {
		s.logger.Error().Err(err).Msg("daily trend")
		abortError(c, http.StatusInternalServerError, "获取每日趋势失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"days": points})
}

func (s *Server) dedupStats(c *gin.Context) {
	isGuest, ok := s.guestGate(c)
	if !ok {
		return
	}

	hours := intQuery(c, "hours", 10, 1, 24)
	if isGuest && hours > 24 {
		hours = 24
	}

	points, err := s.database.GetDedupTrend(c.Request.Context(), hours)
	if err != nil {
		s.logger.Error().Err(err).Msg("dedup trend")
		abortError(c, http.StatusInternalServerError, "获取去重统计失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"hours": points})
}

func (s *Server) netdiskDistribution(c *gin.Context) {
	isGuest, ok := s.guestGate(c)
	if !ok {
		return
	}

	hours := intQuery(c, "hours", 24, 1, 168)
	if isGuest && hours > 24 {
		hours = 24
	}

	entries, err := s.database.GetNetdiskDistribution(c.Request.Context(), hours)
	if err != nil {
		s.logger.Error().Err(err).Msg("netdisk distribution")
		abortError(c, http.StatusInternalServerError, "获取网盘分布失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"distribution": entries})
}
