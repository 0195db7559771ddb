package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/platform/config"
	db "github.com/panwatch/panwatch/internal/storage"
)

type credentialView struct {
	ID      int64  `json:"id"`
	APIID   string `json:"api_id"`
	APIHash string `json:"api_hash"`
}

func (s *Server) listCredentials(c *gin.Context) {
	creds, err := s.database.ListCredentials(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list credentials")
		abortError(c, http.StatusInternalServerError, "获取API凭据列表失败")

		return
	}

	views := make([]credentialView, 0, len(creds))
	for _, cr := range creds {
		views = append(views, credentialView{ID: cr.ID, APIID: cr.APIID, APIHash: cr.APIHash})
	}

	c.JSON(http.StatusOK, views)
}

func (s *Server) addCredential(c *gin.Context) {
	var req struct {
		APIID   string `json:"api_id" binding:"required"`
		APIHash string `json:"api_hash" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	cred, err := s.database.AddCredential(c.Request.Context(), req.APIID, req.APIHash)
	if errors.Is(err, db.ErrDuplicate) {
		abortError(c, http.StatusBadRequest, "API ID 已存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("add credential")
		abortError(c, http.StatusInternalServerError, "添加API凭据失败")

		return
	}

	c.JSON(http.StatusOK, credentialView{ID: cred.ID, APIID: cred.APIID, APIHash: cred.APIHash})
}

func (s *Server) deleteCredential(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "无效的凭据ID")
		return
	}

	err = s.database.DeleteCredential(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		abortError(c, http.StatusNotFound, "凭据不存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("delete credential")
		abortError(c, http.StatusInternalServerError, "删除API凭据失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "凭据删除成功"})
}

type channelView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.database.ListChannels(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list channels")
		abortError(c, http.StatusInternalServerError, "获取频道列表失败")

		return
	}

	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, channelView{ID: ch.ID, Username: ch.Username})
	}

	c.JSON(http.StatusOK, views)
}

func (s *Server) addChannel(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	channel, err := s.database.AddChannel(c.Request.Context(), req.Username)
	if errors.Is(err, db.ErrDuplicate) {
		abortError(c, http.StatusBadRequest, "频道已存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("add channel")
		abortError(c, http.StatusInternalServerError, "添加频道失败")

		return
	}

	c.JSON(http.StatusOK, channelView{ID: channel.ID, Username: channel.Username})
}

func (s *Server) updateChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "无效的频道ID")
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	err = s.database.UpdateChannel(c.Request.Context(), id, req.Username)
	if errors.Is(err, db.ErrNotFound) {
		abortError(c, http.StatusNotFound, "频道不存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("update channel")
		abortError(c, http.StatusInternalServerError, "更新频道失败")

		return
	}

	c.JSON(http.StatusOK, channelView{ID: id, Username: req.Username})
}

func (s *Server) deleteChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "无效的频道ID")
		return
	}

	err = s.database.DeleteChannel(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		abortError(c, http.StatusNotFound, "频道不存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("delete channel")
		abortError(c, http.StatusInternalServerError, "删除频道失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "频道删除成功"})
}

func (s *Server) diagnoseChannels(c *gin.Context) {
	if s.diagnoser == nil {
		abortError(c, http.StatusInternalServerError, "Telegram 客户端不可用")
		return
	}

	valid, invalid, err := s.diagnoser.DiagnoseChannels(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("diagnose channels")
		abortError(c, http.StatusInternalServerError, "频道诊断失败: "+err.Error())

		return
	}

	if valid == nil {
		valid = []ChannelDiagnosis{}
	}

	if invalid == nil {
		invalid = []ChannelDiagnosis{}
	}

	c.JSON(http.StatusOK, gin.H{"valid_channels": valid, "invalid_channels": invalid})
}

func (s *Server) testMonitor(c *gin.Context) {
	if s.diagnoser == nil {
		abortError(c, http.StatusInternalServerError, "Telegram 客户端不可用")
		return
	}

	result, err := s.diagnoser.TestMonitor(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("test monitor")
		abortError(c, http.StatusInternalServerError, "测试监控失败: "+err.Error())

		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"public_dashboard_enabled": s.publicDashboard.Load()})
}

// putConfig flips the guest-dashboard switch and persists it to the
// env file so restarts keep the setting.
func (s *Server) putConfig(c *gin.Context) {
	var req struct {
		PublicDashboardEnabled *bool `json:"public_dashboard_enabled" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.PublicDashboardEnabled == nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	enabled := *req.PublicDashboardEnabled
	s.publicDashboard.Store(enabled)

	if err := config.WriteEnvValue(s.envFile, "PUBLIC_DASHBOARD_ENABLED", strconv.FormatBool(enabled)); err != nil {
		s.logger.Error().Err(err).Msg("persist config")
		abortError(c, http.StatusInternalServerError, "更新系统配置失败: "+err.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{"public_dashboard_enabled": enabled})
}

func (s *Server) fixTags(c *gin.Context) {
	fixed, err := s.database.FixTags(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("fix tags")
		abortError(c, http.StatusInternalServerError, "修复Tags失败: "+err.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "fixed_count": fixed})
}

func (s *Server) dedupLinks(c *gin.Context) {
	stats, err := s.deduper.RunStrict(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("dedup links")
		abortError(c, http.StatusInternalServerError, "链接去重失败: "+err.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted_count": stats.Deleted})
}

func (s *Server) clearCheckData(c *gin.Context) {
	if err := s.database.ClearCheckData(c.Request.Context()); err != nil {
		s.logger.Error().Err(err).Msg("clear check data")
		abortError(c, http.StatusInternalServerError, "清空链接检测数据失败: "+err.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) clearOldCheckData(c *gin.Context) {
	req := struct {
		Days int `json:"days"`
	}{Days: 30}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if req.Days < 1 {
		abortError(c, http.StatusBadRequest, "天数必须大于0")
		return
	}

	deleted, err := s.database.ClearOldCheckData(c.Request.Context(), req.Days)
	if err != nil {
		s.logger.Error().Err(err).Msg("clear old check data")
		abortError(c, http.StatusInternalServerError, "清空旧链接检测数据失败: "+err.Error())

		return
	}

	cutoff := time.Now().AddDate(0, 0, -req.Days)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"deleted_stats": deleted,
		"cutoff_time":   cutoff.Format(time.RFC3339),
	})
}
