package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/core/domain"
	db "github.com/panwatch/panwatch/internal/storage"
)

const (
	defaultPageSize  = 100
	maxPageSize      = 200
	guestMaxPageSize = 100
)

type messageView struct {
	ID           int64        `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Links        domain.Links `json:"links"`
	Tags         []string     `json:"tags"`
	Source       string       `json:"source"`
	Channel      string       `json:"channel"`
	GroupName    string       `json:"group_name"`
	Bot          string       `json:"bot"`
	CreatedAt    time.Time    `json:"created_at"`
	NetdiskTypes []string     `json:"netdisk_types"`
}

func toMessageView(m *domain.Message) messageView {
	return messageView{
		ID:           m.ID,
		Timestamp:    m.Timestamp,
		Title:        m.Title,
		Description:  m.Description,
		Links:        m.Links,
		Tags:         m.Tags,
		Source:       m.Source,
		Channel:      m.Channel,
		GroupName:    m.GroupName,
		Bot:          m.Bot,
		CreatedAt:    m.CreatedAt,
		NetdiskTypes: m.NetdiskTypes,
	}
}

func intQuery(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}

func (s *Server) listMessages(c *gin.Context) {
	isGuest, ok := s.guestGate(c)
	if !ok {
		return
	}

	filter := db.MessageFilter{
		Search:           c.Query("search_query"),
		TimeRange:        c.DefaultQuery("time_range", db.TimeRangeDay),
		Tags:             c.QueryArray("selected_tags"),
		Netdisks:         c.QueryArray("selected_netdisks"),
		MinContentLength: intQuery(c, "min_content_length", 0, 0, 1<<20),
		HasLinksOnly:     c.Query("has_links_only") == "true",
		Page:             intQuery(c, "page", 1, 1, 1<<30),
		PageSize:         intQuery(c, "page_size", defaultPageSize, 1, maxPageSize),
	}

	// Guests are read-only: fixed 24h window, no filters, capped page
	// size, paging still allowed.
	if isGuest {
		filter.Search = ""
		filter.TimeRange = db.TimeRangeDay
		filter.Tags = nil
		filter.Netdisks = nil
		filter.MinContentLength = 0
		filter.HasLinksOnly = false

		if filter.PageSize > guestMaxPageSize {
			filter.PageSize = guestMaxPageSize
		}
	}

	page, err := s.database.FilteredMessages(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list messages")
		abortError(c, http.StatusInternalServerError, "获取消息列表失败")

		return
	}

	views := make([]messageView, 0, len(page.Messages))
	for i := range page.Messages {
		views = append(views, toMessageView(&page.Messages[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  views,
		"total":     page.Total,
		"page":      page.Page,
		"page_size": filter.PageSize,
		"max_page":  page.MaxPage,
	})
}

func (s *Server) getMessage(c *gin.Context) {
	if _, ok := s.guestGate(c); !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "无效的消息ID")
		return
	}

	message, err := s.database.GetMessage(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		abortError(c, http.StatusNotFound, "消息 "+c.Param("id")+" 不存在")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("get message")
		abortError(c, http.StatusInternalServerError, "获取消息详情失败")

		return
	}

	c.JSON(http.StatusOK, toMessageView(message))
}

// tagStats serves /api/messages/tags/stats; the "tags" segment arrives
// through the :id param.
func (s *Server) tagStats(c *gin.Context) {
	if c.Param("id") != "tags" {
		abortError(c, http.StatusNotFound, "not found")
		return
	}

	if _, ok := s.guestGate(c); !ok {
		return
	}

	limit := intQuery(c, "limit", 50, 1, 100)

	stats, err := s.database.TagStats(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("tag stats")
		abortError(c, http.StatusInternalServerError, "获取标签统计失败")

		return
	}

	if stats == nil {
		stats = []db.TagCount{}
	}

	c.JSON(http.StatusOK, stats)
}
