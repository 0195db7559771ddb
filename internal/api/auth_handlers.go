package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/auth"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	User        auth.Info `json:"user"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	user, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		abortError(c, http.StatusUnauthorized, "用户名或密码错误")

		return
	}

	token, _, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("issue token")
		abortError(c, http.StatusInternalServerError, "登录失败")

		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        *user,
	})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// logout exists for the client's benefit; tokens are stateless and the
// client discards its copy.
func (s *Server) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "登出成功", "username": currentUser(c).Username})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) changeMyPassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	username := currentUser(c).Username

	if _, err := s.users.Authenticate(username, req.OldPassword); err != nil {
		if errors.Is(err, auth.ErrBadPassword) {
			abortError(c, http.StatusBadRequest, "旧密码错误")
			return
		}

		abortError(c, http.StatusNotFound, "用户不存在")

		return
	}

	if err := s.users.ChangePassword(username, req.NewPassword); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("change password")
		abortError(c, http.StatusInternalServerError, "修改密码失败")

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "密码修改成功", "username": username})
}
