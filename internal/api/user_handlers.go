package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/auth"
)

func userErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "用户不存在"
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusBadRequest, "用户名已存在"
	case errors.Is(err, auth.ErrInvalidRole):
		return http.StatusBadRequest, "角色无效"
	case errors.Is(err, auth.ErrProtectedUser):
		return http.StatusBadRequest, "不能操作管理员用户"
	default:
		return http.StatusInternalServerError, "用户操作失败: " + err.Error()
	}
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.users.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("list users")
		abortError(c, http.StatusInternalServerError, "获取用户列表失败")

		return
	}

	c.JSON(http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if req.Role == "" {
		req.Role = auth.RoleUser
	}

	if err := s.users.Add(req.Username, req.Password, req.Name, req.Email, req.Role); err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	user, err := s.users.Get(req.Username)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "用户创建成功但无法获取用户信息")
		return
	}

	c.JSON(http.StatusOK, user)
}

// getUser also serves the export routes, which gin cannot register as
// static siblings of the :username param.
func (s *Server) getUser(c *gin.Context) {
	username := c.Param("username")
	if username == "export-all" || username == "export" {
		s.listUsers(c)
		return
	}

	user, err := s.users.Get(username)
	if err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

func (s *Server) updateUser(c *gin.Context) {
	username := c.Param("username")

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if err := s.users.Update(username, req.Name, req.Email, req.Role); err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	user, err := s.users.Get(username)
	if err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteUser(c *gin.Context) {
	username := c.Param("username")

	if err := s.users.Remove(username); err != nil {
		status, detail := userErrorStatus(err)
		if errors.Is(err, auth.ErrProtectedUser) {
			detail = "不能删除管理员用户"
		}

		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "用户删除成功", "username": username})
}

func (s *Server) setUserPassword(c *gin.Context) {
	username := c.Param("username")

	var req struct {
		NewPassword string `json:"new_password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if err := s.users.ChangePassword(username, req.NewPassword); err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "密码修改成功", "username": username})
}

func (s *Server) renameUser(c *gin.Context) {
	username := c.Param("username")

	var req struct {
		NewUsername string `json:"new_username" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if err := s.users.Rename(username, req.NewUsername); err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "用户名修改成功",
		"old_username": username,
		"new_username": req.NewUsername,
	})
}

func (s *Server) setUserRole(c *gin.Context) {
	username := c.Param("username")

	var req struct {
		NewRole string `json:"new_role" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	if err := s.users.Update(username, nil, nil, &req.NewRole); err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "角色修改成功", "username": username, "new_role": req.NewRole})
}

// availableRoles serves /api/admin/users/roles/available through the
// :username param.
func (s *Server) availableRoles(c *gin.Context) {
	if c.Param("username") != "roles" {
		abortError(c, http.StatusNotFound, "not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		auth.RoleAdmin: "管理员",
		auth.RoleUser:  "普通用户",
	})
}

type bulkCreateRequest struct {
	Count          int    `json:"count"`
	Prefix         string `json:"prefix"`
	StartIndex     int    `json:"start_index"`
	Role           string `json:"role"`
	PasswordLength int    `json:"password_length"`
}

func (s *Server) bulkCreateUsers(c *gin.Context) {
	req := bulkCreateRequest{Count: 10, Prefix: "user", StartIndex: 1, Role: auth.RoleUser, PasswordLength: 12}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	successes, failures, err := s.users.BulkCreate(req.Count, req.Prefix, req.StartIndex, req.Role, req.PasswordLength)
	if err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"successes": orEmptyCreds(successes),
		"failures":  orEmptyFailures(failures),
	})
}

type bulkUsernamesRequest struct {
	Usernames      []string `json:"usernames" binding:"required"`
	PasswordLength int      `json:"password_length"`
}

func (s *Server) bulkDeleteUsers(c *gin.Context) {
	var req bulkUsernamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	removed, failures, err := s.users.BulkRemove(req.Usernames)
	if err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	if removed == nil {
		removed = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"successes": removed, "failures": orEmptyFailures(failures)})
}

func (s *Server) bulkResetPasswords(c *gin.Context) {
	req := bulkUsernamesRequest{PasswordLength: 12}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "请求体格式错误")
		return
	}

	successes, failures, err := s.users.BulkResetPasswords(req.Usernames, req.PasswordLength)
	if err != nil {
		status, detail := userErrorStatus(err)
		abortError(c, status, detail)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"successes": orEmptyCreds(successes),
		"failures":  orEmptyFailures(failures),
	})
}

func orEmptyCreds(creds []auth.Credentials) []auth.Credentials {
	if creds == nil {
		return []auth.Credentials{}
	}

	return creds
}

func orEmptyFailures(failures []auth.Failure) []auth.Failure {
	if failures == nil {
		return []auth.Failure{}
	}

	return failures
}
