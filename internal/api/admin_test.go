package api

import (
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panwatch/panwatch/internal/auth"
	"github.com/panwatch/panwatch/internal/core/domain"
)

func TestCredentialEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.database.creds = []domain.Credential{{ID: 1, APIID: "12345", APIHash: "hash"}}

	w := env.do(t, http.MethodGet, "/api/admin/credentials", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var creds []credentialView
	decode(t, w, &creds)
	require.Len(t, creds, 1)
	assert.Equal(t, "12345", creds[0].APIID)

	w = env.do(t, http.MethodPost, "/api/admin/credentials", env.adminToken, map[string]string{
		"api_id": "67890", "api_hash": "h2",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	env.database.credDup = true
	w = env.do(t, http.MethodPost, "/api/admin/credentials", env.adminToken, map[string]string{
		"api_id": "12345", "api_hash": "hash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/admin/credentials/1", env.adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/admin/credentials/9", env.adminToken, nil).Code)
}

func TestChannelEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/channels", env.adminToken, map[string]string{"username": "movies"})
	require.Equal(t, http.StatusOK, w.Code)

	env.database.chanDup = true
	w = env.do(t, http.MethodPost, "/api/admin/channels", env.adminToken, map[string]string{"username": "movies"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/channels/1", env.adminToken, map[string]string{"username": "series"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/channels/9", env.adminToken, map[string]string{"username": "series"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/admin/channels/1", env.adminToken, nil).Code)
}

func TestDiagnoseWithoutClient(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/channels/diagnose", env.adminToken, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/channels/test-monitor", env.adminToken, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestConfigUpdatePersistsEnvFile(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, os.WriteFile(env.envFile, []byte("DATABASE_URL=postgres://x\n"), 0o644))

	w := env.do(t, http.MethodPut, "/api/admin/config", env.adminToken, map[string]bool{
		"public_dashboard_enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data, err := os.ReadFile(env.envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DATABASE_URL=postgres://x")
	assert.Contains(t, string(data), "PUBLIC_DASHBOARD_ENABLED=true")
	assert.True(t, strings.HasSuffix(string(data), "\n"))

	public := env.do(t, http.MethodGet, "/api/config/public", "", nil)

	var body map[string]bool
	decode(t, public, &body)
	assert.True(t, body["public_dashboard_enabled"])
}

func TestUserCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/users", env.adminToken, map[string]string{
		"username": "bob", "password": "bob-pass", "name": "Bob",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var info auth.Info
	decode(t, w, &info)
	assert.Equal(t, auth.RoleUser, info.Role)

	w = env.do(t, http.MethodPost, "/api/admin/users", env.adminToken, map[string]string{
		"username": "bob", "password": "again",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/users/bob", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodGet, "/api/admin/users/ghost", env.adminToken, nil).Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/bob", env.adminToken, map[string]string{"name": "Bobby"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &info)
	assert.Equal(t, "Bobby", info.Name)

	w = env.do(t, http.MethodPut, "/api/admin/users/bob/role", env.adminToken, map[string]string{"new_role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/bob/role", env.adminToken, map[string]string{"new_role": "wizard"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/bob/username", env.adminToken, map[string]string{"new_username": "robert"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/admin/users/robert/password", env.adminToken, map[string]string{"new_password": "fresh"})
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/admin/users/robert", env.adminToken, nil).Code)
}

func TestDeleteAdminRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodDelete, "/api/admin/users/admin", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportAndRoles(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/admin/users/export-all", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var users []auth.Info
	decode(t, w, &users)
	assert.Len(t, users, 2)
	assert.NotContains(t, w.Body.String(), "password")

	w = env.do(t, http.MethodGet, "/api/admin/users/roles/available", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var roles map[string]string
	decode(t, w, &roles)
	assert.Contains(t, roles, auth.RoleAdmin)
	assert.Contains(t, roles, auth.RoleUser)
}

func TestBulkUserEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/users/bulk/random-create", env.adminToken, map[string]any{
		"count": 3, "prefix": "guest", "start_index": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Successes []auth.Credentials `json:"successes"`
		Failures  []auth.Failure     `json:"failures"`
	}

	decode(t, w, &created)
	require.Len(t, created.Successes, 3)
	assert.Empty(t, created.Failures)

	names := make([]string, 0, len(created.Successes))
	for _, cr := range created.Successes {
		names = append(names, cr.Username)
	}

	w = env.do(t, http.MethodPost, "/api/admin/users/bulk/reset-password", env.adminToken, map[string]any{
		"usernames": append(names, "admin"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reset struct {
		Successes []auth.Credentials `json:"successes"`
		Failures  []auth.Failure     `json:"failures"`
	}

	decode(t, w, &reset)
	assert.Len(t, reset.Successes, 3)
	require.Len(t, reset.Failures, 1)
	assert.Equal(t, "admin", reset.Failures[0].Username)

	w = env.do(t, http.MethodPost, "/api/admin/users/bulk/delete", env.adminToken, map[string]any{
		"usernames": append(names, "admin"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var deleted struct {
		Successes []string       `json:"successes"`
		Failures  []auth.Failure `json:"failures"`
	}

	decode(t, w, &deleted)
	assert.Len(t, deleted.Successes, 3)
	assert.Len(t, deleted.Failures, 1)
}

func TestMaintenanceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.database.fixed = 4
	env.database.clearedOld = 9

	w := env.do(t, http.MethodPost, "/api/admin/maintenance/fix-tags", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fix map[string]any
	decode(t, w, &fix)
	assert.Equal(t, float64(4), fix["fixed_count"])

	w = env.do(t, http.MethodPost, "/api/admin/maintenance/dedup-links", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dd map[string]any
	decode(t, w, &dd)
	assert.Equal(t, float64(3), dd["deleted_count"])

	w = env.do(t, http.MethodPost, "/api/admin/maintenance/clear-link-check-data", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.database.cleared)

	w = env.do(t, http.MethodPost, "/api/admin/maintenance/clear-old-link-check-data", env.adminToken, map[string]int{"days": 7})
	require.Equal(t, http.StatusOK, w.Code)

	var old map[string]any
	decode(t, w, &old)
	assert.Equal(t, float64(9), old["deleted_stats"])
}

func TestLinkCheckEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/link-check/start", env.adminToken, map[string]any{
		"period": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/admin/link-check/start", env.adminToken, map[string]any{
		"period": "today", "max_concurrent": 3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}

	decode(t, w, &status)
	require.NotEmpty(t, status.TaskID)

	deadline := time.Now().Add(2 * time.Second)

	for {
		w = env.do(t, http.MethodGet, "/api/admin/link-check/tasks/"+status.TaskID, env.adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &status)

		if status.Status != domain.CheckStatusRunning || time.Now().After(deadline) {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, domain.CheckStatusCompleted, status.Status)

	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodGet, "/api/admin/link-check/tasks/missing", env.adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/admin/link-check/tasks/missing/cancel", env.adminToken, nil).Code)
}

func TestCheckHistoryAndResult(t *testing.T) {
	env := newTestEnv(t)

	checkTime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.Local)
	env.database.history = []domain.LinkCheckStat{{
		ID:         1,
		CheckTime:  checkTime,
		TotalLinks: 5,
		ValidLinks: 4,
		Status:     domain.CheckStatusCompleted,
	}}

	w := env.do(t, http.MethodGet, "/api/admin/link-check/tasks?limit=5", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history []checkHistoryView
	decode(t, w, &history)
	require.Len(t, history, 1)
	assert.Equal(t, 5, history[0].TotalLinks)

	env.database.resultStat = &env.database.history[0]
	env.database.resultDet = []domain.LinkCheckDetail{{URL: "https://pan.quark.cn/s/a", IsValid: true}}

	w = env.do(t, http.MethodGet,
		"/api/admin/link-check/tasks/"+checkTime.Format("2006-01-02T15:04:05")+"/result", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Stats   checkStatView     `json:"stats"`
		Details []checkDetailView `json:"details"`
	}

	decode(t, w, &result)
	assert.Equal(t, 5, result.Stats.TotalLinks)
	require.Len(t, result.Details, 1)
	assert.True(t, result.Details[0].IsValid)

	w = env.do(t, http.MethodGet, "/api/admin/link-check/tasks/not-a-time/result", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
