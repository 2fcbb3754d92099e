package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/billing"
	"github.com/flyashdesk/dashboard/internal/config"
	dbpkg "github.com/flyashdesk/dashboard/internal/db"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/flyashdesk/dashboard/internal/settings"
	"github.com/flyashdesk/dashboard/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "correct-horse-1"

var testJWT = config.JWTConfig{Secret: "dashboard-test-secret-0123456789", Expiry: time.Hour}

type apiFixture struct {
	t      *testing.T
	conn   *gorm.DB
	engine *gin.Engine
	super  models.User
	admin  models.User
	user   models.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Cleanup(func() { settings.StoreDBConfig(time.Time{}, nil) })

	conn, errOpen := dbpkg.Open(fmt.Sprintf("file:dashboard_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, errOpen)
	require.NoError(t, dbpkg.Migrate(conn))

	hash, errHash := security.HashPassword(testPassword)
	require.NoError(t, errHash)
	create := func(email, role string, createdBy *uint64) models.User {
		u := models.User{Name: email, Email: email, Password: hash, Role: role, IsActive: true, CreatedBy: createdBy}
		require.NoError(t, conn.Create(&u).Error)
		return u
	}

	f := &apiFixture{t: t, conn: conn}
	f.super = create("root@example.com", "superadmin", nil)
	f.admin = create("admin@example.com", "admin", &f.super.ID)
	f.user = create("user@example.com", "user", &f.admin.ID)

	svc := accounting.NewService(store.NewGormStore(conn), billing.NewResolver(decimal.NewFromInt(100)))
	f.engine = NewEngine(Deps{
		DB:          conn,
		Service:     svc,
		JWT:         testJWT,
		Revocations: security.NewDBRevocationStore(conn),
	})
	return f
}

func (f *apiFixture) tokenFor(u models.User) string {
	f.t.Helper()
	token, _, err := security.GenerateToken(testJWT.Secret, u.ID, u.Email, u.Role, testJWT.Expiry)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, token string, body any) (int, map[string]any) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	code, body := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	code, body := f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "USER@example.com ", "password": testPassword})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "user", body["role"])
	assert.NotEmpty(t, body["token"])

	code, _ = f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "user@example.com", "password": "nope-nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "ghost@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, code)

	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", f.user.ID).Update("is_active", false).Error)
	code, body = f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "user@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "user inactive", body["error"])
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPIFixture(t)

	code, body := f.do(http.MethodGet, "/v0/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing authorization header", body["error"])

	code, _ = f.do(http.MethodGet, "/v0/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	token := f.tokenFor(f.user)
	code, body = f.do(http.MethodGet, "/v0/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user@example.com", body["email"])

	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", f.user.ID).Update("is_active", false).Error)
	code, _ = f.do(http.MethodGet, "/v0/auth/me", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(f.admin)

	code, _ := f.do(http.MethodPost, "/v0/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(http.MethodGet, "/v0/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "token revoked", body["error"])
}

func TestRoleMiddleware(t *testing.T) {
	f := newAPIFixture(t)

	code, _ := f.do(http.MethodGet, "/v0/settings", f.tokenFor(f.user), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodGet, "/v0/settings", f.tokenFor(f.admin), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(http.MethodPut, "/v0/settings/RATE_PER_TON", f.tokenFor(f.admin), gin.H{"value": 250})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodPost, "/v0/auth/register", f.tokenFor(f.user),
		gin.H{"email": "new@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRegister(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.tokenFor(f.admin)

	code, body := f.do(http.MethodPost, "/v0/auth/register", adminToken,
		gin.H{"name": "Depot", "email": "Depot@Example.com", "password": testPassword})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "depot@example.com", body["email"])
	assert.Equal(t, "user", body["role"])
	assert.EqualValues(t, f.admin.ID, body["created_by"])

	code, _ = f.do(http.MethodPost, "/v0/auth/register", adminToken,
		gin.H{"email": "depot@example.com", "password": testPassword})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(http.MethodPost, "/v0/auth/register", adminToken,
		gin.H{"email": "boss@example.com", "password": testPassword, "role": "admin"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodPost, "/v0/auth/register", f.tokenFor(f.super),
		gin.H{"email": "boss@example.com", "password": testPassword, "role": "admin"})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = f.do(http.MethodPost, "/v0/auth/register", adminToken,
		gin.H{"email": "short@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUsersScopeAndLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.tokenFor(f.admin)

	code, body := f.do(http.MethodGet, "/v0/users", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "user@example.com", users[0].(map[string]any)["email"])

	code, _ = f.do(http.MethodGet, fmt.Sprintf("/v0/users/%d", f.super.ID), adminToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	path := fmt.Sprintf("/v0/users/%d", f.user.ID)
	code, _ = f.do(http.MethodDelete, path, adminToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.do(http.MethodPut, path, adminToken, gin.H{"is_active": false, "name": "Retired"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["is_active"])
	assert.Equal(t, "Retired", body["name"])

	code, _ = f.do(http.MethodPut, path, adminToken, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodDelete, path, adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	var count int64
	f.conn.Model(&models.User{}).Where("id = ?", f.user.ID).Count(&count)
	assert.Zero(t, count)
}

func TestBalanceAndTokenFlow(t *testing.T) {
	f := newAPIFixture(t)
	adminToken := f.tokenFor(f.admin)
	userToken := f.tokenFor(f.user)

	code, body := f.do(http.MethodPost, "/v0/balances", adminToken, gin.H{
		"user_id":       f.user.ID,
		"flyash_amount": "1000",
		"payment_mode":  "online",
		"bank_details":  gin.H{"bank_name": "SBI", "reference_number": "UTR1"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	txn := body["transaction"].(map[string]any)
	assert.Equal(t, "10", txn["flyash_tons"])
	assert.Equal(t, "UTR1", txn["bank_details"].(map[string]any)["reference_number"])

	code, body = f.do(http.MethodPost, "/v0/tokens", userToken, gin.H{"customer_name": "Ravi", "truck_number": "MH12"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "flyash", body["material_type"])
	tokenID := uint64(body["id"].(float64))

	code, body = f.do(http.MethodPut, fmt.Sprintf("/v0/tokens/%d", tokenID), userToken, gin.H{"weight": "4"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "400", body["total_amount"])
	assert.Equal(t, "updated", body["status"])

	code, body = f.do(http.MethodPut, fmt.Sprintf("/v0/tokens/%d", tokenID), userToken, gin.H{"weight": "40"})
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = f.do(http.MethodGet, fmt.Sprintf("/v0/balances/%d", f.user.ID), userToken, nil)
	require.Equal(t, http.StatusOK, code)
	flyash := body["balances"].([]any)[0].(map[string]any)
	assert.Equal(t, "4", flyash["used_tons"])
	assert.Equal(t, "6", flyash["remaining_tons"])

	code, body = f.do(http.MethodPut, "/v0/tokens/confirm", userToken, gin.H{"token_id": tokenID, "paid_amount": "500"})
	require.Equal(t, http.StatusOK, code, body)
	settlement := body["settlement"].(map[string]any)
	assert.Equal(t, "100", settlement["leftover"])
	confirmed := body["tokens"].([]any)[0].(map[string]any)
	assert.Equal(t, "completed", confirmed["status"])
	assert.Equal(t, "100", confirmed["carry_forward"])

	code, body = f.do(http.MethodPost, "/v0/tokens", userToken, gin.H{"customer_name": "Ravi"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "100", body["paid_amount"])

	code, body = f.do(http.MethodGet, fmt.Sprintf("/v0/tokens/user/%d", f.user.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tokens"].([]any), 2)

	code, _ = f.do(http.MethodGet, fmt.Sprintf("/v0/tokens/user/%d", f.admin.ID), userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = f.do(http.MethodGet, fmt.Sprintf("/v0/balances/%d/transactions?reference=UTR1", f.user.ID), userToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["transactions"].([]any), 1)
}

func TestTokenErrors(t *testing.T) {
	f := newAPIFixture(t)
	userToken := f.tokenFor(f.user)

	code, _ := f.do(http.MethodPut, "/v0/tokens/999", userToken, gin.H{"weight": "1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodPut, "/v0/tokens/abc", userToken, gin.H{"weight": "1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/v0/tokens", userToken, gin.H{"customer_name": " "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPut, "/v0/tokens/confirm", userToken, gin.H{"paid_amount": "10"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/v0/tokens", userToken, gin.H{"user_id": f.admin.ID, "customer_name": "X"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSettingsUpdateChangesRate(t *testing.T) {
	f := newAPIFixture(t)
	superToken := f.tokenFor(f.super)

	code, _ := f.do(http.MethodPut, "/v0/settings/UNKNOWN", superToken, gin.H{"value": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPut, "/v0/settings/RATE_PER_TON", superToken, gin.H{"value": -5})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(http.MethodPut, "/v0/settings/RATE_PER_TON", superToken, gin.H{"value": "180.125"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "2 decimal places")

	code, body = f.do(http.MethodPut, "/v0/settings/RATE_PER_TON", superToken, gin.H{"value": 250})
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(http.MethodPost, "/v0/balances", superToken, gin.H{"user_id": f.user.ID, "bedash_amount": "500"})
	require.Equal(t, http.StatusCreated, code, body)
	txn := body["transaction"].(map[string]any)
	assert.Equal(t, "250", txn["rate_per_ton"])
	assert.Equal(t, "2", txn["bedash_tons"])
}

func TestBedashReminders(t *testing.T) {
	f := newAPIFixture(t)
	userToken := f.tokenFor(f.user)
	adminToken := f.tokenFor(f.admin)

	code, body := f.do(http.MethodPost, "/v0/balances", adminToken, gin.H{"user_id": f.user.ID, "bedash_amount": "300"})
	require.Equal(t, http.StatusCreated, code, body)

	code, body = f.do(http.MethodPost, "/v0/bedash", userToken, gin.H{"amount": "2", "target_date": "2026-11-01"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "bedash", body["material_type"])
	assert.Equal(t, "2026-11-01", body["target_date"])
	assert.Equal(t, "3", body["remaining_tons"])
	id := uint64(body["id"].(float64))

	code, _ = f.do(http.MethodPost, "/v0/bedash", userToken, gin.H{"amount": "2", "target_date": "01/11/2026"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(http.MethodGet, "/v0/bedash", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"].([]any), 1)

	code, body = f.do(http.MethodGet, "/v0/bedash", f.tokenFor(f.super), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"].([]any), 1)

	path := fmt.Sprintf("/v0/bedash/%d/complete", id)
	code, _ = f.do(http.MethodPut, path, userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = f.do(http.MethodPut, path, adminToken, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", body["status"])

	code, _ = f.do(http.MethodPut, path, adminToken, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestTOTPEnrollmentAndLogin(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(f.admin)

	code, body := f.do(http.MethodPost, "/v0/auth/mfa/totp/prepare", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	secret := body["secret"].(string)
	require.NotEmpty(t, secret)

	code, _ = f.do(http.MethodPost, "/v0/auth/mfa/totp/confirm", token, gin.H{"code": "000000x"})
	assert.Equal(t, http.StatusBadRequest, code)

	current, errCode := totp.GenerateCode(secret, time.Now())
	require.NoError(t, errCode)
	code, body = f.do(http.MethodPost, "/v0/auth/mfa/totp/confirm", token, gin.H{"code": current})
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "admin@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "mfa required", body["error"])

	code, _ = f.do(http.MethodPost, "/v0/auth/login", "", gin.H{"email": "admin@example.com", "password": testPassword, "totp_code": current})
	assert.Equal(t, http.StatusOK, code)
}
