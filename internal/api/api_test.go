package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"options-core/internal/approval"
	"options-core/internal/authz"
	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/internal/monitor"
	"options-core/internal/oracle"
	"options-core/internal/settings"
	"options-core/internal/settlement"
	"options-core/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	server   *Server
	database *db.Database
	ledger   *ledger.Ledger
	oracle   *oracle.MockOracle
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	require.NoError(t, database.UpsertTier(context.Background(), db.AssetTier{
		DurationSecs:     60,
		ProfitMultiplier: 1.8,
		MinStakeUSD:      decimal.NewFromInt(10),
	}))

	bus := events.NewBus()
	lgr := ledger.New(database)
	mock := oracle.NewMockOracle()
	mock.SetPrice("BTCUSDT", 50000)
	store := settings.NewStore(database, time.Millisecond)
	engine := settlement.NewEngine(database, lgr, mock, store, bus)
	approvals := approval.NewService(database, lgr, bus)
	metrics := monitor.NewSystemMetrics()

	return &apiFixture{
		server:   NewServer(bus, database, lgr, engine, approvals, store, metrics, testSecret),
		database: database,
		ledger:   lgr,
		oracle:   mock,
	}
}

// newActor inserts a user with the given role and returns their bearer token
// and wallet address.
func (f *apiFixture) newActor(t *testing.T, role string) (string, string) {
	t.Helper()
	u := db.User{
		ID:            uuid.NewString(),
		Email:         uuid.NewString() + "@example.com",
		PasswordHash:  "unused",
		Role:          role,
		WalletAddress: newWalletAddress(),
	}
	require.NoError(t, f.database.CreateUser(context.Background(), u))

	token, err := generateToken(&u, testSecret, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token, u.WalletAddress
}

func (f *apiFixture) fund(t *testing.T, wallet, amount string) {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	err := f.database.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := f.ledger.Adjust(context.Background(), tx, wallet, "USDT",
			ledger.Delta{Available: amt, RealBalance: amt})
		return err
	})
	require.NoError(t, err)
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decodeBody(t, w)
	assert.NotEmpty(t, reg["wallet_address"])

	// Duplicate email rejected.
	w = f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "alice@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decodeBody(t, w)
	assert.NotEmpty(t, login["token"])
	assert.Equal(t, authz.RoleUser, login["role"])

	// Wrong password.
	w = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/balance", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenTradeAndReadBack(t *testing.T) {
	f := newAPIFixture(t)
	token, wallet := f.newActor(t, authz.RoleUser)
	f.fund(t, wallet, "1000")

	w := f.do(t, http.MethodPost, "/api/trades", token, gin.H{
		"asset": "BTCUSDT", "side": "buy", "amountUsd": "100", "durationSecs": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trade := decodeBody(t, w)
	assert.Equal(t, db.TradeStatusActive, trade["status"])
	assert.Equal(t, float64(50000), trade["entryPrice"])

	w = f.do(t, http.MethodGet, "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bal := decodeBody(t, w)
	assert.Equal(t, "900", bal["available"])

	w = f.do(t, http.MethodGet, "/api/trades", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody(t, w)
	assert.Len(t, list["trades"], 1)
}

func TestOpenTradeValidationErrors(t *testing.T) {
	f := newAPIFixture(t)
	token, wallet := f.newActor(t, authz.RoleUser)
	f.fund(t, wallet, "1000")

	w := f.do(t, http.MethodPost, "/api/trades", token, gin.H{
		"asset": "BTCUSDT", "side": "hold", "amountUsd": "100", "durationSecs": 60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRADE", decodeBody(t, w)["code"])
}

func TestManualControlRequiresSuperAdmin(t *testing.T) {
	f := newAPIFixture(t)
	userTok, wallet := f.newActor(t, authz.RoleUser)
	adminTok, _ := f.newActor(t, authz.RoleAdmin)
	superTok, _ := f.newActor(t, authz.RoleSuperAdmin)

	f.fund(t, wallet, "1000")
	w := f.do(t, http.MethodPost, "/api/trades", userTok, gin.H{
		"asset": "BTCUSDT", "side": "buy", "amountUsd": "100", "durationSecs": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	tradeID := decodeBody(t, w)["id"].(string)

	body := gin.H{"tradeId": tradeID, "outcome": "WIN"}

	w = f.do(t, http.MethodPost, "/api/admin/trades/manual-control", userTok, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, http.MethodPost, "/api/admin/trades/manual-control", adminTok, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/trades/manual-control", superTok, body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWithdrawalReviewFlow(t *testing.T) {
	f := newAPIFixture(t)
	userTok, wallet := f.newActor(t, authz.RoleUser)
	adminTok, _ := f.newActor(t, authz.RoleAdmin)
	f.fund(t, wallet, "500")

	w := f.do(t, http.MethodPost, "/api/withdrawals", userTok, gin.H{
		"currency":           "USDT",
		"cryptoAmount":       "100",
		"usdtAmount":         "100",
		"fee":                "2",
		"destinationAddress": "0xdest",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody(t, w)["id"].(string)

	// Employees may not review withdrawals.
	empTok, _ := f.newActor(t, authz.RoleEmployee)
	w = f.do(t, http.MethodPost, "/api/admin/withdrawals/approve", empTok, gin.H{"id": id})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/withdrawals/approve", adminTok, gin.H{
		"id": id, "txHash": "0xhash",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, db.ReviewApproved, decodeBody(t, w)["status"])

	// A duplicate approval reports the distinguishable code.
	w = f.do(t, http.MethodPost, "/api/admin/withdrawals/approve", adminTok, gin.H{
		"id": id, "txHash": "0xhash",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_PROCESSED", decodeBody(t, w)["code"])
}

func TestOverWithdrawalIsUserError(t *testing.T) {
	f := newAPIFixture(t)
	userTok, wallet := f.newActor(t, authz.RoleUser)
	f.fund(t, wallet, "50")

	w := f.do(t, http.MethodPost, "/api/withdrawals", userTok, gin.H{
		"currency":           "USDT",
		"cryptoAmount":       "100",
		"usdtAmount":         "100",
		"fee":                "0",
		"destinationAddress": "0xdest",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", decodeBody(t, w)["code"])
}

func TestDepositReviewFlow(t *testing.T) {
	f := newAPIFixture(t)
	userTok, _ := f.newActor(t, authz.RoleUser)
	empTok, _ := f.newActor(t, authz.RoleEmployee)

	w := f.do(t, http.MethodPost, "/api/deposits", userTok, gin.H{
		"currency":       "BTC",
		"cryptoAmount":   "0.01",
		"conversionRate": 50000,
		"txHash":         "0xdeadbeef",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody(t, w)["id"].(string)

	// Employees may review deposits.
	w = f.do(t, http.MethodPost, "/api/admin/deposits/approve", empTok, gin.H{"id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/admin/deposits/approve", empTok, gin.H{"id": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGlobalTradeSettingsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	adminTok, _ := f.newActor(t, authz.RoleAdmin)
	superTok, _ := f.newActor(t, authz.RoleSuperAdmin)

	// Admins read, only superadmins write.
	w := f.do(t, http.MethodGet, "/api/admin/global-trade-settings", adminTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := gin.H{"globalMode": "custom", "globalWinPercentage": 2.5, "globalLossPercentage": 1.5}
	w = f.do(t, http.MethodPost, "/api/admin/global-trade-settings", adminTok, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/global-trade-settings", superTok, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Out-of-range percentages rejected.
	w = f.do(t, http.MethodPost, "/api/admin/global-trade-settings", superTok, gin.H{
		"globalMode": "custom", "globalWinPercentage": 120, "globalLossPercentage": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleExpiredEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	adminTok, _ := f.newActor(t, authz.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/admin/settle-expired", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeBody(t, w)["settled"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	adminTok, _ := f.newActor(t, authz.RoleAdmin)
	userTok, _ := f.newActor(t, authz.RoleUser)

	w := f.do(t, http.MethodGet, "/api/admin/metrics", userTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/admin/metrics", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeBody(t, w)
	assert.Contains(t, snap, "api_requests")
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
