package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vestlabs/vesting-service/internal/api/http/handlers"
	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/cache"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/events"
	"github.com/vestlabs/vesting-service/internal/idempotency"
	"github.com/vestlabs/vesting-service/internal/observability"
	"github.com/vestlabs/vesting-service/internal/repository"
	"github.com/vestlabs/vesting-service/internal/service"
	"github.com/vestlabs/vesting-service/internal/treasury"
)

type switchTreasury struct {
	failing atomic.Bool
	calls   atomic.Int32
}

func (s *switchTreasury) Transfer(context.Context, treasury.Instruction) error {
	s.calls.Add(1)
	if s.failing.Load() {
		return errors.New("ledger offline")
	}
	return nil
}

type apiTester struct {
	app      *fiber.App
	tokens   *auth.TokenManager
	clock    clockwork.FakeClock
	treasury *switchTreasury
}

func newAPITester(t *testing.T) *apiTester {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics()
	clock := clockwork.NewFakeClockAt(time.Unix(50, 0))
	tr := &switchTreasury{}
	store := repository.NewMemoryStore()

	vesting := service.NewVestingService(service.VestingDependencies{
		Store:      store,
		Guard:      auth.NewGuard(),
		Treasury:   tr,
		Dispatcher: events.NewInMemoryDispatcher(),
		Logger:     logger,
		Metrics:    metrics,
		Clock:      clock,
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idem := idempotency.New(cache.New(cache.Options[idempotency.Entry]{Client: client, Prefix: "idem"}), time.Hour, logger)

	tokens := auth.NewTokenManager("test-secret", 60)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("vesting-service", "test", map[string]handlers.Pinger{"store": store}),
		Pools:          handlers.NewPoolsHandler(vesting),
		Grants:         handlers.NewGrantsHandler(vesting, clock),
		Transfers:      handlers.NewTransfersHandler(vesting),
		Accounts:       handlers.NewAccountsHandler(vesting),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Idempotency:    idem,
		Metrics:        adaptor.HTTPHandler(metrics.Handler()),
	})
	return &apiTester{app: app, tokens: tokens, clock: clock, treasury: tr}
}

func (a *apiTester) token(t *testing.T, identity domain.Identity, role *domain.Role) string {
	t.Helper()
	tok, _, err := a.tokens.GenerateToken(identity, role)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (a *apiTester) do(t *testing.T, method, path, token, body string, headers ...string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type poolBody struct {
	ID              string `json:"id"`
	TreasuryBalance string `json:"treasury_balance"`
	Committed       string `json:"committed"`
}

type grantBody struct {
	ID             string `json:"id"`
	TotalWithdrawn string `json:"total_withdrawn"`
	Status         *struct {
		Vested    string `json:"vested"`
		Claimable string `json:"claimable"`
	} `json:"status"`
}

type claimBody struct {
	Amount   string `json:"amount"`
	Transfer *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"transfer"`
}

func TestVestingFlowOverHTTP(t *testing.T) {
	a := newAPITester(t)
	issuerTok := a.token(t, "issuer", nil)
	aliceTok := a.token(t, "alice", nil)

	status, env := a.do(t, "POST", "/pools", issuerTok, `{"identifier":"acme","token_type":"mint-acme"}`)
	require.Equal(t, fiber.StatusCreated, status)
	pool := decode[poolBody](t, env)
	require.Equal(t, domain.PoolID("issuer", "acme"), pool.ID)

	status, env = a.do(t, "POST", "/pools", issuerTok, `{"identifier":"acme","token_type":"mint-acme"}`)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "ALREADY_EXISTS", env.Error.Code)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/fund", aliceTok, `{"amount":"10000"}`)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/fund", issuerTok, `{"amount":"-1"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/fund", issuerTok, `{"amount":"10000"}`)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "10000", decode[poolBody](t, env).TreasuryBalance)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/grants", issuerTok,
		`{"beneficiary":"alice","start_time":0,"cliff_time":300,"end_time":200,"total_amount":"1000"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "INVALID_SCHEDULE", env.Error.Code)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/grants", issuerTok,
		`{"beneficiary":"bob","start_time":0,"cliff_time":100,"end_time":200,"total_amount":"20000"}`)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Equal(t, "INSUFFICIENT_TREASURY", env.Error.Code)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/grants", issuerTok,
		`{"beneficiary":"alice","start_time":0,"cliff_time":100,"end_time":200,"total_amount":"1000"}`)
	require.Equal(t, fiber.StatusCreated, status)
	grant := decode[grantBody](t, env)

	status, env = a.do(t, "POST", "/pools/"+pool.ID+"/grants", issuerTok,
		`{"beneficiary":"alice","start_time":0,"cliff_time":10,"end_time":20,"total_amount":"1"}`)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "DUPLICATE_GRANT", env.Error.Code)

	// clock at 50: before the cliff
	status, env = a.do(t, "POST", "/grants/"+grant.ID+"/claim", aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	claim := decode[claimBody](t, env)
	require.Equal(t, "0", claim.Amount)
	require.Nil(t, claim.Transfer)

	status, env = a.do(t, "POST", "/grants/"+grant.ID+"/claim", issuerTok, "")
	require.Equal(t, fiber.StatusForbidden, status)

	a.clock.Advance(100 * time.Second)
	status, env = a.do(t, "GET", "/grants/"+grant.ID, aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	g := decode[grantBody](t, env)
	require.Equal(t, "750", g.Status.Vested)
	require.Equal(t, "750", g.Status.Claimable)

	status, env = a.do(t, "POST", "/grants/"+grant.ID+"/claim", aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	claim = decode[claimBody](t, env)
	require.Equal(t, "750", claim.Amount)
	require.Equal(t, "COMPLETED", claim.Transfer.Status)

	status, env = a.do(t, "GET", "/pools/"+pool.ID, aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	p := decode[poolBody](t, env)
	require.Equal(t, "9250", p.TreasuryBalance)
	require.Equal(t, "250", p.Committed)

	status, env = a.do(t, "GET", "/grants", aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	mine := decode[[]grantBody](t, env)
	require.Len(t, mine, 1)
	require.Equal(t, "750", mine[0].TotalWithdrawn)

	status, env = a.do(t, "GET", "/accounts/"+claim.Transfer.ID, aliceTok, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(env.Data), `"kind":"TRANSFER"`)

	status, _ = a.do(t, "GET", "/accounts/unknown", aliceTok, "")
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestTransferFailureOverHTTP(t *testing.T) {
	a := newAPITester(t)
	issuerTok := a.token(t, "issuer", nil)
	aliceTok := a.token(t, "alice", nil)
	operator := domain.RoleOperator
	opTok := a.token(t, "ops", &operator)

	_, env := a.do(t, "POST", "/pools", issuerTok, `{"identifier":"acme","token_type":"mint"}`)
	pool := decode[poolBody](t, env)
	a.do(t, "POST", "/pools/"+pool.ID+"/fund", issuerTok, `{"amount":"5000"}`)
	_, env = a.do(t, "POST", "/pools/"+pool.ID+"/grants", issuerTok,
		`{"beneficiary":"alice","start_time":0,"cliff_time":0,"end_time":100,"total_amount":"1000"}`)
	grant := decode[grantBody](t, env)

	a.clock.Advance(time.Hour)
	a.treasury.failing.Store(true)
	status, env := a.do(t, "POST", "/grants/"+grant.ID+"/claim", aliceTok, "")
	require.Equal(t, fiber.StatusBadGateway, status)
	require.Equal(t, "TRANSFER_FAILED", env.Error.Code)
	transferID, ok := env.Error.Details["transfer_id"].(string)
	require.True(t, ok)

	status, _ = a.do(t, "GET", "/transfers", aliceTok, "")
	require.Equal(t, fiber.StatusForbidden, status)

	status, env = a.do(t, "GET", "/transfers?status=failed", opTok, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(env.Data), transferID)

	status, env = a.do(t, "GET", "/transfers?status=lost", opTok, "")
	require.Equal(t, fiber.StatusBadRequest, status)

	a.treasury.failing.Store(false)
	status, env = a.do(t, "POST", "/transfers/"+transferID+"/retry", opTok, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(env.Data), `"status":"COMPLETED"`)
	require.EqualValues(t, 2, a.treasury.calls.Load())
}

func TestIdempotentClaimOverHTTP(t *testing.T) {
	a := newAPITester(t)
	issuerTok := a.token(t, "issuer", nil)

	status, env := a.do(t, "POST", "/pools", issuerTok, `{"identifier":"acme","token_type":"mint"}`, idempotency.HeaderKey, "create-1")
	require.Equal(t, fiber.StatusCreated, status)
	first := decode[poolBody](t, env)

	// replayed rather than failing with ALREADY_EXISTS
	status, env = a.do(t, "POST", "/pools", issuerTok, `{"identifier":"acme","token_type":"mint"}`, idempotency.HeaderKey, "create-1")
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, first.ID, decode[poolBody](t, env).ID)
}

func TestAuthAndProbes(t *testing.T) {
	a := newAPITester(t)

	status, env := a.do(t, "GET", "/pools", "", "")
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)

	status, _ = a.do(t, "GET", "/pools", "garbage", "")
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = a.do(t, "GET", "/health/live", "", "")
	require.Equal(t, fiber.StatusOK, status)
	status, _ = a.do(t, "GET", "/health/ready", "", "")
	require.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "vesting_http_requests_total")
}
