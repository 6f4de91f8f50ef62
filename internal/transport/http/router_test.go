package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	identityservice "lumenpay/internal/identity/service"
	identitystore "lumenpay/internal/identity/store/identity"
	"lumenpay/internal/ledger/ledgertest"
	"lumenpay/internal/provisioner"
	"lumenpay/internal/resolver"
	settlementservice "lumenpay/internal/settlement/service"
	"lumenpay/internal/settlement/store/mirror"
)

const testSigningKey = "test-signing-key"

type RouterSuite struct {
	suite.Suite
	server  *httptest.Server
	network *ledgertest.Fake
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.network = ledgertest.New()
	identities := identitystore.NewInMemory()
	mirrorStore := mirror.NewInMemory()

	identity := identityservice.New(identities, provisioner.New(s.network), s.network)
	res := resolver.New(identities)
	engine := settlementservice.New(identities, res, mirrorStore, s.network,
		settlementservice.WithSubmitTimeout(time.Second))

	s.server = httptest.NewServer(NewRouter(RouterConfig{
		Identity:      identity,
		Resolver:      res,
		Settlements:   engine,
		JWTSigningKey: testSigningKey,
	}))
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) token(ownerID string) string {
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	s.Require().NoError(err)
	return signed
}

func (s *RouterSuite) do(method, path, ownerID string, body any) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if ownerID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(ownerID))
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (s *RouterSuite) claim(ownerID, handle string) map[string]any {
	resp, body := s.do(http.MethodPost, "/v1/identities/claim", ownerID, map[string]string{"handle": handle})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, "claim %s: %v", handle, body)
	return body
}

func (s *RouterSuite) TestUnauthenticatedRequestsRejected() {
	resp, body := s.do(http.MethodGet, "/v1/balances", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("unauthorized", body["error"])
}

func (s *RouterSuite) TestClaimFlow() {
	resp, body := s.do(http.MethodGet, "/v1/identities/availability?handle=alice", "owner-a", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["available"])

	claimed := s.claim("owner-a", "alice")
	s.Equal("alice", claimed["handle"])
	s.NotEmpty(claimed["address"])
	s.Equal("active", claimed["status"])
	// The signing secret must never appear on the wire.
	s.NotContains(claimed, "SigningSecret")
	s.NotContains(claimed, "signing_secret")

	resp, body = s.do(http.MethodGet, "/v1/identities/availability?handle=alice", "owner-a", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(false, body["available"])

	resp, body = s.do(http.MethodPost, "/v1/identities/claim", "owner-b", map[string]string{"handle": "alice"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("conflict", body["error"])

	resp, body = s.do(http.MethodGet, "/v1/identities/me", "owner-a", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("alice", body["handle"])
}

func (s *RouterSuite) TestClaimValidation() {
	resp, body := s.do(http.MethodPost, "/v1/identities/claim", "owner-a", map[string]string{"handle": "No Spaces!"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation", body["error"])
}

func (s *RouterSuite) TestResolve() {
	claimed := s.claim("owner-a", "alice")
	address := claimed["address"].(string)

	resp, body := s.do(http.MethodGet, "/v1/resolve?input=alice@lumen", "owner-b", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(address, body["address"])
	s.Equal("alice", body["handle"])

	// A raw address is classified, not looked up.
	resp, body = s.do(http.MethodGet, "/v1/resolve?input="+address, "owner-b", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(address, body["address"])
	s.Empty(body["handle"])

	resp, body = s.do(http.MethodGet, "/v1/resolve?input=nobody", "owner-b", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("not_found", body["error"])
}

func (s *RouterSuite) TestSettleAndHistory() {
	s.claim("owner-a", "alice")
	s.claim("owner-b", "bob")

	resp, body := s.do(http.MethodPost, "/v1/payments", "owner-a",
		map[string]string{"recipient": "bob@lumen", "amount": "42.5", "note": "rent"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("completed", body["status"])
	s.NotEmpty(body["ledger_tx_ref"])
	s.Equal("alice", body["sender"])
	s.Equal("bob", body["recipient"])

	resp, body = s.do(http.MethodGet, "/v1/payments/history", "owner-b", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	settlements := body["settlements"].([]any)
	s.Require().Len(settlements, 1)

	resp, body = s.do(http.MethodGet, "/v1/balances", "owner-b", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	balances := body["balances"].([]any)
	s.Require().Len(balances, 1)
	s.Equal("10042.5", balances[0].(map[string]any)["balance"])
}

func (s *RouterSuite) TestSettleValidation() {
	s.claim("owner-a", "alice")
	s.claim("owner-b", "bob")

	resp, body := s.do(http.MethodPost, "/v1/payments", "owner-a",
		map[string]string{"recipient": "bob", "amount": "-1"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation", body["error"])
	s.NotContains(body, "settlement", "nothing was attempted, nothing is recorded")
}

func (s *RouterSuite) TestIndeterminateSettlementAndReconcile() {
	s.claim("owner-a", "alice")
	s.claim("owner-b", "bob")
	s.network.IndeterminateNext(true)

	resp, body := s.do(http.MethodPost, "/v1/payments", "owner-a",
		map[string]string{"recipient": "bob", "amount": "5"})
	s.Equal(http.StatusAccepted, resp.StatusCode,
		"an unconfirmed outcome is neither success nor failure")
	s.Equal("indeterminate", body["error"])
	record := body["settlement"].(map[string]any)
	s.Equal("pending", record["status"])

	path := fmt.Sprintf("/v1/payments/%s/reconcile", record["id"])
	resp, body = s.do(http.MethodPost, path, "owner-a", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("completed", body["status"])
	s.NotEmpty(body["ledger_tx_ref"])
}

func (s *RouterSuite) TestRejectedSettlementCarriesRecord() {
	s.claim("owner-a", "alice")
	s.claim("owner-b", "bob")
	s.network.RejectNext("insufficient funds")

	resp, body := s.do(http.MethodPost, "/v1/payments", "owner-a",
		map[string]string{"recipient": "bob", "amount": "99999"})
	s.Equal(http.StatusBadGateway, resp.StatusCode)
	record := body["settlement"].(map[string]any)
	s.Equal("failed", record["status"])
	s.Equal("insufficient funds", record["reason"])
}

func (s *RouterSuite) TestHealthz() {
	resp, body := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
}
