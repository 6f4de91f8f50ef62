package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"lumenpay/pkg/platform/sentinel"
)

// GatewayClient implements Client against the deployment's horizon gateway, a
// REST facade in front of the settlement network that performs transaction
// assembly and signing server-side. Keypair generation stays local; secrets
// travel to the gateway only inside a submit call.
type GatewayClient struct {
	baseURL      string
	friendbotURL string
	httpClient   *http.Client
}

type GatewayOption func(*GatewayClient)

// WithHTTPClient overrides the underlying HTTP client. The client's timeout
// bounds every call; submit expiry surfaces as an indeterminate outcome.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewayClient) {
		g.httpClient = c
	}
}

// NewGateway constructs a client for the gateway at baseURL. friendbotURL is
// the network's funding endpoint used for account activation.
func NewGateway(baseURL, friendbotURL string, opts ...GatewayOption) *GatewayClient {
	g := &GatewayClient{
		baseURL:      baseURL,
		friendbotURL: friendbotURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateAccount generates an ed25519 keypair and strkey-encodes both halves.
func (g *GatewayClient) CreateAccount() (Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Account{}, fmt.Errorf("generate keypair: %w", err)
	}
	address, err := EncodeAddress(pub)
	if err != nil {
		return Account{}, err
	}
	secret, err := EncodeSeed(priv.Seed())
	if err != nil {
		return Account{}, err
	}
	return Account{Address: address, Secret: secret}, nil
}

// Activate funds the account through the network's friendbot endpoint.
func (g *GatewayClient) Activate(ctx context.Context, address string) error {
	u := fmt.Sprintf("%s?addr=%s", g.friendbotURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("activate %s: %w", address, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("activate %s: friendbot status %d", address, resp.StatusCode)
	}
	return nil
}

func (g *GatewayClient) RegisterHandle(ctx context.Context, handle, address string) (string, error) {
	var out struct {
		TxRef string `json:"tx_ref"`
	}
	err := g.post(ctx, "/registry", map[string]string{
		"handle":  handle,
		"address": address,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TxRef, nil
}

// SubmitTransfer posts the transfer for signing and submission. Transport
// failures after the request may have been sent are reported as
// indeterminate; only a refused connection is a definite non-delivery.
func (g *GatewayClient) SubmitTransfer(ctx context.Context, secret, toAddress string, amount decimal.Decimal) (string, error) {
	body, err := json.Marshal(map[string]any{
		"secret":      secret,
		"destination": toAddress,
		"amount":      amount,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if requestNeverSent(err) {
			return "", fmt.Errorf("submit transfer: %v: %w", err, ErrUnavailable)
		}
		// Timeout, reset, or anything else once the request may be in
		// flight: the transfer could still confirm.
		return "", fmt.Errorf("submit transfer: %v: %w", err, ErrIndeterminate)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		var out struct {
			TxRef string `json:"tx_ref"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.TxRef == "" {
			// Confirmed response without a usable reference is still
			// unconfirmed from our side.
			return "", fmt.Errorf("submit transfer: unreadable confirmation: %w", ErrIndeterminate)
		}
		return out.TxRef, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &RejectionError{Reason: readReason(resp.Body)}
	default:
		// 5xx: the gateway may or may not have forwarded the transaction.
		return "", fmt.Errorf("submit transfer: gateway status %d: %w", resp.StatusCode, ErrIndeterminate)
	}
}

func (g *GatewayClient) GetBalances(ctx context.Context, address string) ([]Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/accounts/"+url.PathEscape(address)+"/balances", nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("account %s: %w", address, sentinel.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get balances: gateway status %d", resp.StatusCode)
	}

	var out struct {
		Balances []Balance `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}
	return out.Balances, nil
}

func (g *GatewayClient) FindTransfer(ctx context.Context, q TransferQuery) (string, bool, error) {
	params := url.Values{}
	params.Set("from", q.From)
	params.Set("to", q.To)
	params.Set("amount", q.Amount.String())
	params.Set("since", q.Since.UTC().Format(time.RFC3339Nano))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transfers?"+params.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("find transfer: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("find transfer: gateway status %d", resp.StatusCode)
	}

	var out struct {
		Found bool   `json:"found"`
		TxRef string `json:"tx_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode transfer lookup: %w", err)
	}
	return out.TxRef, out.Found, nil
}

func (g *GatewayClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &RejectionError{Reason: readReason(resp.Body)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: gateway status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// requestNeverSent reports transport failures that provably occur before the
// request leaves this host. Only those may be treated as definite
// non-delivery; everything else stays indeterminate because the transfer
// could still confirm.
func requestNeverSent(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	return errors.As(err, &certErr)
}

func readReason(r io.Reader) string {
	var body struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err == nil {
		if body.Reason != "" {
			return body.Reason
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return "rejected by network"
}
