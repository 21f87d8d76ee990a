package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the registry.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsForbidden reports whether err is a 403 from the registry.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to a BharatChain registry over HTTP.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithBearerToken attaches a citizen session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification. Local
// development only.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
		return nil
	}
}

// New creates a Client for the registry at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry URL %q", baseURL)
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// WithToken returns a copy of c that sends token as its bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.bearerToken = token
	return &cp
}

// ── Status ───────────────────────────────────────────────────────────────

// Status is the response of GET /.
type Status struct {
	System     string `json:"system"`
	Version    string `json:"version"`
	Status     string `json:"status"`
	Blockchain string `json:"blockchain"`
}

// Status returns the registry banner.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.getJSON(ctx, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DependencyStatus is one background health target.
type DependencyStatus struct {
	Status    string    `json:"status"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Health is the response of GET /health-check.
type Health struct {
	API          string                      `json:"api"`
	Database     string                      `json:"database"`
	Blockchain   string                      `json:"blockchain"`
	Crypto       string                      `json:"crypto"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// HealthCheck returns per-component health. A 503 still decodes the body and
// is reported alongside an *APIError.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health-check", nil, nil)
	if err != nil {
		return nil, err
	}
	code, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	var out Health
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	if code >= 300 {
		return &out, &APIError{StatusCode: code, Message: "degraded", Path: req.URL.Path}
	}
	return &out, nil
}

// ── Identity ─────────────────────────────────────────────────────────────

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	UID      string `json:"uid"`
	FullName string `json:"full_name"`
	DOB      string `json:"dob"`
	Gender   string `json:"gender,omitempty"`
	Address  string `json:"address,omitempty"`
}

// RegisterResult identifies a newly registered citizen.
type RegisterResult struct {
	CitizenID string `json:"citizen_id"`
	DID       string `json:"did"`
	BlockHash string `json:"block_hash"`
	Message   string `json:"message"`
}

// Register enrolls a citizen.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*RegisterResult, error) {
	var out RegisterResult
	if err := c.postJSON(ctx, "/identity/register", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Identity is the public view of a citizen.
type Identity struct {
	CitizenID          string          `json:"citizen_id"`
	DID                string          `json:"did"`
	BlockHash          string          `json:"block_hash"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	BiometricsEnrolled map[string]bool `json:"biometrics_enrolled"`
}

// GetIdentity fetches a citizen's public view.
func (c *Client) GetIdentity(ctx context.Context, citizenID string) (*Identity, error) {
	var out Identity
	if err := c.getJSON(ctx, "/identity/"+url.PathEscape(citizenID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Token is a citizen session token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

// IssueToken exchanges a citizen's UID for a session token.
func (c *Client) IssueToken(ctx context.Context, citizenID, uid string) (*Token, error) {
	var out Token
	body := map[string]string{"citizen_uid": uid}
	if err := c.postJSON(ctx, "/identity/"+url.PathEscape(citizenID)+"/token", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Consent ──────────────────────────────────────────────────────────────

// GrantRequest is the payload for Grant.
type GrantRequest struct {
	CitizenUID    string   `json:"citizen_uid,omitempty"`
	RequesterID   string   `json:"requester_id"`
	RequesterName string   `json:"requester_name,omitempty"`
	Modules       []string `json:"modules"`
	DurationDays  int      `json:"duration_days,omitempty"`
}

// GrantResult describes a recorded consent.
type GrantResult struct {
	ConsentID    string   `json:"consent_id"`
	RequesterID  string   `json:"requester_id"`
	Modules      []string `json:"modules"`
	DurationDays int      `json:"duration_days"`
	ExpiresAt    string   `json:"expires_at"`
	BlockHash    string   `json:"block_hash"`
	Superseded   int      `json:"superseded"`
	Status       string   `json:"status"`
}

// Grant records a consent from citizenID to a requester.
func (c *Client) Grant(ctx context.Context, citizenID string, in GrantRequest) (*GrantResult, error) {
	var out GrantResult
	if err := c.postJSON(ctx, "/consent/"+url.PathEscape(citizenID)+"/grant", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeResult describes a revocation.
type RevokeResult struct {
	Status      string `json:"status"`
	BlockHash   string `json:"block_hash"`
	Deactivated int    `json:"deactivated"`
}

// Revoke withdraws every active consent citizenID gave requesterID.
func (c *Client) Revoke(ctx context.Context, citizenID, requesterID, uid string) (*RevokeResult, error) {
	var out RevokeResult
	body := map[string]string{"requester_id": requesterID}
	if uid != "" {
		body["citizen_uid"] = uid
	}
	if err := c.postJSON(ctx, "/consent/"+url.PathEscape(citizenID)+"/revoke", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Consent is one active consent.
type Consent struct {
	ID            string   `json:"id"`
	RequesterID   string   `json:"requester_id"`
	RequesterName string   `json:"requester_name"`
	Tier          string   `json:"tier"`
	Modules       []string `json:"modules"`
	ExpiresAt     string   `json:"expires_at"`
	GrantedAt     string   `json:"granted_at"`
	Expired       bool     `json:"expired"`
	BlockHash     string   `json:"block_hash"`
}

// ListConsents returns the citizen's active consents.
func (c *Client) ListConsents(ctx context.Context, citizenID string) ([]Consent, error) {
	var out []Consent
	if err := c.getJSON(ctx, "/consent/"+url.PathEscape(citizenID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuditEntry is one line of a citizen's access trail.
type AuditEntry struct {
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	Details   string `json:"details"`
	BlockHash string `json:"block_hash,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Audit returns up to limit audit entries, newest first. limit <= 0 uses the
// server default.
func (c *Client) Audit(ctx context.Context, citizenID string, limit int) ([]AuditEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []AuditEntry
	if err := c.getJSON(ctx, "/consent/"+url.PathEscape(citizenID)+"/audit", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Records ──────────────────────────────────────────────────────────────

// Requester identifies the party reading or writing records.
type Requester struct {
	ID   string
	Name string
}

// CreateRecordResult describes a stored record.
type CreateRecordResult struct {
	RecordID  string `json:"record_id"`
	Reference string `json:"reference,omitempty"`
	BlockHash string `json:"block_hash"`
	Status    string `json:"status"`
}

// CreateRecord writes a record into module. payload carries the
// module-specific fields; requester fields are merged in.
func (c *Client) CreateRecord(ctx context.Context, module, citizenID string, req Requester, payload map[string]any) (*CreateRecordResult, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["requester_id"] = req.ID
	if req.Name != "" {
		body["requester_name"] = req.Name
	}
	var out CreateRecordResult
	if err := c.postJSON(ctx, recordsPath(module, citizenID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Record is one decrypted record.
type Record struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Reference  string         `json:"reference,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Data       map[string]any `json:"data"`
	BlockHash  string         `json:"block_hash"`
	RecordDate time.Time      `json:"record_date"`
}

// ListRecords reads a citizen's records in module on behalf of req.
func (c *Client) ListRecords(ctx context.Context, module, citizenID string, req Requester) ([]Record, error) {
	q := url.Values{"requester_id": {req.ID}}
	if req.Name != "" {
		q.Set("requester_name", req.Name)
	}
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.getJSON(ctx, recordsPath(module, citizenID), q, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func recordsPath(module, citizenID string) string {
	return "/" + url.PathEscape(module) + "/" + url.PathEscape(citizenID) + "/records"
}

// ── Zero-knowledge claims ────────────────────────────────────────────────

// Proof is a zero-knowledge proof artefact.
type Proof struct {
	Claim        string    `json:"claim"`
	Proof        string    `json:"proof"`
	PublicInputs []string  `json:"public_inputs"`
	Verified     bool      `json:"verified"`
	ProofType    string    `json:"proof_type"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Prove asks the registry to prove claim about citizenID. A claim that does
// not hold returns an *APIError with status 422.
func (c *Client) Prove(ctx context.Context, citizenID, requesterID, claim string, threshold float64) (*Proof, error) {
	body := map[string]any{"requester_id": requesterID, "claim": claim}
	if threshold != 0 {
		body["threshold"] = threshold
	}
	var out Proof
	if err := c.postJSON(ctx, "/zk/"+url.PathEscape(citizenID)+"/prove", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof checks a proof against its public statement.
func (c *Client) VerifyProof(ctx context.Context, proof *Proof, claim string, threshold float64) (bool, error) {
	body := map[string]any{"proof": proof, "claim": claim, "threshold": threshold}
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.postJSON(ctx, "/zk/verify", body, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// ── Chain ────────────────────────────────────────────────────────────────

// Block is one ledger block.
type Block struct {
	Sequence  uint64         `json:"sequence"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Timestamp time.Time      `json:"timestamp"`
}

// BlockPage is a window of the chain.
type BlockPage struct {
	Total  int     `json:"total"`
	Blocks []Block `json:"blocks"`
}

// Blocks lists blocks starting at offset.
func (c *Client) Blocks(ctx context.Context, offset, limit int) (*BlockPage, error) {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out BlockPage
	if err := c.getJSON(ctx, "/chain/blocks", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Block fetches a block by hash.
func (c *Client) Block(ctx context.Context, hash string) (*Block, error) {
	var out Block
	if err := c.getJSON(ctx, "/chain/blocks/"+url.PathEscape(hash), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChainVerification is the result of VerifyChain.
type ChainVerification struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// VerifyChain asks the registry to walk and verify its chain.
func (c *Client) VerifyChain(ctx context.Context) (*ChainVerification, error) {
	var out ChainVerification
	if err := c.getJSON(ctx, "/chain/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Internal helpers ─────────────────────────────────────────────────────

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	endpoint := c.base + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, in)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends req and turns any non-2xx status into an *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	code, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if code >= 300 {
		return nil, &APIError{StatusCode: code, Message: errorMessage(body), Path: req.URL.Path}
	}
	return body, nil
}

// doStatusBody returns (statusCode, body, error) without failing on 4xx
// responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// errorMessage pulls the "error" field out of a JSON error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
