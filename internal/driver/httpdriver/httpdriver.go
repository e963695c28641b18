// Package httpdriver is a minimal example driver that dispatches actions
// as bearer-authenticated HTTP POSTs to a local control API. It stands in
// for the class of app collaborators (a video-switcher WebSocket client,
// a lighting-console bridge) that are explicitly out of the core's scope
// per spec.md §1 — this one concrete skeleton exists so the Registry and
// Router have a real driver to dispatch to in integration tests.
package httpdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/driver"
	"github.com/juliencr/xtouch-gw/internal/gwerrors"
	"github.com/juliencr/xtouch-gw/internal/logger"
)

// Config configures one HTTP driver instance.
type Config struct {
	// Name is this driver's app identifier.
	Name string

	// BaseURL is the control API's base address, e.g. "http://127.0.0.1:9090".
	BaseURL string

	// Secret signs the bearer token minted for each request. Must be at
	// least 32 bytes, matching the teacher's JWT secret-length floor.
	Secret string

	// TokenTTL is how long each minted token is valid for. Defaults to 30s:
	// short-lived because a fresh token is minted per request rather than
	// cached, keeping the driver stateless between calls.
	TokenTTL time.Duration

	// RequestTimeout bounds each Execute call's HTTP round trip.
	RequestTimeout time.Duration

	// Client is the HTTP client used for requests. Defaults to
	// http.DefaultClient when nil.
	Client *http.Client
}

func (c Config) tokenTTL() time.Duration {
	if c.TokenTTL <= 0 {
		return 30 * time.Second
	}
	return c.TokenTTL
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 2 * time.Second
	}
	return c.RequestTimeout
}

func (c Config) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// claims is the minimal bearer-token payload the control API expects.
type claims struct {
	jwt.RegisteredClaims
	Driver string `json:"driver"`
}

// Driver dispatches Execute calls as POST /actions/{action} requests
// carrying a freshly minted bearer token and a JSON body of the resolved
// params.
type Driver struct {
	driver.BaseDriver
	cfg Config
}

// NewDriver constructs an httpdriver.Driver. It does not contact the
// control API until the first Execute call.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Name() string { return d.cfg.Name }

// Init marks the driver connected. The HTTP control channel is stateless
// per request, so there is no handshake to perform up front; connectivity
// is only really known once the first request succeeds or fails.
func (d *Driver) Init(ctx context.Context, snap config.Snapshot) error {
	d.SetStatus(driver.StatusConnected)
	return nil
}

type actionBody struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params"`
	Raw14  uint16            `json:"raw14,omitempty"`
	Raw7   uint8             `json:"raw7,omitempty"`
}

type actionResponse struct {
	Message string `json:"message"`
}

// Execute POSTs action and its params to the control API with a bearer
// token minted for this single call.
func (d *Driver) Execute(ctx context.Context, action string, params []driver.Param, dctx driver.Context) (driver.Result, error) {
	token, err := d.mintToken()
	if err != nil {
		d.SetStatus(driver.StatusError)
		return driver.Result{}, gwerrors.NewExecutionError(d.cfg.Name, fmt.Sprintf("failed to mint token: %v", err))
	}

	body := actionBody{Action: action, Params: make(map[string]string, len(params)), Raw14: dctx.Raw14, Raw7: dctx.Raw7}
	for _, p := range params {
		body.Params[p.Name] = p.Value
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return driver.Result{}, gwerrors.NewExecutionError(d.cfg.Name, fmt.Sprintf("failed to encode request: %v", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.requestTimeout())
	defer cancel()

	url := fmt.Sprintf("%s/actions/%s", d.cfg.BaseURL, action)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return driver.Result{}, gwerrors.NewExecutionError(d.cfg.Name, fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.cfg.client().Do(req)
	if err != nil {
		d.SetStatus(driver.StatusError)
		logger.Warn("http driver request failed", logger.App(d.cfg.Name), logger.TraceID(d.InstanceID()), logger.Action(action), logger.Err(err))
		return driver.Result{}, gwerrors.NewExecutionError(d.cfg.Name, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.SetStatus(driver.StatusError)
		return driver.Result{}, gwerrors.NewExecutionError(d.cfg.Name, fmt.Sprintf("control API returned status %d", resp.StatusCode))
	}
	d.SetStatus(driver.StatusConnected)

	var out actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return driver.Result{}, nil // a driver with no response body is not an error
	}
	return driver.Result{Message: out.Message}, nil
}

// mintToken signs a short-lived bearer token identifying this driver,
// following the teacher's JWTService.generateToken pattern.
func (d *Driver) mintToken() (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "xtouch-gw",
			Subject:   d.cfg.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.cfg.tokenTTL())),
		},
		Driver: d.cfg.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(d.cfg.Secret))
}

func (d *Driver) Close() error { return nil }
