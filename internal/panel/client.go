// Package panel talks to the game hosting control panel over its JSON
// POST API. Every call carries a session ID obtained from Core/Login;
// the session is cached and refreshed on expiry.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
)

// Account identifies a panel user. Created reports whether this call
// brought the account into existence, which is what decides whether a
// fresh password must be issued.
type Account struct {
	Ref     string
	Created bool
}

// API is the surface the provisioner drives. Implementations must be
// safe for concurrent use.
type API interface {
	// EnsureAccount creates a panel user for ownerID if one does not
	// exist and returns the panel-side account.
	EnsureAccount(ctx context.Context, ownerID, username string) (Account, error)
	// ResetUserPassword sets the account password. Used once right
	// after account creation so the requester can log in.
	ResetUserPassword(ctx context.Context, username, password string) error
	AssignRole(ctx context.Context, accountRef, role string) error
	RevokeRole(ctx context.Context, accountRef, role string) error
	// CreateInstance deploys a template for the account and returns the
	// panel-side instance reference.
	CreateInstance(ctx context.Context, accountRef string, tmpl models.GameTemplate) (string, error)
	StartInstance(ctx context.Context, instanceRef string) error
	DeleteInstance(ctx context.Context, instanceRef string) error
}

// Client is the HTTP implementation of API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logger     *slog.Logger

	mu      sync.Mutex
	session string
}

// NewClient builds a panel client. baseURL is the panel root, for
// example http://panel:8080.
func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		logger:     middleware.Logger.With(slog.String("component", "panel_client")),
	}
}

type apiResponse struct {
	Success      bool            `json:"success"`
	ResultReason string          `json:"resultReason"`
	SessionID    string          `json:"sessionId"`
	Result       json.RawMessage `json:"result"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	body := map[string]interface{}{
		"username":   c.username,
		"password":   c.password,
		"token":      "",
		"rememberMe": false,
	}
	resp, err := c.post(ctx, "Core/Login", body)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &Error{Op: "Core/Login", Message: "login succeeded without a session id", Transient: false}
	}
	return resp.SessionID, nil
}

// sessionID returns the cached session, logging in when none is held.
func (c *Client) sessionID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != "" {
		return c.session, nil
	}
	sess, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.session = sess
	return sess, nil
}

func (c *Client) dropSession(stale string) {
	c.mu.Lock()
	if c.session == stale {
		c.session = ""
	}
	c.mu.Unlock()
}

// call performs an authenticated API call, re-logging in once when the
// panel reports the session as expired.
func (c *Client) call(ctx context.Context, endpoint string, params map[string]interface{}) (*apiResponse, error) {
	sess, err := c.sessionID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{"SESSIONID": sess}
	for k, v := range params {
		body[k] = v
	}

	resp, err := c.post(ctx, endpoint, body)
	if err == nil {
		return resp, nil
	}

	var apiErr *Error
	if AsError(err, &apiErr) && apiErr.SessionExpired {
		c.dropSession(sess)
		sess, err = c.sessionID(ctx)
		if err != nil {
			return nil, err
		}
		body["SESSIONID"] = sess
		return c.post(ctx, endpoint, body)
	}
	return nil, err
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]interface{}) (*apiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Op: endpoint, Message: fmt.Sprintf("encode request: %v", err)}
	}

	url := c.baseURL + "/API/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: endpoint, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and timeouts are retryable.
		return nil, &Error{Op: endpoint, Message: err.Error(), Transient: true}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: err.Error(), Transient: true}
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: "session rejected", Transient: true, SessionExpired: true}
	case httpResp.StatusCode >= 500:
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: trimBody(raw), Transient: true}
	case httpResp.StatusCode >= 400:
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: trimBody(raw)}
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if !resp.Success {
		if strings.Contains(strings.ToLower(resp.ResultReason), "session") {
			return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: resp.ResultReason, Transient: true, SessionExpired: true}
		}
		return nil, &Error{Op: endpoint, Status: httpResp.StatusCode, Message: resp.ResultReason}
	}
	return &resp, nil
}

func trimBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type userInfo struct {
	ID string `json:"ID"`
}

func (c *Client) EnsureAccount(ctx context.Context, ownerID, username string) (Account, error) {
	resp, err := c.call(ctx, "Core/GetUserInfo", map[string]interface{}{"UID": username})
	if err == nil {
		var info userInfo
		if jsonErr := json.Unmarshal(resp.Result, &info); jsonErr == nil && info.ID != "" {
			return Account{Ref: info.ID}, nil
		}
	} else if IsTransient(err) {
		return Account{}, err
	}

	resp, err = c.call(ctx, "Core/CreateUser", map[string]interface{}{"Username": username})
	if err != nil {
		return Account{}, err
	}
	var created userInfo
	if jsonErr := json.Unmarshal(resp.Result, &created); jsonErr != nil || created.ID == "" {
		return Account{}, &Error{Op: "Core/CreateUser", Message: "panel returned no account id"}
	}
	c.logger.InfoContext(ctx, "panel account created",
		slog.String("owner_id", ownerID),
		slog.String("account_ref", created.ID))
	return Account{Ref: created.ID, Created: true}, nil
}

func (c *Client) ResetUserPassword(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "Core/ResetUserPassword", map[string]interface{}{
		"Username":    username,
		"NewPassword": password,
	})
	return err
}

func (c *Client) AssignRole(ctx context.Context, accountRef, role string) error {
	_, err := c.call(ctx, "Core/SetUserRoleMembership", map[string]interface{}{
		"UserId":   accountRef,
		"RoleName": role,
		"IsMember": true,
	})
	return err
}

func (c *Client) RevokeRole(ctx context.Context, accountRef, role string) error {
	_, err := c.call(ctx, "Core/SetUserRoleMembership", map[string]interface{}{
		"UserId":   accountRef,
		"RoleName": role,
		"IsMember": false,
	})
	return err
}

type deployResult struct {
	InstanceID string `json:"InstanceID"`
}

func (c *Client) CreateInstance(ctx context.Context, accountRef string, tmpl models.GameTemplate) (string, error) {
	resp, err := c.call(ctx, "ADSModule/DeployTemplate", map[string]interface{}{
		"TemplateID":   tmpl.TemplateID,
		"NewUsername":  accountRef,
		"FriendlyName": tmpl.DisplayName,
		"RequiredTags": []string{},
	})
	if err != nil {
		return "", err
	}
	var deployed deployResult
	if jsonErr := json.Unmarshal(resp.Result, &deployed); jsonErr != nil || deployed.InstanceID == "" {
		return "", &Error{Op: "ADSModule/DeployTemplate", Message: "panel returned no instance id"}
	}
	c.logger.InfoContext(ctx, "panel instance deployed",
		slog.String("instance_ref", deployed.InstanceID),
		slog.String("game", tmpl.Name))
	return deployed.InstanceID, nil
}

func (c *Client) StartInstance(ctx context.Context, instanceRef string) error {
	_, err := c.call(ctx, "ADSModule/StartInstance", map[string]interface{}{
		"InstanceName": instanceRef,
	})
	return err
}

func (c *Client) DeleteInstance(ctx context.Context, instanceRef string) error {
	_, err := c.call(ctx, "ADSModule/DeleteInstance", map[string]interface{}{
		"InstanceName": instanceRef,
	})
	return err
}
