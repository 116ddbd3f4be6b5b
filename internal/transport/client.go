// Package transport talks to the remote chat service. Every remote failure
// is classified into the domain error taxonomy here, once, at the network
// boundary; callers never see a raw HTTP error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avelin/chatter/internal/domain"
)

// ChatTurn is one entry of the rolling history sent on the anonymous path.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the normalized result of either chat endpoint.
type ChatReply struct {
	Content   string
	Timestamp time.Time
	Sources   []domain.Source
}

// API is the remote surface consumed by the session manager and the
// dispatcher.
type API interface {
	Login(ctx context.Context, email, password string) (*domain.Credentials, error)
	Register(ctx context.Context, profile domain.RegisterProfile) (*domain.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (string, *domain.User, error)
	Me(ctx context.Context, accessToken string) error
	ChatProtected(ctx context.Context, accessToken, conversationID, message string) (*ChatReply, error)
	ChatAnonymous(ctx context.Context, history []ChatTurn) (*ChatReply, error)
}

// Client implements API over plain HTTP/JSON.
type Client struct {
	baseURL     string
	client      *http.Client
	model       string
	temperature float64
}

// NewClient creates a transport client for the given base URL.
func NewClient(baseURL, model string, temperature float64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		model:       model,
		temperature: temperature,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Company  string `json:"company,omitempty"`
}

type credentialsResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type protectedChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type anonymousChatRequest struct {
	Messages    []ChatTurn `json:"messages"`
	Model       string     `json:"model"`
	Temperature float64    `json:"temperature"`
}

type chatResponse struct {
	Response  string          `json:"response"`
	Timestamp string          `json:"timestamp,omitempty"`
	Sources   []domain.Source `json:"sources,omitempty"`
}

// Login calls POST /api/auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Credentials, error) {
	return c.credentialsCall(ctx, "/api/auth/login", loginRequest{Email: email, Password: password})
}

// Register calls POST /api/auth/register.
func (c *Client) Register(ctx context.Context, profile domain.RegisterProfile) (*domain.Credentials, error) {
	return c.credentialsCall(ctx, "/api/auth/register", registerRequest{
		Email:    profile.Email,
		Password: profile.Password,
		FullName: profile.FullName,
		Company:  profile.Company,
	})
}

func (c *Client) credentialsCall(ctx context.Context, path string, payload any) (*domain.Credentials, error) {
	resp, err := c.post(ctx, path, "", payload)
	if err != nil {
		return nil, domain.NewAuthError("")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewAuthError(readDetail(resp))
	}

	var body credentialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewAuthError("")
	}
	return &domain.Credentials{
		User:         body.User,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}, nil
}

// Refresh calls POST /api/auth/refresh. The refresh token is not rotated by
// the server; only a new access token (plus identity) comes back.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, *domain.User, error) {
	resp, err := c.post(ctx, "/api/auth/refresh", "", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", nil, domain.NewAuthError("")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, domain.NewAuthError(readDetail(resp))
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, domain.NewAuthError("")
	}
	return body.AccessToken, &body.User, nil
}

// Me calls GET /api/auth/me as an identity/liveness probe.
func (c *Client) Me(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return domain.NewAuthError("")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewAuthError("")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewAuthError(readDetail(resp))
	}
	return nil
}

// ChatProtected calls the stateful authenticated chat endpoint. Only the new
// message travels; the server keeps the history.
func (c *Client) ChatProtected(ctx context.Context, accessToken, conversationID, message string) (*ChatReply, error) {
	resp, err := c.post(ctx, "/api/chat/protected", accessToken, protectedChatRequest{
		Message:        message,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, domain.NewTransportError("", err)
	}
	defer resp.Body.Close()

	return decodeChatReply(resp)
}

// ChatAnonymous calls the stateless chat endpoint with the rolling history.
func (c *Client) ChatAnonymous(ctx context.Context, history []ChatTurn) (*ChatReply, error) {
	resp, err := c.post(ctx, "/api/chat", "", anonymousChatRequest{
		Messages:    history,
		Model:       c.model,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, domain.NewTransportError("", err)
	}
	defer resp.Body.Close()

	return decodeChatReply(resp)
}

func (c *Client) post(ctx context.Context, path, accessToken string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.client.Do(req)
}

func decodeChatReply(resp *http.Response) (*ChatReply, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewTransportError(readDetail(resp), nil)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewTransportError("", err)
	}

	reply := &ChatReply{Content: body.Response, Sources: body.Sources}
	if body.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, body.Timestamp); err == nil {
			reply.Timestamp = ts
		}
	}
	return reply, nil
}

func readDetail(resp *http.Response) string {
	var body detailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Detail
}
