// Package client is a Go client for the conversation API together with the
// client-side chat list cache, friend search and broadcast helpers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/security"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("conversation api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("conversation api: status %d (%s): %s", e.Status, e.Code, e.Message)
}

// API talks to the conversation HTTP endpoints on behalf of one user.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a client for baseURL that authenticates with token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the service root the client talks to.
func (a *API) BaseURL() string { return a.baseURL }

// Token returns the token sent with every request.
func (a *API) Token() string { return a.token }

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(security.HeaderAuthToken, a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &envelope)
		if envelope.Error == "" {
			envelope.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// ListConversations fetches the caller's conversations.
func (a *API) ListConversations(ctx context.Context) ([]model.ConversationView, error) {
	var views []model.ConversationView
	if err := a.do(ctx, http.MethodGet, "/conversation/", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// GetConversation fetches one conversation by id.
func (a *API) GetConversation(ctx context.Context, id string) (*model.ConversationView, error) {
	var view model.ConversationView
	if err := a.do(ctx, http.MethodGet, "/conversation/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateDirect fetches or creates the direct conversation with the given members.
func (a *API) CreateDirect(ctx context.Context, memberIDs ...string) (*model.ConversationView, error) {
	var view model.ConversationView
	if err := a.do(ctx, http.MethodPost, "/conversation/", map[string]any{"members": memberIDs}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateGroup creates a group chat administered by the caller.
func (a *API) CreateGroup(ctx context.Context, name string, memberIDs []string) (*model.ConversationView, error) {
	var view model.ConversationView
	body := map[string]any{"name": name, "members": memberIDs}
	if err := a.do(ctx, http.MethodPost, "/conversation/group", body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *API) put(ctx context.Context, path string, body map[string]string) (*model.ConversationView, error) {
	var view model.ConversationView
	if err := a.do(ctx, http.MethodPut, path, body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// RenameGroup renames a group chat.
func (a *API) RenameGroup(ctx context.Context, chatID, name string) (*model.ConversationView, error) {
	return a.put(ctx, "/conversation/rename", map[string]string{"chatId": chatID, "name": name})
}

// AddMember adds userID to a group chat.
func (a *API) AddMember(ctx context.Context, chatID, userID string) (*model.ConversationView, error) {
	return a.put(ctx, "/conversation/groupadd", map[string]string{"chatId": chatID, "userId": userID})
}

// RemoveMember removes userID from a group chat.
func (a *API) RemoveMember(ctx context.Context, chatID, userID string) (*model.ConversationView, error) {
	return a.put(ctx, "/conversation/groupremove", map[string]string{"chatId": chatID, "userId": userID})
}

// MarkRead resets the caller's unread counter.
func (a *API) MarkRead(ctx context.Context, chatID string) (*model.ConversationView, error) {
	return a.put(ctx, "/conversation/read", map[string]string{"chatId": chatID})
}
