package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/model"
)

const accountTimeout = 10 * time.Second

// AccountClient talks to the Quillread account service. It implements the
// remote repository contract the account merge path consumes.
type AccountClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewAccountClient(baseURL, token string) *AccountClient {
	return &AccountClient{
		client:  &http.Client{Timeout: accountTimeout},
		baseURL: baseURL,
		token:   token,
	}
}

func (c *AccountClient) GetCurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.get(ctx, "/api/v1/me", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func (c *AccountClient) GetSyncedBooks(ctx context.Context, userID string) ([]model.SyncedBook, error) {
	var payload struct {
		Books []model.SyncedBook `json:"books"`
	}
	path := fmt.Sprintf("/api/v1/users/%s/synced-books", userID)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Books, nil
}

func (c *AccountClient) SyncBook(ctx context.Context, userID string, book model.SyncedBook) error {
	body, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}

	path := fmt.Sprintf("/api/v1/users/%s/synced-books", userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("account request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("bookId", book.BookID).
			Msg("account sync-book rejected")
		return fmt.Errorf("account returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *AccountClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("account request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("account returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *AccountClient) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
