package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quillread/peersync-go/internal/model"
)

const catalogTimeout = 15 * time.Second

// CatalogClient fetches book details from a book's source site. A synced-book
// record only carries identity; the title page at its URL fills in the rest.
type CatalogClient struct {
	client *http.Client
}

func NewCatalogClient() *CatalogClient {
	return &CatalogClient{
		client: &http.Client{Timeout: catalogTimeout},
	}
}

// bookDetails is the metadata payload a source serves for one book.
type bookDetails struct {
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Cover    *string `json:"cover,omitempty"`
	FileHash string  `json:"fileHash"`
}

func (c *CatalogClient) FetchBookDetails(ctx context.Context, source, url string) (*model.Book, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source %s returned status %d", source, resp.StatusCode)
	}

	var details bookDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decode book details: %w", err)
	}
	if details.Title == "" {
		return nil, fmt.Errorf("source %s returned no title", source)
	}

	return &model.Book{
		Title:    details.Title,
		Author:   details.Author,
		Cover:    details.Cover,
		Source:   source,
		URL:      url,
		FileHash: details.FileHash,
	}, nil
}
