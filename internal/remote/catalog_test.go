package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogClient_FetchBookDetails(t *testing.T) {
	t.Run("fills the book from the source payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			json.NewEncoder(w).Encode(map[string]any{
				"title":    "Dune",
				"author":   "Frank Herbert",
				"fileHash": "abc123",
			})
		}))
		defer server.Close()

		client := NewCatalogClient()
		book, err := client.FetchBookDetails(context.Background(), "shop", server.URL+"/books/dune")
		require.NoError(t, err)
		assert.Equal(t, "Dune", book.Title)
		assert.Equal(t, "Frank Herbert", book.Author)
		assert.Equal(t, "shop", book.Source)
		assert.Equal(t, server.URL+"/books/dune", book.URL)
		assert.Equal(t, "abc123", book.FileHash)
	})

	t.Run("missing title is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewCatalogClient()
		_, err := client.FetchBookDetails(context.Background(), "shop", server.URL)
		assert.Error(t, err)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewCatalogClient()
		_, err := client.FetchBookDetails(context.Background(), "shop", server.URL)
		assert.Error(t, err)
	})
}
