package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPermissionDenied means the mirror refused the current storage identity
	ErrPermissionDenied = errors.New("mirror: permission denied")
	// ErrDocumentNotFound means the requested document does not exist
	ErrDocumentNotFound = errors.New("mirror: document not found")
)

// DocumentStore is a per-user partitioned document store keyed by (userID, collection, itemID)
type DocumentStore interface {
	Put(ctx context.Context, userID, collection, itemID string, doc interface{}) error
	Get(ctx context.Context, userID, collection, itemID string, out interface{}) error
	Delete(ctx context.Context, userID, collection, itemID string) error
	List(ctx context.Context, userID, collection string, out interface{}) error
	BatchDelete(ctx context.Context, userID, collection string, itemIDs []string) error
}

// TokenSource supplies the bearer credential for the storage identity
type TokenSource interface {
	Token() (string, bool)
}

// HTTPDocumentStore talks to a REST document store:
//
//	PUT    {base}/users/{uid}/{collection}/{id}
//	GET    {base}/users/{uid}/{collection}/{id}
//	DELETE {base}/users/{uid}/{collection}/{id}
//	GET    {base}/users/{uid}/{collection}
//	POST   {base}/users/{uid}/{collection}:batchDelete
type HTTPDocumentStore struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPDocumentStore creates a document store client for baseURL
func NewHTTPDocumentStore(baseURL string, tokens TokenSource, logger *logrus.Logger) (*HTTPDocumentStore, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid mirror URL: %w", err)
	}
	return &HTTPDocumentStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

func (s *HTTPDocumentStore) collectionURL(userID, collection string) string {
	return fmt.Sprintf("%s/users/%s/%s", s.baseURL, url.PathEscape(userID), url.PathEscape(collection))
}

func (s *HTTPDocumentStore) documentURL(userID, collection, itemID string) string {
	return s.collectionURL(userID, collection) + "/" + url.PathEscape(itemID)
}

// Put upserts a document
func (s *HTTPDocumentStore) Put(ctx context.Context, userID, collection, itemID string, doc interface{}) error {
	return s.do(ctx, http.MethodPut, s.documentURL(userID, collection, itemID), doc, nil)
}

// Get decodes a single document into out
func (s *HTTPDocumentStore) Get(ctx context.Context, userID, collection, itemID string, out interface{}) error {
	return s.do(ctx, http.MethodGet, s.documentURL(userID, collection, itemID), nil, out)
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *HTTPDocumentStore) Delete(ctx context.Context, userID, collection, itemID string) error {
	err := s.do(ctx, http.MethodDelete, s.documentURL(userID, collection, itemID), nil, nil)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil
	}
	return err
}

// List decodes every document of a collection into out, which must point to a slice
func (s *HTTPDocumentStore) List(ctx context.Context, userID, collection string, out interface{}) error {
	err := s.do(ctx, http.MethodGet, s.collectionURL(userID, collection), nil, out)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil
	}
	return err
}

// BatchDelete removes several documents in one request
func (s *HTTPDocumentStore) BatchDelete(ctx context.Context, userID, collection string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	body := map[string][]string{"ids": itemIDs}
	return s.do(ctx, http.MethodPost, s.collectionURL(userID, collection)+":batchDelete", body, nil)
}

func (s *HTTPDocumentStore) do(ctx context.Context, method, fullURL string, body, result interface{}) error {
	token, ok := s.tokens.Token()
	if !ok {
		return ErrPermissionDenied
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	s.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making mirror request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrPermissionDenied
	case resp.StatusCode == http.StatusNotFound:
		return ErrDocumentNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mirror request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
