package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultAPIURL = "https://graphql.anilist.co"

var tracer = otel.Tracer("github.com/amaumene/watchsync/internal/services/anilist")

// TrackingServiceError is any failure reported by, or on the way to, the tracking service
type TrackingServiceError struct {
	StatusCode int // 0 when the request never got a response
	Message    string
}

func (e *TrackingServiceError) Error() string {
	if e.StatusCode == 0 {
		return "anilist: " + e.Message
	}
	return fmt.Sprintf("anilist: status %d: %s", e.StatusCode, e.Message)
}

// Client handles communication with the AniList GraphQL API
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new AniList API client
func NewClient(apiURL string, logger *logrus.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// doRequest posts a GraphQL query and decodes its data member into result
func (c *Client) doRequest(ctx context.Context, operation, query string, variables map[string]interface{}, accessToken string, result interface{}) error {
	ctx, span := tracer.Start(ctx, "anilist."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := c.post(ctx, operation, query, variables, accessToken, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) post(ctx context.Context, operation, query string, variables map[string]interface{}, accessToken string, result interface{}) error {
	jsonData, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"operation": operation,
		"url":       c.apiURL,
	}).Debug("Making AniList API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TrackingServiceError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TrackingServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TrackingServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return &TrackingServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if len(gqlResp.Errors) > 0 {
		status := gqlResp.Errors[0].Status
		if status == 0 {
			status = resp.StatusCode
		}
		return &TrackingServiceError{StatusCode: status, Message: gqlResp.Errors[0].Message}
	}

	if result != nil {
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return &TrackingServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode data: %v", err)}
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return nil
}
