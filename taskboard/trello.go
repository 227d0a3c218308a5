// Package taskboard provides a thin Trello JSON API client that only moves
// work order cards between lists when their billing status changes.
package taskboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/billing-engine/billing"
)

const defaultBaseURL = "https://api.trello.com/1/"

var (
	ErrInvalidKey   = errors.New("trello: the provided API key is invalid")
	ErrInvalidToken = errors.New("trello: the provided API token is invalid")
	ErrNotLinked    = errors.New("trello: card or list id is empty")
)

// Client implements billing.TaskMover against the Trello REST API.
type Client struct {
	apiKey     string
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ billing.TaskMover = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests use httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(apiKey, token string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		body := strings.TrimSpace(string(bodyBytes))
		switch body {
		case "invalid key":
			return nil, ErrInvalidKey
		case "invalid app token":
			return nil, ErrInvalidToken
		default:
			return nil, fmt.Errorf("trello: %s %s failed (%d): %s", method, path, resp.StatusCode, body)
		}
	}

	return resp, nil
}

type Card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IDList string `json:"idList"`
}

// Calls GET https://api.trello.com/1/cards/{cardID}
func (c *Client) GetCard(ctx context.Context, cardID string) (*Card, error) {
	resp, err := c.do(ctx, http.MethodGet, "cards/"+url.PathEscape(cardID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var card Card
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, err
	}
	return &card, nil
}

// Locate reports which billing status the card's current list stands for.
// ok is false when the card sits in a list outside lists.
func (c *Client) Locate(ctx context.Context, cardID string, lists billing.TaskLists) (card *Card, status billing.Status, ok bool, err error) {
	if cardID == "" {
		return nil, "", false, ErrNotLinked
	}
	card, err = c.GetCard(ctx, cardID)
	if err != nil {
		return nil, "", false, err
	}
	switch card.IDList {
	case "":
	case lists.Delivered:
		return card, billing.StatusDelivered, true, nil
	case lists.Aggregating:
		return card, billing.StatusAggregating, true, nil
	case lists.Completed:
		return card, billing.StatusAggregated, true, nil
	}
	return card, "", false, nil
}

// MoveTask moves a card to a list.
// Calls PUT https://api.trello.com/1/cards/{cardID}?idList={listID}
func (c *Client) MoveTask(ctx context.Context, cardID, listID string) error {
	if cardID == "" || listID == "" {
		return ErrNotLinked
	}

	resp, err := c.do(ctx, http.MethodPut, "cards/"+url.PathEscape(cardID), url.Values{"idList": {listID}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var card Card
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return err
	}
	if card.IDList != "" && card.IDList != listID {
		return fmt.Errorf("trello: card %s is in list %s, expected %s", cardID, card.IDList, listID)
	}

	c.logger.Debug("trello card moved", "card", cardID, "list", listID)
	return nil
}
