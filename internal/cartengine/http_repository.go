package cartengine

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

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	cartPath              = "/api/v1/cart"
	guestSessionHeader    = "X-Guest-Session"
	defaultRequestTimeout = 10 * time.Second
)

const errorBodyReadLimit int64 = 4096

// HTTPRepository talks to the storefront cart API.
type HTTPRepository struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*HTTPRepository)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *HTTPRepository) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// NewHTTPRepository builds a cart API client rooted at baseURL.
func NewHTTPRepository(baseURL string, opts ...Option) (*HTTPRepository, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("cart api base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid cart api base url: %w", err)
	}
	repo := &HTTPRepository{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

type addItemRequest struct {
	types.CartItem
	Quantity int `json:"quantity"`
}

type updateQuantityRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type mergeRequest struct {
	Items []types.CartItem `json:"items"`
}

func (r *HTTPRepository) GetCart(ctx context.Context, session Session) ([]types.CartItem, error) {
	return r.do(ctx, session, http.MethodGet, cartPath, nil)
}

func (r *HTTPRepository) AddItem(ctx context.Context, session Session, item types.CartItem, quantity int) ([]types.CartItem, error) {
	item.Quantity = 0
	return r.do(ctx, session, http.MethodPost, cartPath+"/items", addItemRequest{CartItem: item, Quantity: quantity})
}

func (r *HTTPRepository) UpdateQuantity(ctx context.Context, session Session, key types.LineKey, quantity int) ([]types.CartItem, error) {
	return r.do(ctx, session, http.MethodPatch, cartPath+"/items", updateQuantityRequest{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Quantity:  quantity,
	})
}

func (r *HTTPRepository) RemoveItem(ctx context.Context, session Session, key types.LineKey) ([]types.CartItem, error) {
	query := url.Values{}
	query.Set("product_id", key.ProductID)
	if key.VariantID != "" {
		query.Set("variant_id", key.VariantID)
	}
	return r.do(ctx, session, http.MethodDelete, cartPath+"/items?"+query.Encode(), nil)
}

func (r *HTTPRepository) ClearCart(ctx context.Context, session Session) ([]types.CartItem, error) {
	return r.do(ctx, session, http.MethodDelete, cartPath, nil)
}

func (r *HTTPRepository) MergeCart(ctx context.Context, session Session, items []types.CartItem) ([]types.CartItem, error) {
	return r.do(ctx, session, http.MethodPost, cartPath+"/merge", mergeRequest{Items: items})
}

func (r *HTTPRepository) do(ctx context.Context, session Session, method, path string, body any) ([]types.CartItem, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cart request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build cart request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}
	if session.GuestID != "" {
		req.Header.Set(guestSessionHeader, session.GuestID)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute cart request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp)
	}

	var envelope types.Envelope[types.CartView]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart response")
	}
	return types.CloneItems(envelope.Data.Items), nil
}

// decodeAPIError rebuilds the typed error from the API envelope so callers
// can branch on codes the same way server code does.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		return pkgerrors.New(pkgerrors.Code(envelope.Error.Code), envelope.Error.Message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency,
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		"cart request failed")
}
