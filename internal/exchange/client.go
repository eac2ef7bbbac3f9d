// Package exchange implements the Polymarket CLOB REST client, with its
// request authentication and rate limiting.
//
// The REST client (Client) talks to the Polymarket CLOB API for order management:
//   - GetOrderBook:       GET  /book               — fetch L2 book for a token
//   - PostOrders:         POST /orders              — batch-place up to 15 signed orders
//   - CancelOrders:       DELETE /orders            — cancel specific orders by ID
//   - CancelAll:          DELETE /cancel-all         — emergency cancel everything
//   - CancelMarketOrders: DELETE /cancel-market-orders — cancel one market's orders
//   - DeriveAPIKey:       GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Every request is rate-limited via per-category TokenBuckets, automatically retried
// on 5xx errors, and authenticated with L2 HMAC headers (except book reads).
package exchange

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/YuriAllexei/polypolypoly-sub000/internal/config"
	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

// maxSalt bounds the random order salt to a uint256, matching the
// CTF Exchange contract's salt field width.
var maxSalt = new(big.Int).Lsh(big.NewInt(1), 256)

// Client is the Polymarket CLOB REST API client.
// It wraps a resty HTTP client with rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client  // HTTP client with retry + base URL
	auth   *Auth          // L1/L2 auth provider for request signing
	rl     *RateLimiter   // per-endpoint-category rate limiting
	dryRun bool           // when true, mutating methods return fake success without HTTP calls
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// buildOrderPayload converts a high-level UserOrder into the on-chain
// SignedOrder + metadata the REST API expects. It converts human-readable
// price/size to big.Int maker/taker amounts at the market's tick precision,
// sets the maker to the funder wallet (proxy), the signer to the EOA,
// the taker to the zero address (open order, anyone can fill), and signs
// the resulting order with the EIP-712 CTF Exchange domain.
func (c *Client) buildOrderPayload(order types.UserOrder, negRisk bool) (types.OrderPayload, error) {
	if _, ok := new(big.Int).SetString(order.TokenID, 10); !ok {
		return types.OrderPayload{}, fmt.Errorf("invalid token id %q: not a base-10 integer", order.TokenID)
	}

	tickSize := order.TickSize
	if tickSize == "" {
		tickSize = types.Tick001
	}
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tickSize)

	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return types.OrderPayload{}, fmt.Errorf("generate salt: %w", err)
	}

	signed := types.SignedOrder{
		Salt:          salt.String(),
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       order.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Side:          order.Side,
		Expiration:    fmt.Sprintf("%d", order.Expiration),
		Nonce:         "0",
		FeeRateBps:    fmt.Sprintf("%d", order.FeeRateBps),
		SignatureType: c.auth.sigType,
	}

	sig, err := c.auth.SignOrder(signed, negRisk)
	if err != nil {
		return types.OrderPayload{}, fmt.Errorf("sign order: %w", err)
	}
	signed.Signature = sig

	return types.OrderPayload{
		Order:     signed,
		Owner:     c.auth.creds.ApiKey,
		OrderType: order.OrderType,
	}, nil
}

// PostOrders places up to 15 orders in a batch.
func (c *Client) PostOrders(ctx context.Context, orders []types.UserOrder, negRisk bool) ([]types.OrderResponse, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > 15 {
		return nil, fmt.Errorf("batch limit is 15 orders, got %d", len(orders))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post orders", "count", len(orders))
		results := make([]types.OrderResponse, len(orders))
		for i := range orders {
			results[i] = types.OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", i), Status: "live"}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payloads := make([]types.OrderPayload, len(orders))
	for i, order := range orders {
		payload, err := c.buildOrderPayload(order, negRisk)
		if err != nil {
			return nil, fmt.Errorf("build order payload: %w", err)
		}
		payloads[i] = payload
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payloads).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	return results, nil
}

// CancelOrders cancels multiple orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error) {
	if len(orderIDs) == 0 {
		return &types.CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return &types.CancelResponse{Canceled: orderIDs}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		OrderIDs []string `json:"orderIDs"`
	}{OrderIDs: orderIDs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// CancelMarketOrders cancels all orders for a specific market.
func (c *Client) CancelMarketOrders(ctx context.Context, conditionID string) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel market orders", "market", conditionID)
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{"market":"%s"}`, conditionID)
	headers, err := c.auth.L2Headers("DELETE", "/cancel-market-orders", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/cancel-market-orders")
	if err != nil {
		return nil, fmt.Errorf("cancel market orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel market orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetOpenOrders fetches one page of resting orders, feeding the Order
// State Store's REST hydration and the periodic order reconciler. An
// empty conditionID fetches across every market.
func (c *Client) GetOpenOrders(ctx context.Context, conditionID, cursor string) (*types.OpenOrdersResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if conditionID != "" {
		req.SetQueryParam("market", conditionID)
	}
	if cursor != "" {
		req.SetQueryParam("next_cursor", cursor)
	}
	headers, err := c.auth.L2Headers("GET", "/data/orders", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OpenOrdersResponse
	resp, err := req.SetHeaders(headers).SetResult(&result).Get("/data/orders")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetAllOpenOrders pages through GetOpenOrders until the cursor is
// exhausted. An empty conditionID fetches every market's orders, the
// shape the order reconciler wants.
func (c *Client) GetAllOpenOrders(ctx context.Context, conditionID string) ([]types.OpenOrder, error) {
	var all []types.OpenOrder
	cursor := ""
	for {
		page, err := c.GetOpenOrders(ctx, conditionID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Orders...)
		if page.Next == "" || page.Next == cursor {
			return all, nil
		}
		cursor = page.Next
	}
}

// GetPositions fetches one page of on-chain holdings, used by the
// Position Tracker's periodic reconciler to catch drift against
// locally accumulated fills. An empty conditionID fetches the wallet's
// holdings across every market.
func (c *Client) GetPositions(ctx context.Context, conditionID, cursor string) (*types.PositionsResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if conditionID != "" {
		req.SetQueryParam("market", conditionID)
	}
	if cursor != "" {
		req.SetQueryParam("next_cursor", cursor)
	}
	headers, err := c.auth.L2Headers("GET", "/data/positions", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.PositionsResponse
	resp, err := req.SetHeaders(headers).SetResult(&result).Get("/data/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// MergePositions redeems a complete set of Up/Down tokens back into
// collateral, the settlement leg behind the Merger's ShouldMerge decision.
func (c *Client) MergePositions(ctx context.Context, conditionID string, pairs float64) (*types.MergeResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would merge positions", "market", conditionID, "pairs", pairs)
		return &types.MergeResponse{Success: true, TxHash: "dry-run"}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := types.MergeRequest{ConditionID: conditionID, Amount: fmt.Sprintf("%.6f", pairs)}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal merge request: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/merge", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.MergeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(reqBody).
		SetResult(&result).
		Post("/merge")
	if err != nil {
		return nil, fmt.Errorf("merge positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("merge positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Info("positions merged", "market", conditionID, "pairs", pairs, "tx", result.TxHash)
	return &result, nil
}

// RedeemPositions redeems winning tokens for a resolved condition.
func (c *Client) RedeemPositions(ctx context.Context, conditionID string) (*types.RedeemResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would redeem positions", "market", conditionID)
		return &types.RedeemResponse{Success: true, TxHash: "dry-run"}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := types.RedeemRequest{ConditionID: conditionID}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal redeem request: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/redeem", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.RedeemResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(reqBody).
		SetResult(&result).
		Post("/redeem")
	if err != nil {
		return nil, fmt.Errorf("redeem positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("redeem positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Info("positions redeemed", "market", conditionID, "tx", result.TxHash)
	return &result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
