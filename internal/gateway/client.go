// Package gateway implements the typed request/response façade to the
// trading venue (C1): markets, order books, tickers, balances, order CRUD,
// and market withdraw. It is the only package in this module that talks to
// the venue; everything below it is pure compute.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"ladder-mm/internal/config"
	"ladder-mm/pkg/types"
)

// Route identifies which chain/network/connector a call is addressed to.
// Every gateway operation carries it except DeleteOrders, which sends only
// the ids, marketId and ownerAddress.
type Route struct {
	Chain     string
	Network   string
	Connector string
}

// Client is the gateway client façade. It is stateless beyond its HTTP
// transport, rate limiter, and dry-run toggle.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient builds a façade backed by an HTTP client with retry and
// rate limiting, per the teacher's exchange client idiom.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   http,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "gateway"),
	}
}

func (c *Client) routeParams(r Route) map[string]string {
	return map[string]string{
		"chain":     r.Chain,
		"network":   r.Network,
		"connector": r.Connector,
	}
}

// GetMarket fetches a market descriptor by name.
func (c *Client) GetMarket(ctx context.Context, r Route, name string) (types.Market, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.Market{}, err
	}

	type rawMarket struct {
		ID                    string `json:"id"`
		Name                  string `json:"name"`
		Base                  types.Token `json:"base"`
		Quote                 types.Token `json:"quote"`
		MinimumPriceIncrement string `json:"minimumPriceIncrement"`
		MinimumOrderSize      string `json:"minimumOrderSize"`
	}
	var raw rawMarket

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.routeParams(r)).
		SetQueryParam("name", name).
		SetResult(&raw).
		Get("/market")
	if err != nil {
		return types.Market{}, fmt.Errorf("get market: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Market{}, fmt.Errorf("get market: status %d: %s", resp.StatusCode(), resp.String())
	}

	market, err := decodeMarket(raw.ID, raw.Name, raw.Base, raw.Quote, raw.MinimumPriceIncrement, raw.MinimumOrderSize)
	if err != nil {
		return types.Market{}, fmt.Errorf("decode market: %w", err)
	}
	return market, nil
}

// GetOrderBook fetches the raw book for a market; the caller normalizes it
// via the book package.
func (c *Client) GetOrderBook(ctx context.Context, r Route, marketID string) (types.RawOrderBook, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.RawOrderBook{}, err
	}

	var raw types.RawOrderBook
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.routeParams(r)).
		SetQueryParam("marketId", marketID).
		SetResult(&raw).
		Get("/orderBook")
	if err != nil {
		return types.RawOrderBook{}, fmt.Errorf("get order book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.RawOrderBook{}, fmt.Errorf("get order book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return raw, nil
}

// GetTicker fetches the latest ticker price for a market.
func (c *Client) GetTicker(ctx context.Context, r Route, marketID string) (types.Ticker, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.Ticker{}, err
	}

	var raw struct {
		Price string `json:"price"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.routeParams(r)).
		SetQueryParam("marketId", marketID).
		SetResult(&raw).
		Get("/ticker")
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get ticker: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Ticker{}, fmt.Errorf("get ticker: status %d: %s", resp.StatusCode(), resp.String())
	}

	price, err := parseDecimal(raw.Price)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("ticker price: %w", err)
	}
	return types.Ticker{Price: price}, nil
}

// GetBalances fetches free/locked/unsettled balances for the given token ids.
func (c *Client) GetBalances(ctx context.Context, r Route, ownerAddress string, tokenIDs []string) (types.Balances, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.Balances{}, err
	}

	type rawBalance struct {
		Free           string `json:"free"`
		LockedInOrders string `json:"lockedInOrders"`
		Unsettled      string `json:"unsettled"`
	}
	var raw struct {
		Total  rawBalance            `json:"total"`
		Tokens map[string]rawBalance `json:"tokens"`
	}

	params := c.routeParams(r)
	params["ownerAddress"] = ownerAddress

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParamsFromValues(map[string][]string{"tokenIds": tokenIDs}).
		SetResult(&raw).
		Get("/balances")
	if err != nil {
		return types.Balances{}, fmt.Errorf("get balances: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Balances{}, fmt.Errorf("get balances: status %d: %s", resp.StatusCode(), resp.String())
	}

	total, err := decodeTokenBalance(raw.Total.Free, raw.Total.LockedInOrders, raw.Total.Unsettled)
	if err != nil {
		return types.Balances{}, fmt.Errorf("total balance: %w", err)
	}

	tokens := make(map[string]types.TokenBalance, len(raw.Tokens))
	for id, b := range raw.Tokens {
		tb, err := decodeTokenBalance(b.Free, b.LockedInOrders, b.Unsettled)
		if err != nil {
			return types.Balances{}, fmt.Errorf("token %s balance: %w", id, err)
		}
		tokens[id] = tb
	}

	return types.Balances{Total: total, Tokens: tokens}, nil
}

// GetOrders fetches orders in the given status (OPEN or FILLED), keyed by
// venue id.
func (c *Client) GetOrders(ctx context.Context, r Route, marketID, ownerAddress string, status types.OrderStatus) (map[string]types.VenueOrder, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}

	type rawOrder struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
		MarketID string `json:"marketId"`
		Side     string `json:"side"`
		Price    string `json:"price"`
		Amount   string `json:"amount"`
		Status   string `json:"status"`
	}
	var raw map[string]rawOrder

	params := c.routeParams(r)
	params["marketId"] = marketID
	params["ownerAddress"] = ownerAddress
	params["status"] = string(status)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&raw).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make(map[string]types.VenueOrder, len(raw))
	for id, o := range raw {
		price, err := parseDecimal(o.Price)
		if err != nil {
			return nil, fmt.Errorf("order %s price: %w", id, err)
		}
		amount, err := parseDecimal(o.Amount)
		if err != nil {
			return nil, fmt.Errorf("order %s amount: %w", id, err)
		}
		out[id] = types.VenueOrder{
			ID:       o.ID,
			ClientID: o.ClientID,
			MarketID: o.MarketID,
			Side:     types.Side(o.Side),
			Price:    price,
			Amount:   amount,
			Status:   types.OrderStatus(o.Status),
		}
	}
	return out, nil
}

// PostOrders places candidate orders in a single batch.
func (c *Client) PostOrders(ctx context.Context, r Route, orders []types.WireOrder) (map[string]types.PlacedOrder, error) {
	if len(orders) == 0 {
		return map[string]types.PlacedOrder{}, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would post orders", "count", len(orders))
		out := make(map[string]types.PlacedOrder, len(orders))
		for i, o := range orders {
			id := fmt.Sprintf("dry-run-%d", i)
			out[id] = types.PlacedOrder{ID: id, ClientID: o.ClientID}
		}
		return out, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.routeParams(r)).
		SetBody(map[string]any{"orders": orders}).
		SetResult(&raw).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make(map[string]types.PlacedOrder, len(raw))
	for id, p := range raw {
		out[id] = types.PlacedOrder{ID: p.ID, ClientID: p.ClientID}
	}
	return out, nil
}

// DeleteOrders cancels a specific set of order ids.
func (c *Client) DeleteOrders(ctx context.Context, ids []string, marketID, ownerAddress string) (map[string]types.CancelAck, error) {
	if len(ids) == 0 {
		return map[string]types.CancelAck{}, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would cancel orders", "count", len(ids))
		out := make(map[string]types.CancelAck, len(ids))
		for _, id := range ids {
			out[id] = types.CancelAck{ID: id, Success: true}
		}
		return out, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]bool
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"ids":          ids,
			"marketId":     marketID,
			"ownerAddress": ownerAddress,
		}).
		SetResult(&raw).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("delete orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("delete orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make(map[string]types.CancelAck, len(raw))
	for id, ok := range raw {
		out[id] = types.CancelAck{ID: id, Success: ok}
	}
	return out, nil
}

// DeleteAllOrders cancels every order this owner has open on the market.
func (c *Client) DeleteAllOrders(ctx context.Context, r Route, marketID, ownerAddress string) (map[string]types.CancelAck, error) {
	if c.dryRun {
		c.logger.Info("dry-run: would cancel all orders", "market", marketID)
		return map[string]types.CancelAck{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]bool
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chain":        r.Chain,
			"network":      r.Network,
			"connector":    r.Connector,
			"marketId":     marketID,
			"ownerAddress": ownerAddress,
		}).
		SetResult(&raw).
		Delete("/orders/all")
	if err != nil {
		return nil, fmt.Errorf("delete all orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("delete all orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make(map[string]types.CancelAck, len(raw))
	for id, ok := range raw {
		out[id] = types.CancelAck{ID: id, Success: ok}
	}
	return out, nil
}

// PostMarketWithdraw settles/withdraws accumulated market balances.
func (c *Client) PostMarketWithdraw(ctx context.Context, r Route, marketID, ownerAddress string) error {
	if c.dryRun {
		c.logger.Info("dry-run: would withdraw market balances", "market", marketID)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chain":        r.Chain,
			"network":      r.Network,
			"connector":    r.Connector,
			"marketId":     marketID,
			"ownerAddress": ownerAddress,
		}).
		Post("/market/withdraw")
	if err != nil {
		return fmt.Errorf("market withdraw: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("market withdraw: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
