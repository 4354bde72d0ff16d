// Package chainapi reads live chain state from a node's HTTP API.
package chainapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
	"github.com/greymass/ramindex/libraries/logger"
	"github.com/greymass/ramindex/libraries/serviceclient"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/market"
	"github.com/greymass/ramindex/services/ramindex/internal/metrics"
	"github.com/sony/gobreaker"
)

type Config struct {
	URL           string
	Timeout       time.Duration
	UserAgent     string
	SystemAccount string
	MarketTable   string
}

type Client struct {
	api   *serviceclient.Client
	cb    *gobreaker.CircuitBreaker
	code  string
	table string
}

func New(cfg Config) *Client {
	if cfg.SystemAccount == "" {
		cfg.SystemAccount = "enumivo"
	}
	if cfg.MarketTable == "" {
		cfg.MarketTable = "rammarket"
	}

	settings := gobreaker.Settings{
		Name:        "chain-api",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return !serviceclient.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("chainapi", "Circuit breaker %s: %s → %s", name, from, to)
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.CircuitBreakerOpen.WithLabelValues(name).Set(open)
		},
	}

	return &Client{
		api:   serviceclient.New(cfg.URL, cfg.Timeout, "ramindex"),
		cb:    gobreaker.NewCircuitBreaker(settings),
		code:  cfg.SystemAccount,
		table: cfg.MarketTable,
	}
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.api.Post(ctx, path, req, resp)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierr.Wrap(apierr.KindUnavailable, err, "chain api %s", path)
	}
	if serviceclient.IsRetryable(err) {
		return apierr.Wrap(apierr.KindUnavailable, err, "chain api %s", path)
	}
	return err
}

// RAMLimit returns the account's current RAM quota in bytes.
func (c *Client) RAMLimit(ctx context.Context, account uint64) (int64, error) {
	name := chain.NameToString(account)
	var resp map[string]any
	err := c.post(ctx, "/v1/chain/get_account", map[string]string{"account_name": name}, &resp)
	if err != nil {
		var se *serviceclient.ServiceError
		if errors.As(err, &se) && se.IsUnknownKey() {
			return 0, apierr.Wrap(apierr.KindMalformedTrace, err, "account %s does not exist", name)
		}
		return 0, err
	}
	quota, ok := encoding.MaybeGetInt64(resp["ram_quota"])
	if !ok {
		return 0, fmt.Errorf("get_account %s: ram_quota missing or not a number", name)
	}
	return quota, nil
}

// LastIrreversibleBlock returns the node's last irreversible block number.
func (c *Client) LastIrreversibleBlock(ctx context.Context) (uint32, error) {
	var resp map[string]any
	if err := c.post(ctx, "/v1/chain/get_info", struct{}{}, &resp); err != nil {
		return 0, err
	}
	lib, ok := encoding.MaybeGetUint64(resp["last_irreversible_block_num"])
	if !ok || lib > 0xFFFFFFFF {
		return 0, fmt.Errorf("get_info: invalid last_irreversible_block_num %v", resp["last_irreversible_block_num"])
	}
	return uint32(lib), nil
}

type tableRowsRequest struct {
	Code  string `json:"code"`
	Scope string `json:"scope"`
	Table string `json:"table"`
	JSON  bool   `json:"json"`
	Limit int    `json:"limit"`
}

type tableRowsResponse struct {
	Rows []map[string]any `json:"rows"`
}

// RAMMarket reads the single row of the system contract's market table.
func (c *Client) RAMMarket(ctx context.Context) (market.State, error) {
	req := tableRowsRequest{Code: c.code, Scope: c.code, Table: c.table, JSON: true, Limit: 1}
	var resp tableRowsResponse
	if err := c.post(ctx, "/v1/chain/get_table_rows", req, &resp); err != nil {
		return market.State{}, err
	}
	if len(resp.Rows) == 0 {
		return market.State{}, apierr.New(apierr.KindUnavailable, "missing row in table %s", c.table)
	}
	return parseMarketRow(resp.Rows[0])
}

func parseMarketRow(row map[string]any) (market.State, error) {
	var s market.State
	var err error
	if s.Supply, err = assetOf(row["supply"], "supply"); err != nil {
		return s, err
	}
	if s.Base, err = connectorOf(row["base"], "base"); err != nil {
		return s, err
	}
	if s.Quote, err = connectorOf(row["quote"], "quote"); err != nil {
		return s, err
	}
	return s, nil
}

func assetOf(v any, field string) (chain.Asset, error) {
	str, ok := encoding.MaybeGetString(v)
	if !ok {
		return chain.Asset{}, fmt.Errorf("market %s: expected asset, got %T", field, v)
	}
	a, err := chain.ParseAsset(str)
	if err != nil {
		return chain.Asset{}, fmt.Errorf("market %s: %w", field, err)
	}
	return a, nil
}

func connectorOf(v any, field string) (market.Connector, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return market.Connector{}, fmt.Errorf("market %s: expected object, got %T", field, v)
	}
	balance, err := assetOf(m["balance"], field+".balance")
	if err != nil {
		return market.Connector{}, err
	}
	weight, err := weightOf(m["weight"])
	if err != nil {
		return market.Connector{}, fmt.Errorf("market %s.weight: %w", field, err)
	}
	return market.Connector{Balance: balance, Weight: weight}, nil
}

// weightOf reads a connector weight as the table stores it
// ("0.50000000000000000"). The curve uses it unscaled.
func weightOf(v any) (float64, error) {
	var w float64
	switch x := v.(type) {
	case nil:
		return 0, errors.New("missing weight")
	case float64:
		w = x
	default:
		s, ok := encoding.MaybeGetString(x)
		if !ok {
			return 0, fmt.Errorf("unexpected type %T", v)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		w = f
	}
	if !(w > 0) || math.IsInf(w, 0) {
		return 0, fmt.Errorf("weight %v out of range", w)
	}
	return w, nil
}
