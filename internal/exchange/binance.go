package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"signalflow/config"
	"signalflow/internal/models"
	"signalflow/logger"
)

// Client fetches futures market data from Binance using the binance-go
// client. It satisfies history.OIFetcher via OpenInterest.
type Client struct {
	config config.BinanceSourceConfig
	client *futures.Client
	log    *logger.Log
}

// NewClient creates a Binance futures client with pooled connections.
func NewClient(cfg config.BinanceSourceConfig) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:       cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.ConnectionPool.IdleConnTimeout,
		DisableCompression: false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	client.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		client.SetApiEndpoint(cfg.BaseURL)
	}

	log.WithComponent("binance_client").WithFields(logger.Fields{
		"max_idle_conns":     cfg.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": cfg.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Timeout,
	}).Info("binance client initialized")

	return &Client{
		config: cfg,
		client: client,
		log:    log,
	}
}

// Tickers fetches 24h price-change statistics for every futures symbol and
// returns partial snapshots: price, quote volume and price change. Funding
// rate and open-interest value are filled in by later calls. Rows that fail
// numeric parsing are logged and skipped.
func (c *Client) Tickers(ctx context.Context) ([]models.MarketSnapshot, error) {
	log := c.log.WithComponent("binance_client")

	stats, err := c.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 24h tickers: %w", err)
	}

	now := time.Now()
	snapshots := make([]models.MarketSnapshot, 0, len(stats))
	for _, s := range stats {
		price, err1 := strconv.ParseFloat(s.LastPrice, 64)
		volume, err2 := strconv.ParseFloat(s.QuoteVolume, 64)
		changePct, err3 := strconv.ParseFloat(s.PriceChangePercent, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.WithFields(logger.Fields{"symbol": s.Symbol}).Warn("unparsable ticker row skipped")
			continue
		}

		snapshots = append(snapshots, models.MarketSnapshot{
			Symbol:            s.Symbol,
			Price:             price,
			QuoteVolume24h:    volume,
			PriceChangePct24h: changePct / 100,
			CapturedAt:        now,
		})
	}

	log.WithFields(logger.Fields{"symbols": len(snapshots)}).Debug("fetched 24h tickers")
	return snapshots, nil
}

// FundingRates fetches the premium index for every symbol and returns the
// last funding rate per symbol.
func (c *Client) FundingRates(ctx context.Context) (map[string]float64, error) {
	premiums, err := c.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch premium index: %w", err)
	}

	rates := make(map[string]float64, len(premiums))
	for _, p := range premiums {
		rate, err := strconv.ParseFloat(p.LastFundingRate, 64)
		if err != nil {
			continue
		}
		rates[p.Symbol] = rate
	}
	return rates, nil
}

// OpenInterest fetches the current open-interest quantity for one symbol.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (models.OIObservation, error) {
	oi, err := c.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.OIObservation{}, fmt.Errorf("failed to fetch open interest for %s: %w", symbol, err)
	}

	quantity, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return models.OIObservation{}, fmt.Errorf("unparsable open interest for %s: %w", symbol, err)
	}

	timestamp := time.UnixMilli(oi.Time)
	if oi.Time == 0 {
		timestamp = time.Now()
	}
	return models.OIObservation{
		Symbol:       symbol,
		OpenInterest: quantity,
		Timestamp:    timestamp,
		CollectedAt:  time.Now(),
	}, nil
}

// PerpetualSymbols fetches exchange info and returns every tradable
// USDT-margined perpetual symbol.
func (c *Client) PerpetualSymbols(ctx context.Context) ([]string, error) {
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if s.ContractType != "PERPETUAL" {
			continue
		}
		if s.QuoteAsset != "USDT" {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}

	c.log.WithComponent("binance_client").WithFields(logger.Fields{
		"total":      len(info.Symbols),
		"perpetuals": len(symbols),
	}).Debug("fetched exchange info")
	return symbols, nil
}
