package supply

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"signalflow/config"
	"signalflow/logger"
)

const cmcBatchSize = 100

// Updater refreshes the local supply table from third-party quote APIs:
// CoinMarketCap first, CoinGecko as a per-symbol fallback. A mapping file
// translates exchange base symbols to the name a quote API knows them by.
type Updater struct {
	config  config.SupplyConfig
	table   *Table
	mapping map[string]string
	client  *http.Client
	log     *logger.Log
}

func NewUpdater(cfg config.SupplyConfig, table *Table) *Updater {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u := &Updater{
		config:  cfg,
		table:   table,
		mapping: make(map[string]string),
		client:  &http.Client{Timeout: timeout},
		log:     logger.GetLogger(),
	}
	u.loadMapping()
	return u
}

func (u *Updater) loadMapping() {
	if u.config.MappingFile == "" {
		return
	}
	data, err := os.ReadFile(u.config.MappingFile)
	if err != nil {
		if !os.IsNotExist(err) {
			u.log.WithComponent("supply_updater").WithError(err).Warn("failed to read symbol mapping file")
		}
		return
	}
	if err := json.Unmarshal(data, &u.mapping); err != nil {
		u.log.WithComponent("supply_updater").WithError(err).Warn("corrupt symbol mapping file ignored")
		u.mapping = make(map[string]string)
	}
}

// quoteSymbol returns the symbol a quote API should be asked about.
func (u *Updater) quoteSymbol(base string) string {
	if mapped, ok := u.mapping[base]; ok {
		return mapped
	}
	return base
}

// Refresh fills in circulating supply for every base symbol that lacks one,
// or for all of them when force is set, then saves the table. Per-symbol
// lookup failures are logged and skipped.
func (u *Updater) Refresh(ctx context.Context, bases []string, force bool) error {
	log := u.log.WithComponent("supply_updater")

	var missing []string
	for _, base := range bases {
		if _, ok := u.table.Get(base); ok && !force {
			continue
		}
		missing = append(missing, base)
	}
	if len(missing) == 0 {
		log.Debug("supply table already complete")
		return nil
	}

	log.WithFields(logger.Fields{"symbols": len(missing), "force": force}).Info("refreshing circulating supply")

	resolved := 0
	if u.config.CoinMarketCap.Enabled {
		resolved += u.refreshFromCMC(ctx, missing)
	}
	if u.config.CoinGecko.Enabled {
		for _, base := range missing {
			if _, ok := u.table.Get(base); ok && !force {
				continue
			}
			supply, err := u.fetchCoinGecko(ctx, u.quoteSymbol(base))
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"symbol": base}).Warn("coingecko lookup failed")
				continue
			}
			if supply > 0 {
				u.table.Set(base, supply)
				resolved++
			}
		}
	}

	log.WithFields(logger.Fields{"resolved": resolved, "requested": len(missing)}).Info("supply refresh finished")
	return u.table.Save()
}

type cmcQuoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string][]struct {
		Symbol            string  `json:"symbol"`
		CirculatingSupply float64 `json:"circulating_supply"`
	} `json:"data"`
}

// refreshFromCMC resolves supply in batches via the v2 quotes endpoint and
// returns how many symbols it filled in.
func (u *Updater) refreshFromCMC(ctx context.Context, bases []string) int {
	log := u.log.WithComponent("supply_updater")

	resolved := 0
	for start := 0; start < len(bases); start += cmcBatchSize {
		end := start + cmcBatchSize
		if end > len(bases) {
			end = len(bases)
		}
		batch := bases[start:end]

		quoted := make([]string, len(batch))
		for i, base := range batch {
			quoted[i] = u.quoteSymbol(base)
		}

		resp, err := u.fetchCMCBatch(ctx, quoted)
		if err != nil {
			log.WithError(err).Warn("coinmarketcap batch failed")
			continue
		}

		for i, base := range batch {
			entries, ok := resp.Data[quoted[i]]
			if !ok || len(entries) == 0 {
				continue
			}
			if supply := entries[0].CirculatingSupply; supply > 0 {
				u.table.Set(base, supply)
				resolved++
			}
		}
	}
	return resolved
}

func (u *Updater) fetchCMCBatch(ctx context.Context, symbols []string) (*cmcQuoteResponse, error) {
	base := u.config.CoinMarketCap.URL
	if base == "" {
		base = "https://pro-api.coinmarketcap.com/v2/cryptocurrency/quotes/latest"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("symbol", strings.Join(symbols, ","))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-CMC_PRO_API_KEY", u.config.CoinMarketCap.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coinmarketcap returned status %d", resp.StatusCode)
	}

	var decoded cmcQuoteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode coinmarketcap response: %w", err)
	}
	if decoded.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("coinmarketcap error %d: %s", decoded.Status.ErrorCode, decoded.Status.ErrorMessage)
	}
	return &decoded, nil
}

type geckoSearchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

type geckoCoinResponse struct {
	MarketData struct {
		CirculatingSupply float64 `json:"circulating_supply"`
	} `json:"market_data"`
}

// fetchCoinGecko resolves one symbol: search for the coin id, then read its
// circulating supply from the coin detail endpoint.
func (u *Updater) fetchCoinGecko(ctx context.Context, symbol string) (float64, error) {
	base := u.config.CoinGecko.URL
	if base == "" {
		base = "https://api.coingecko.com/api/v3"
	}
	base = strings.TrimRight(base, "/")

	var search geckoSearchResponse
	if err := u.getJSON(ctx, base+"/search?query="+url.QueryEscape(symbol), &search); err != nil {
		return 0, err
	}

	coinID := ""
	for _, coin := range search.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			coinID = coin.ID
			break
		}
	}
	if coinID == "" {
		return 0, fmt.Errorf("no coingecko match for %s", symbol)
	}

	var coin geckoCoinResponse
	detail := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false", base, coinID)
	if err := u.getJSON(ctx, detail, &coin); err != nil {
		return 0, err
	}
	return coin.MarketData.CirculatingSupply, nil
}

func (u *Updater) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
