package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalflow/config"
	"signalflow/logger"
)

// FundingStream subscribes to the all-market mark-price websocket stream and
// keeps the latest funding rate per symbol in memory, so a collection cycle
// can read live funding without an extra REST call.
type FundingStream struct {
	config  config.FundingStreamConfig
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	rates   map[string]float64
	updated time.Time
	log     *logger.Log
}

func NewFundingStream(cfg config.FundingStreamConfig) *FundingStream {
	return &FundingStream{
		config: cfg,
		wg:     &sync.WaitGroup{},
		rates:  make(map[string]float64),
		log:    logger.GetLogger(),
	}
}

// Start launches the websocket worker. Returns an error when already running.
func (f *FundingStream) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("funding stream already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	f.wg.Add(1)
	go f.streamWorker()

	f.log.WithComponent("funding_stream").Info("funding stream started")
	return nil
}

// Stop waits for the websocket worker to exit.
func (f *FundingStream) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("funding_stream").Info("stopping funding stream")
	f.wg.Wait()
	f.log.WithComponent("funding_stream").Info("funding stream stopped")
}

// Rates returns a copy of the latest funding rates and the time of the last
// update. An empty map means no stream data has arrived yet.
func (f *FundingStream) Rates() (map[string]float64, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]float64, len(f.rates))
	for k, v := range f.rates {
		out[k] = v
	}
	return out, f.updated
}

type markPricePayload struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	MarkPrice   string `json:"p"`
	FundingRate string `json:"r"`
}

func (f *FundingStream) streamWorker() {
	defer f.wg.Done()

	baseURL := strings.TrimSpace(f.config.URL)
	if baseURL == "" {
		baseURL = "wss://fstream.binance.com/ws"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	endpoint := baseURL + "/!markPrice@arr"

	reconnect := f.config.ReconnectDelay
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}

	log := f.log.WithComponent("funding_stream").WithFields(logger.Fields{"endpoint": endpoint})
	dialer := websocket.Dialer{}

	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.Dial(endpoint, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect to mark-price websocket")
			select {
			case <-time.After(reconnect):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		// Close the connection on cancellation so the read loop unblocks.
		done := make(chan struct{})
		go func() {
			select {
			case <-f.ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				if f.ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("mark-price stream error, reconnecting")
				break
			}
			f.handleMessage(raw)
		}

		select {
		case <-time.After(reconnect):
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *FundingStream) handleMessage(raw []byte) {
	var payloads []markPricePayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		f.log.WithComponent("funding_stream").WithError(err).Debug("failed to decode mark-price payload")
		return
	}

	now := time.Now()
	f.mu.Lock()
	for _, p := range payloads {
		rate, err := strconv.ParseFloat(p.FundingRate, 64)
		if err != nil {
			continue
		}
		f.rates[p.Symbol] = rate
	}
	f.updated = now
	f.mu.Unlock()
}
