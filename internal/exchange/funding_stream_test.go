package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signalflow/config"
)

func TestFundingStreamHandleMessage(t *testing.T) {
	stream := NewFundingStream(config.FundingStreamConfig{})

	payload := `[
		{"e":"markPriceUpdate","E":1710000000000,"s":"BTCUSDT","p":"65000.00","r":"0.00010000"},
		{"e":"markPriceUpdate","E":1710000000000,"s":"ETHUSDT","p":"3200.00","r":"-0.00025000"},
		{"e":"markPriceUpdate","E":1710000000000,"s":"BADUSDT","p":"1.00","r":"not-a-number"}
	]`
	stream.handleMessage([]byte(payload))

	rates, updated := stream.Rates()
	if updated.IsZero() {
		t.Error("update time should be set after a message")
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 parsed rates, got %d", len(rates))
	}
	if rates["BTCUSDT"] != 0.0001 {
		t.Errorf("BTCUSDT rate = %v, want 0.0001", rates["BTCUSDT"])
	}
	if rates["ETHUSDT"] != -0.00025 {
		t.Errorf("ETHUSDT rate = %v, want -0.00025", rates["ETHUSDT"])
	}
}

func TestFundingStreamIgnoresGarbage(t *testing.T) {
	stream := NewFundingStream(config.FundingStreamConfig{})

	stream.handleMessage([]byte("not json"))

	rates, updated := stream.Rates()
	if len(rates) != 0 || !updated.IsZero() {
		t.Error("garbage payload must not update rates")
	}
}

func TestFundingStreamStopUnblocksActiveConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame := []byte(`[{"e":"markPriceUpdate","s":"BTCUSDT","p":"65000.00","r":"0.00010000"}]`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer srv.Close()

	stream := NewFundingStream(config.FundingStreamConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := stream.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rates, _ := stream.Rates()
		if len(rates) > 0 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no funding rates arrived from the test stream")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	stopped := make(chan struct{})
	go func() {
		stream.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestFundingStreamRatesReturnsCopy(t *testing.T) {
	stream := NewFundingStream(config.FundingStreamConfig{})
	stream.handleMessage([]byte(`[{"s":"BTCUSDT","r":"0.0001"}]`))

	rates, _ := stream.Rates()
	rates["BTCUSDT"] = 99

	again, _ := stream.Rates()
	if again["BTCUSDT"] != 0.0001 {
		t.Error("Rates must return a copy, not the internal map")
	}
}
