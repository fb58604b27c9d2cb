package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signalflow/config"
	"signalflow/internal/models"
)

func TestWebhookSendText(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Write([]byte(`{"errcode": 0, "errmsg": "ok"}`))
	}))
	defer server.Close()

	webhook := NewWebhook(config.NotifierConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Format:     "text",
	})

	if err := webhook.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received["msgtype"] != "text" {
		t.Errorf("msgtype = %v, want text", received["msgtype"])
	}
	text, ok := received["text"].(map[string]interface{})
	if !ok || text["content"] != "hello" {
		t.Errorf("payload text = %v, want content hello", received["text"])
	}
}

func TestWebhookSendMarkdown(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Write([]byte(`{"errcode": 0}`))
	}))
	defer server.Close()

	webhook := NewWebhook(config.NotifierConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Format:     "markdown",
	})

	if err := webhook.Send(context.Background(), "**bold**"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received["msgtype"] != "markdown" {
		t.Errorf("msgtype = %v, want markdown", received["msgtype"])
	}
}

func TestWebhookRejectedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode": 93000, "errmsg": "invalid webhook url"}`))
	}))
	defer server.Close()

	webhook := NewWebhook(config.NotifierConfig{
		Enabled:    true,
		WebhookURL: server.URL,
	})

	if err := webhook.Send(context.Background(), "hello"); err == nil {
		t.Error("non-zero errcode should fail Send")
	}
}

func TestWebhookDisabledIsNoop(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	webhook := NewWebhook(config.NotifierConfig{Enabled: false, WebhookURL: server.URL})
	if err := webhook.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("disabled notifier made %d requests, want 0", calls)
	}
}

func TestFormatReportSections(t *testing.T) {
	buy := models.SignalRecord{
		MarketSnapshot:   models.MarketSnapshot{Symbol: "BTCUSDT"},
		SignalStrength:   92,
		RiskScore:        35,
		OIMarketCapRatio: models.KnownRatio(0.62),
	}
	buy.BuySignal = true
	alert := models.SignalRecord{
		MarketSnapshot: models.MarketSnapshot{Symbol: "PEPEUSDT", FundingRate: 0.0015},
		FundingRateAbs: 0.0015,
		OISurgeRatio:   2.6,
	}
	alert.AlertSignal = true

	report := models.Report{
		GeneratedAt:         time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		TotalSymbols:        2,
		BuySignals:          1,
		AlertSignals:        1,
		AvgSignalStrength:   60,
		AvgOIMarketCapRatio: models.KnownRatio(0.4),
		TopBuySignals:       []models.SignalRecord{buy},
		TopAlertSignals:     []models.SignalRecord{alert},
	}

	msg := FormatReport(report)

	for _, want := range []string{"Symbols scored: 2", "Top buy candidates", "BTCUSDT", "Funding alerts", "PEPEUSDT", "not investment advice"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Sell candidates") {
		t.Error("empty sell section should be omitted")
	}
}

func TestFormatReportNoData(t *testing.T) {
	msg := FormatReport(models.Report{NoData: true, GeneratedAt: time.Now()})
	if !strings.Contains(msg, "No market data") {
		t.Errorf("no-data report should say so:\n%s", msg)
	}
}
