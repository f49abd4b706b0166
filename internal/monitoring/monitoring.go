// Package monitoring sends operational alerts (DLQ overflow, render-pool
// exhaustion, budget breaches) to Slack and Telegram. Grounded in
// app/notifier/monitoring.py's notify_slack/notify_telegram/notify_monitoring,
// but REDESIGNED per SPEC_FULL.md: the Python original calls both channels
// unconditionally on every alert; here Slack is primary and Telegram is
// used only as a fallback once Slack has failed three times in a row, to
// avoid doubling every page during a Slack outage.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dealwatch/scout/pkg/logger"
)

const consecutiveFailureThreshold = 3

// Notifier posts alert text to Slack, falling back to Telegram after
// consecutiveFailureThreshold consecutive Slack failures.
type Notifier struct {
	httpClient *http.Client
	log        *logger.Logger

	slackWebhook   string
	telegramToken  string
	telegramChatID int64
	telegramAPIURL string

	mu                sync.Mutex
	slackFailureCount int
}

const defaultTelegramAPIURL = "https://api.telegram.org"

func New(slackWebhook, telegramToken string, telegramChatID int64, log *logger.Logger) *Notifier {
	return &Notifier{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		log:            log,
		slackWebhook:   slackWebhook,
		telegramToken:  telegramToken,
		telegramChatID: telegramChatID,
		telegramAPIURL: defaultTelegramAPIURL,
	}
}

// Notify posts text to Slack. If Slack has failed consecutiveFailureThreshold
// times in a row (including this call), it also posts to Telegram and resets
// the counter so Telegram isn't paged on every subsequent alert during an
// outage, only every third failed attempt.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if n == nil {
		return
	}

	slackOK := n.notifySlack(ctx, text)

	n.mu.Lock()
	if slackOK {
		n.slackFailureCount = 0
		n.mu.Unlock()
		return
	}
	n.slackFailureCount++
	shouldFallback := n.slackFailureCount >= consecutiveFailureThreshold
	if shouldFallback {
		n.slackFailureCount = 0
	}
	n.mu.Unlock()

	if shouldFallback {
		n.notifyTelegram(ctx, text)
	}
}

func (n *Notifier) notifySlack(ctx context.Context, text string) bool {
	if n.slackWebhook == "" {
		return false
	}
	return n.post(ctx, n.slackWebhook, map[string]any{"text": text})
}

func (n *Notifier) notifyTelegram(ctx context.Context, text string) bool {
	if n.telegramToken == "" || n.telegramChatID == 0 {
		return false
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.telegramAPIURL, n.telegramToken)
	return n.post(ctx, url, map[string]any{"chat_id": n.telegramChatID, "text": text})
}

func (n *Notifier) post(ctx context.Context, url string, payload map[string]any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if n.log != nil {
			n.log.Warn("monitoring post failed", "url", url, "err", err)
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
