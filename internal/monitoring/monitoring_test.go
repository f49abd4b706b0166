package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyDoesNotFallBackToTelegramBeforeThreeFailures(t *testing.T) {
	var slackHits, telegramHits int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&slackHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slack.Close()
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&telegramHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer telegram.Close()

	n := New(slack.URL, "token123", 999, nil)
	n.telegramAPIURL = telegram.URL

	n.Notify(context.Background(), "alert 1")
	n.Notify(context.Background(), "alert 2")

	assert.Equal(t, int32(2), atomic.LoadInt32(&slackHits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&telegramHits))
	assert.Equal(t, 2, n.slackFailureCount)
}

func TestNotifyFallsBackToTelegramOnThirdConsecutiveSlackFailure(t *testing.T) {
	var slackHits, telegramHits int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&slackHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slack.Close()
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&telegramHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer telegram.Close()

	n := New(slack.URL, "token123", 999, nil)
	n.telegramAPIURL = telegram.URL

	n.Notify(context.Background(), "alert 1")
	n.Notify(context.Background(), "alert 2")
	assert.Equal(t, int32(0), atomic.LoadInt32(&telegramHits))

	n.Notify(context.Background(), "alert 3")
	assert.Equal(t, int32(1), atomic.LoadInt32(&telegramHits), "third consecutive slack failure triggers the telegram fallback")
	assert.Equal(t, 0, n.slackFailureCount, "counter resets once the fallback fires")

	n.Notify(context.Background(), "alert 4")
	assert.Equal(t, int32(1), atomic.LoadInt32(&telegramHits), "fourth failure is only the first of a new streak, no fallback yet")
	assert.Equal(t, int32(4), atomic.LoadInt32(&slackHits))
}

func TestNotifySlackSuccessResetsFailureCounter(t *testing.T) {
	var slackCalls int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&slackCalls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	var telegramHits int32
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&telegramHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer telegram.Close()

	n := New(slack.URL, "token123", 999, nil)
	n.telegramAPIURL = telegram.URL

	n.Notify(context.Background(), "alert 1")
	n.Notify(context.Background(), "alert 2")
	n.Notify(context.Background(), "alert 3")

	assert.Equal(t, 0, n.slackFailureCount)
	assert.Equal(t, int32(0), atomic.LoadInt32(&telegramHits))
}

func TestNotifyNilReceiverIsNoop(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "alert")
	})
}
