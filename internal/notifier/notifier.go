// Package notifier batches surfaced deals into chunked Telegram messages
// with inline "favorite/hide/more" keyboards, enforcing a per-user daily
// message cap and a 48h per-product repeat-seen suppression window via
// Redis, grounded in app/notifier/bot.py's send_batch.
package notifier

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dealwatch/scout/internal/metrics"
	"github.com/dealwatch/scout/internal/pipeline"
	"github.com/dealwatch/scout/pkg/logger"
)

const (
	chunkSize          = 10
	userCooldownTTL    = 24 * time.Hour
	msgCountTTL        = 24 * time.Hour
	productCooldownTTL = 48 * time.Hour
	sendPause          = 700 * time.Millisecond
)

// Notifier sends batches of pipeline.Result deals to a chat.
type Notifier struct {
	redis         *redis.Client
	bot           *tgbotapi.BotAPI
	dailyMsgLimit int
	log           *logger.Logger
}

func New(redisClient *redis.Client, bot *tgbotapi.BotAPI, dailyMsgLimit int, log *logger.Logger) *Notifier {
	return &Notifier{redis: redisClient, bot: bot, dailyMsgLimit: dailyMsgLimit, log: log}
}

func productKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// SendBatch filters items through the user cooldown, daily cap, and
// per-product seen-set, then delivers the survivors in chunkSize chunks.
func (n *Notifier) SendBatch(ctx context.Context, chatID int64, items []pipeline.Result) error {
	userKey := fmt.Sprintf("cooldown:user:%d", chatID)
	exists, err := n.redis.Exists(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("check user cooldown: %w", err)
	}
	if exists > 0 {
		return nil
	}

	countKey := fmt.Sprintf("msgcount:%d", chatID)
	current, err := n.redis.Get(ctx, countKey).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read msg count: %w", err)
	}
	if current >= n.dailyMsgLimit {
		n.redis.SetEx(ctx, userKey, 1, userCooldownTTL)
		return nil
	}
	remaining := n.dailyMsgLimit - current

	prodKey := fmt.Sprintf("cooldown:product:%d", chatID)
	toSend := make([]pipeline.Result, 0, len(items))
	for _, it := range items {
		pid := productKey(it.URL)
		isMember, err := n.redis.SIsMember(ctx, prodKey, pid).Result()
		if err != nil {
			return fmt.Errorf("check product seen: %w", err)
		}
		if isMember {
			continue
		}
		n.redis.SAdd(ctx, prodKey, pid)
		n.redis.Expire(ctx, prodKey, productCooldownTTL)
		toSend = append(toSend, it)
		if len(toSend) >= remaining {
			break
		}
	}
	if len(toSend) == 0 {
		return nil
	}

	n.redis.IncrBy(ctx, countKey, int64(len(toSend)))
	n.redis.Expire(ctx, countKey, msgCountTTL)
	if current+len(toSend) >= n.dailyMsgLimit {
		n.redis.SetEx(ctx, userKey, 1, userCooldownTTL)
	}

	for i := 0; i < len(toSend); i += chunkSize {
		end := i + chunkSize
		if end > len(toSend) {
			end = len(toSend)
		}
		chunk := toSend[i:end]
		if err := n.sendChunk(chatID, chunk, i); err != nil {
			if n.log != nil {
				n.log.Warn("send chunk failed", "chat_id", chatID, "err", err)
			}
			continue
		}
		metrics.NotificationsSentTotal.Add(float64(len(chunk)))
		select {
		case <-time.After(sendPause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *Notifier) sendChunk(chatID int64, chunk []pipeline.Result, offset int) error {
	var lines []string
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(chunk))
	for idx, it := range chunk {
		line := fmt.Sprintf("%d. %s\nЦена: %d ₽", offset+idx+1, it.Title, it.Price)
		if it.DiscountPct != nil && *it.DiscountPct > 0 {
			line += fmt.Sprintf(" (−%.0f%%)", *it.DiscountPct)
		}
		line += fmt.Sprintf("\nИсточник: %s\n%s\n", it.Source, it.URL)
		lines = append(lines, line)

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("★", fmt.Sprintf("fav:%d", idx)),
			tgbotapi.NewInlineKeyboardButtonData("Скрыть", fmt.Sprintf("hide:%d", idx)),
			tgbotapi.NewInlineKeyboardButtonData("Ещё −10%", fmt.Sprintf("more:%d", idx)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.Join(lines, "\n"))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	msg.DisableWebPagePreview = false

	if n.bot == nil {
		return nil
	}
	_, err := n.bot.Send(msg)
	return err
}
