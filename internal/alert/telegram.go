package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"slotbot-go/internal/config"
	"slotbot-go/internal/paper"
)

const (
	defaultAPIBase   = "https://api.telegram.org"
	defaultQueueSize = 128
	pollTimeoutSecs  = 10
	pollRetryDelay   = 5 * time.Second
)

// Telegram sends alerts through the Bot API from a single worker goroutine.
type Telegram struct {
	log      zerolog.Logger
	token    string
	endpoint string
	client   boundClient
	stop     context.CancelFunc
	chatID   atomic.Int64
	queue    chan string
	offset   int

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ Notifier = (*Telegram)(nil)

// boundClient ties every Bot API request to the notifier's lifetime.
type boundClient struct {
	ctx    context.Context
	client *http.Client
}

func (c boundClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// NewTelegram constructs a notifier. A zero chat id is detected from the bot's updates.
// The bot is contacted lazily on the first send or poll.
func NewTelegram(log zerolog.Logger, cfg config.Alerts) *Telegram {
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultAPIBase
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Telegram{
		log:      log,
		token:    cfg.BotToken,
		endpoint: base + "/bot%s/%s",
		client:   boundClient{ctx: ctx, client: &http.Client{Timeout: (pollTimeoutSecs + 5) * time.Second}},
		stop:     cancel,
		queue:    make(chan string, size),
	}
	t.chatID.Store(cfg.ChatID)
	return t
}

// ChatID returns the configured or detected chat, 0 when unknown.
func (t *Telegram) ChatID() int64 { return t.chatID.Load() }

// Send enqueues a message. A full queue drops it.
func (t *Telegram) Send(text string) {
	select {
	case t.queue <- text:
	default:
		t.log.Warn().Msg("alert queue full, dropping message")
	}
}

// TradeOpened announces the entry and the resting limit SELL.
func (t *Telegram) TradeOpened(o Opened) {
	t.Send(FormatOpened(o))
	t.Send(FormatLimitPlaced(o))
}

// LimitHit announces a filled limit SELL.
func (t *Telegram) LimitHit(r paper.CloseResult) { t.Send(FormatLimitHit(r)) }

// SlotSummary announces the results of an expired slot.
func (t *Telegram) SlotSummary(label string, results []paper.CloseResult, equity float64) {
	t.Send(FormatSlotSummary(label, results, equity))
}

// Run delivers queued messages until ctx is done.
func (t *Telegram) Run(ctx context.Context) {
	defer context.AfterFunc(ctx, t.stop)()
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			chat, ok := t.resolveChat()
			if !ok {
				t.log.Warn().Msg("no telegram chat id yet; send /start to the bot")
				continue
			}
			if err := t.sendMessage(chat, text); err != nil {
				t.log.Warn().Err(err).Msg("telegram send failed")
			}
		}
	}
}

// PollCommands long-polls for bot commands and answers them with r until ctx is done.
func (t *Telegram) PollCommands(ctx context.Context, r *Responder) {
	defer context.AfterFunc(ctx, t.stop)()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.pollOnce(ctx, r); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Debug().Err(err).Msg("telegram poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
		}
	}
}

// api returns the Bot API client, connecting on first use. A failed connect is retried on the next call.
func (t *Telegram) api() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	t.log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot connected")
	t.bot = bot
	return bot, nil
}

func (t *Telegram) pollOnce(ctx context.Context, r *Responder) error {
	bot, err := t.api()
	if err != nil {
		return err
	}
	cfg := tgbotapi.NewUpdate(t.offset + 1)
	cfg.Timeout = pollTimeoutSecs
	updates, err := bot.GetUpdates(cfg)
	if err != nil {
		return err
	}
	for _, update := range updates {
		t.offset = update.UpdateID
		msg := update.Message
		if msg == nil || msg.Chat == nil {
			continue
		}
		chat := msg.Chat.ID
		if chat != 0 && t.chatID.CompareAndSwap(0, chat) {
			t.log.Info().Int64("chat_id", chat).Msg("telegram chat id set")
		}
		if chat == 0 || !strings.HasPrefix(msg.Text, "/") {
			continue
		}
		reply := r.Respond(ctx, msg.Text)
		if err := t.sendMessage(chat, reply); err != nil {
			t.log.Warn().Err(err).Msg("telegram command reply failed")
		}
	}
	return nil
}

func (t *Telegram) resolveChat() (int64, bool) {
	if id := t.chatID.Load(); id != 0 {
		return id, true
	}
	bot, err := t.api()
	if err != nil {
		t.log.Warn().Err(err).Msg("telegram chat lookup failed")
		return 0, false
	}
	updates, err := bot.GetUpdates(tgbotapi.UpdateConfig{})
	if err != nil {
		t.log.Warn().Err(err).Msg("telegram chat lookup failed")
		return 0, false
	}
	for i := len(updates) - 1; i >= 0; i-- {
		msg := updates[i].Message
		if msg == nil {
			msg = updates[i].ChannelPost
		}
		if msg == nil || msg.Chat == nil || msg.Chat.ID == 0 {
			continue
		}
		t.chatID.CompareAndSwap(0, msg.Chat.ID)
		t.log.Info().Int64("chat_id", msg.Chat.ID).Msg("telegram chat id detected")
		return t.chatID.Load(), true
	}
	return 0, false
}

func (t *Telegram) sendMessage(chatID int64, text string) error {
	bot, err := t.api()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = bot.Send(msg)
	return err
}
