package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretTokenHeader carries the webhook secret set with SetWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Telegram implements Messenger on top of the Bot API.
type Telegram struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Messenger = (*Telegram)(nil)

func NewTelegram(token string, log *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("authorized on telegram", zap.String("bot", api.Self.UserName))

	return &Telegram{
		api:        api,
		httpClient: &http.Client{Timeout: time.Minute},
		logger:     log,
	}, nil
}

func (t *Telegram) Send(_ context.Context, chatID int64, reply Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Keyboard) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Keyboard))
		for _, label := range reply.Keyboard {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.OneTimeKeyboard = true
		msg.ReplyMarkup = keyboard
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}

	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) Download(ctx context.Context, doc Document) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResumeSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > MaxResumeSize {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

// Poll receives updates by long polling until ctx is done. Updates are handed
// to handle one at a time.
func (t *Telegram) Poll(ctx context.Context, timeout int, handle func(context.Context, Update)) error {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	updates := t.api.GetUpdatesChan(cfg)
	defer t.api.StopReceivingUpdates()

	t.logger.Info("polling for updates", zap.Int("timeout", timeout))
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			if u, ok := FromTelegram(raw); ok {
				handle(ctx, u)
			}
		}
	}
}

// SetWebhook registers url with Telegram. Deliveries carry secret in SecretTokenHeader.
func (t *Telegram) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)

	resp, err := t.api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	t.logger.Info("webhook registered", zap.String("url", url))
	return nil
}

// FromTelegram converts a Bot API update. Only messages are supported.
func FromTelegram(raw tgbotapi.Update) (Update, bool) {
	msg := raw.Message
	if msg == nil || msg.Chat == nil {
		return Update{}, false
	}

	u := Update{
		ID:     raw.UpdateID,
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}
	if msg.Text == "" {
		u.Text = msg.Caption
	}
	if msg.From != nil {
		u.Name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if msg.Document != nil {
		u.Document = &Document{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			MIMEType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
		}
	}
	return u, true
}
