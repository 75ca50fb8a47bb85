// Package telegram adapts the Telegram Bot API to bot.Transport.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/bot"
)

// maxMessageLen is the Telegram limit for one text message, in characters.
const maxMessageLen = 4096

// Transport talks to Telegram with long polling.
type Transport struct {
	api    *tgbotapi.BotAPI
	client *http.Client
	log    logrus.FieldLogger
}

// New connects with token. It fails when the token is rejected.
func New(token string, log logrus.FieldLogger) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	log.WithField("username", api.Self.UserName).Info("authorized on telegram")
	return &Transport{api: api, client: &http.Client{}, log: log}, nil
}

// Updates converts incoming messages until ctx is cancelled.
func (t *Transport) Updates(ctx context.Context) (<-chan bot.Update, error) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	in := t.api.GetUpdatesChan(cfg)

	out := make(chan bot.Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-in:
				if !ok {
					return
				}
				u, ok := convert(upd)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// convert keeps messages with text, a photo or a document.
func convert(upd tgbotapi.Update) (bot.Update, bool) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return bot.Update{}, false
	}
	u := bot.Update{ChatID: msg.Chat.ID, UserID: msg.From.ID, Text: msg.Text}

	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		largest := msg.Photo[len(msg.Photo)-1]
		u.File = &bot.File{ID: largest.FileID, Kind: bot.FilePhoto}
		u.Text = msg.Caption
	case msg.Document != nil:
		u.File = &bot.File{ID: msg.Document.FileID, Name: msg.Document.FileName, Kind: bot.FileDocument}
		u.Text = msg.Caption
	case msg.Text == "":
		return bot.Update{}, false
	}
	return u, true
}

// SendText sends text, split into several messages when it is too long.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitText(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// SendFile uploads the file at path as a document.
func (t *Transport) SendFile(ctx context.Context, chatID int64, filePath, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = caption
	if _, err := t.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

// Download fetches the file into dir, keeping the name Telegram stores it
// under.
func (t *Transport) Download(ctx context.Context, fileID, dir string) (string, error) {
	f, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Link(t.api.Token), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	name := path.Base(f.FilePath)
	if name == "." || name == "/" {
		name = fileID
	}
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}

	t.log.WithFields(logrus.Fields{"file_id": fileID, "path": dst}).Debug("file downloaded")
	return dst, nil
}

// splitText cuts s into pieces of at most n runes, never inside a rune.
func splitText(s string, n int) []string {
	if s == "" {
		return []string{""}
	}
	var parts []string
	for utf8.RuneCountInString(s) > n {
		cut, count := 0, 0
		for i := range s {
			if count == n {
				cut = i
				break
			}
			count++
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}
