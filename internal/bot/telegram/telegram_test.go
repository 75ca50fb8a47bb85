package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"desk-assistant-go/internal/bot"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"exact", "abcd", 4, []string{"abcd"}},
		{"split", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"multibyte", "ééééé", 2, []string{"éé", "éé", "é"}},
		{"empty", "", 4, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitText(tt.input, tt.n)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("splitText(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	from := &tgbotapi.User{ID: 7}
	chat := &tgbotapi.Chat{ID: 99}

	tests := []struct {
		name   string
		msg    *tgbotapi.Message
		ok     bool
		kind   bot.FileKind
		fileID string
		text   string
	}{
		{name: "no message", msg: nil},
		{name: "text", msg: &tgbotapi.Message{From: from, Chat: chat, Text: "/help"}, ok: true, text: "/help"},
		{
			name: "photo uses largest size",
			msg: &tgbotapi.Message{From: from, Chat: chat, Caption: "what is this", Photo: []tgbotapi.PhotoSize{
				{FileID: "small"}, {FileID: "large"},
			}},
			ok: true, kind: bot.FilePhoto, fileID: "large", text: "what is this",
		},
		{
			name: "document",
			msg:  &tgbotapi.Message{From: from, Chat: chat, Document: &tgbotapi.Document{FileID: "doc", FileName: "a.pdf"}},
			ok:   true, kind: bot.FileDocument, fileID: "doc",
		},
		{name: "sticker only", msg: &tgbotapi.Message{From: from, Chat: chat}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := convert(tgbotapi.Update{Message: tt.msg})
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if u.ChatID != 99 || u.UserID != 7 {
				t.Errorf("ids = %d/%d", u.ChatID, u.UserID)
			}
			if u.Text != tt.text {
				t.Errorf("text = %q, want %q", u.Text, tt.text)
			}
			if tt.fileID == "" {
				if u.File != nil {
					t.Errorf("unexpected file %+v", u.File)
				}
				return
			}
			if u.File == nil || u.File.ID != tt.fileID || u.File.Kind != tt.kind {
				t.Errorf("file = %+v", u.File)
			}
		})
	}
}
