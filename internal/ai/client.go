// Package ai talks to a generative model through an OpenAI compatible chat
// completion endpoint. Images and PDF previews are sent inline as data URLs.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/media"
)

var (
	// ErrNoAPIKey is returned by New when no key is configured.
	ErrNoAPIKey = errors.New("ai api key not configured")
	// ErrUnsupportedFile is returned for attachments that are neither images nor PDFs.
	ErrUnsupportedFile = errors.New("unsupported attachment")
	// ErrEmptyResponse is returned when the model answers without any choice.
	ErrEmptyResponse = errors.New("model returned no answer")
)

const defaultFilePrompt = "Describe this file."

// Role of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of earlier conversation.
type Message struct {
	Role Role
	Text string
}

// Request is a single generation call.
type Request struct {
	Prompt            string
	SystemInstruction string
	History           []Message
	FilePath          string
}

// PagePreviewer renders the first page of a PDF to an image file.
type PagePreviewer interface {
	FirstPage(pdfPath, outDir string) (string, error)
}

// Client generates answers.
type Client struct {
	api       *openai.Client
	model     string
	system    string
	preview   PagePreviewer
	inspector *media.Inspector
	workDir   string
	log       logrus.FieldLogger
}

// New returns a client for cfg. preview may be nil, in which case PDF
// attachments are rejected.
func New(cfg config.AIConfig, preview PagePreviewer, workDir string, log logrus.FieldLogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		system:    cfg.SystemInstruction,
		preview:   preview,
		inspector: media.NewInspector(log),
		workDir:   workDir,
		log:       log,
	}, nil
}

// Generate sends the history, the optional attachment and the prompt, and
// returns the text of the first choice.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	system := req.SystemInstruction
	if system == "" {
		system = c.system
	}

	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if h.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Text})
	}

	user, err := c.userMessage(req)
	if err != nil {
		return "", err
	}
	msgs = append(msgs, user)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.log.WithFields(logrus.Fields{
		"model":   c.model,
		"history": len(req.History),
		"file":    req.FilePath != "",
		"tokens":  resp.Usage.TotalTokens,
	}).Debug("model answered")
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) userMessage(req Request) (openai.ChatCompletionMessage, error) {
	if req.FilePath == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}, nil
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultFilePrompt
	}

	kind, err := media.Detect(req.FilePath)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}

	imagePath := req.FilePath
	switch kind {
	case media.KindImage:
		if info, err := c.inspector.Inspect(req.FilePath); err == nil && info.Summary() != "" {
			prompt += "\n(Photo metadata: " + info.Summary() + ")"
		}
	case media.KindPDF:
		if c.preview == nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("%w: pdf preview unavailable", ErrUnsupportedFile)
		}
		page, err := c.preview.FirstPage(req.FilePath, c.workDir)
		if err != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("preview pdf: %w", err)
		}
		defer os.Remove(page)
		imagePath = page
		prompt += "\n(The image is the first page of the attached PDF.)"
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, req.FilePath)
	}

	url, err := dataURL(imagePath)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    url,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}, nil
}

func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
