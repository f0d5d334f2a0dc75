// Package backend talks to the messaging backend's REST surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/parley/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var ErrUnexpectedStatus = errors.New("unexpected backend status")

// newMessage is the POST /messages body.
type newMessage struct {
	Channel     string              `json:"channel"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Subject     string              `json:"subject,omitempty"`
	Body        string              `json:"body"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type ChatReply struct {
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

type chatRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// ListMessages accepts either a bare array or {"messages": [...]}.
func (c *Client) ListMessages(ctx context.Context) ([]domain.Message, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/messages")
	if err := check(resp, err, "GET /messages"); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body())
	var msgs []domain.Message
	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Messages []domain.Message `json:"messages"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		msgs = wrapped.Messages
	} else if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// PostMessage persists m and returns the backend's echo. Only the fields the
// backend accepts are sent.
func (c *Client) PostMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	body := newMessage{
		Channel:     m.Channel,
		From:        m.From,
		To:          m.To,
		Subject:     m.Subject,
		Body:        m.Body,
		Attachments: m.Attachments,
	}
	var out domain.Message
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/messages")
	if err := check(resp, err, "POST /messages"); err != nil {
		return domain.Message{}, err
	}
	log.Debug().Str("module", "backend").Str("id", out.ID).Str("channel", out.Channel).Msg("message posted")
	return out, nil
}

func (c *Client) Chat(ctx context.Context, message, systemPrompt string) (ChatReply, error) {
	var out ChatReply
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{Message: message, SystemPrompt: systemPrompt}).
		SetResult(&out).
		Post("/chat")
	if err := check(resp, err, "POST /chat"); err != nil {
		return ChatReply{}, err
	}
	return out, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, op, resp.StatusCode())
	}
	return nil
}
