// Package telegram is a send-only posting target on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"marketcast/internal/platform"
)

// defaultHTTPTimeout bounds one Bot API request. The broadcaster's ctx is the
// tighter bound; this is the backstop for a wedged connection.
const defaultHTTPTimeout = 10 * time.Second

type Config struct {
	Token  string
	ChatID int64

	// HTTPClient overrides the transport (tests). Defaults to a client with
	// defaultHTTPTimeout; telebot must never ride http.DefaultClient, which
	// has no timeout.
	HTTPClient *http.Client

	// Offline skips the getMe handshake (tests).
	Offline bool
}

type Client struct {
	bot    *tele.Bot
	chatID int64
	httpc  *http.Client

	// send is swappable so Post's ctx handling is testable without a live bot.
	send func(text string) (string, error)
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  hc,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	c := &Client{bot: b, chatID: cfg.ChatID, httpc: hc}
	c.send = c.sendMessage
	return c, nil
}

func (c *Client) Name() string { return platform.NameTelegram }

// Post sends the text to the configured chat and returns the message ID.
// The send runs in its own goroutine so an expired ctx abandons the wait
// immediately; the HTTP client's timeout bounds the request itself.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := c.send(text)
		done <- result{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.id, r.err
	}
}

func (c *Client) sendMessage(text string) (string, error) {
	msg, err := c.bot.Send(tele.ChatID(c.chatID), text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		return "", mapError(err)
	}
	return strconv.Itoa(msg.ID), nil
}

func mapError(err error) error {
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return fmt.Errorf("%w: retry after %s", platform.ErrRateLimited, time.Duration(flood.RetryAfter)*time.Second)
	}
	if errors.Is(err, tele.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", platform.ErrAuth, err)
	}
	return err
}
