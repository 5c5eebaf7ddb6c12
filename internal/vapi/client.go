// Package vapi places reminder phone calls through the VAPI REST API.
package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	ErrExternalService = errors.New("external service error")
	ErrNotConfigured   = errors.New("VAPI_API_KEY not set")
)

type Options struct {
	BaseURL       string
	APIKey        string
	AssistantID   string
	PhoneNumberID string
	UserPhone     string
	Timeout       time.Duration
}

type Client struct {
	http *resty.Client
	opts Options
	log  *zap.Logger
}

type customer struct {
	Number string `json:"number"`
}

type assistantOverrides struct {
	VariableValues map[string]string `json:"variableValues"`
}

type callRequest struct {
	AssistantID        string             `json:"assistantId"`
	PhoneNumberID      string             `json:"phoneNumberId"`
	Customer           customer           `json:"customer"`
	AssistantOverrides assistantOverrides `json:"assistantOverrides"`
}

func New(opts Options, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	// one attempt per call; the caller owns the failure
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: client, opts: opts, log: log}
}

// ReminderMessage is what the assistant says when no explicit message is given.
func ReminderMessage(medication string) string {
	return fmt.Sprintf("It's time to take your %s.", medication)
}

// PlaceCall asks VAPI to phone the user about medication. Any non-2xx answer
// or transport error is reported as ErrExternalService.
func (c *Client) PlaceCall(ctx context.Context, medication, message string) error {
	if c.opts.APIKey == "" {
		return fmt.Errorf("%w: %w", ErrExternalService, ErrNotConfigured)
	}
	if message == "" {
		message = ReminderMessage(medication)
	}

	body := callRequest{
		AssistantID:   c.opts.AssistantID,
		PhoneNumberID: c.opts.PhoneNumberID,
		Customer:      customer{Number: c.opts.UserPhone},
		AssistantOverrides: assistantOverrides{
			VariableValues: map[string]string{"message": message},
		},
	}

	c.log.Info("placing reminder call", zap.String("medication", medication))

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.opts.APIKey).
		SetBody(body).
		Post("/call")
	if err != nil {
		c.log.Error("call request failed", zap.String("medication", medication), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrExternalService, err)
	}
	if !resp.IsSuccess() {
		c.log.Error("call was not created",
			zap.String("medication", medication),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("%w: call returned %d", ErrExternalService, resp.StatusCode())
	}

	c.log.Info("reminder call initiated", zap.String("medication", medication), zap.Int("status_code", resp.StatusCode()))
	return nil
}

// TestConnection checks the API key against the assistant listing.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/assistant")
	return err
}

func (c *Client) ListPhoneNumbers(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "/phone-number")
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode phone numbers: %w", ErrExternalService, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.opts.APIKey == "" {
		return nil, ErrNotConfigured
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.opts.APIKey).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
	}

	c.log.Debug("vapi response", zap.String("path", path), zap.Int("status_code", resp.StatusCode()))

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: %s returned %d %s", ErrExternalService, path, resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}
