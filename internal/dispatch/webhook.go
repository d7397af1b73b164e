package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/carlmjohnson/requests"

	"tubewatch/internal/render"
	"tubewatch/internal/retry"
)

// WebhookData is the Data payload of a webhook rule.
type WebhookData struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// webhook calls an already rendered target.
func (d *Dispatcher) webhook(ctx context.Context, target string, data WebhookData, vars render.Vars) (string, error) {
	method := strings.ToUpper(data.Method)
	if method == "" {
		method = http.MethodPost
	}
	body := render.String(data.Body, vars, render.JSON)

	var out string
	err := retry.Do(ctx, d.policy, func(ctx context.Context) error {
		var respBody, errBody string
		status := 0

		rb := requests.
			URL(target).
			Method(method).
			Client(d.client).
			AddValidator(func(res *http.Response) error {
				status = res.StatusCode
				return nil
			}).
			AddValidator(requests.ValidatorHandler(requests.DefaultValidator, requests.ToString(&errBody))).
			ToString(&respBody)
		for k, v := range data.Headers {
			rb.Header(k, render.String(v, vars, render.Plain))
		}
		if body != "" {
			rb.BodyBytes([]byte(body))
			if !hasHeader(data.Headers, "Content-Type") {
				rb.ContentType("application/json")
			}
		}

		err := rb.Fetch(ctx)
		switch {
		case err == nil:
			out = respBody
			return nil
		case errors.Is(err, requests.ErrInvalidHandled):
			return retry.Permanent(&StatusError{Code: status, Body: errBody})
		case status != 0:
			return retry.Permanent(fmt.Errorf("read webhook response: %w", err))
		default:
			return fmt.Errorf("webhook request: %w", err)
		}
	})
	return out, err
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: target: %v", ErrInvalidRule, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: target must be an http(s) url", ErrInvalidRule)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: target has no host", ErrInvalidRule)
	}
	return nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
