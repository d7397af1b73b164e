// Package dispatch executes post-processor rules for newly discovered videos
// and records the outcome in the video state.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tubewatch/internal/model"
	"tubewatch/internal/render"
	"tubewatch/internal/retry"
	"tubewatch/internal/storage"
)

// Errors returned by Run.
var (
	ErrAlreadyProcessed = errors.New("video already processed")
	ErrUnknownRuleType  = errors.New("unknown processor type")
	ErrInvalidRule      = errors.New("invalid rule")
)

// StatusError is returned when a webhook answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

// ProcessError is returned when a process rule exits unsuccessfully.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Store is the part of the storage layer the dispatcher needs.
type Store interface {
	GetVideoState(ctx context.Context, videoID string) (model.VideoState, error)
	SetVideoState(ctx context.Context, videoID string, state model.VideoState) error
}

// Messenger delivers telegram rule messages.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Subject is the video a rule runs for.
type Subject struct {
	Video    model.Video
	Playlist model.Playlist
}

// Dispatcher runs rules. It does not log and does not write activity entries.
type Dispatcher struct {
	store     Store
	client    *http.Client
	messenger Messenger
	policy    retry.Policy
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for webhook calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithMessenger enables telegram rules.
func WithMessenger(m Messenger) Option {
	return func(d *Dispatcher) { d.messenger = m }
}

// WithRetry sets the retry policy for webhook transport failures.
func WithRetry(p retry.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// New creates a Dispatcher.
func New(store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		policy: retry.DefaultPolicy,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run executes rule for subject and returns the rule output. A nil subject
// runs the rule against sample values without touching any video state.
func (d *Dispatcher) Run(ctx context.Context, rule model.Rule, subject *Subject) (string, error) {
	dryRun := subject == nil
	if dryRun {
		v, p := render.Sample()
		subject = &Subject{Video: v, Playlist: p}
	}
	videoID := subject.Video.VideoID

	if !dryRun {
		state, err := d.store.GetVideoState(ctx, videoID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return "", fmt.Errorf("get video state: %w", err)
		case state == model.StatePresent:
			return "", fmt.Errorf("video %s: %w", videoID, ErrAlreadyProcessed)
		}
	}

	vars := render.VarsFor(subject.Video, subject.Playlist)

	switch rule.Type {
	case model.RuleWebhook:
		var data WebhookData
		if err := decode(rule.Data, &data); err != nil {
			return "", err
		}
		target := render.String(rule.Target, vars, render.URL)
		if err := validateURL(target); err != nil {
			return "", err
		}
		return d.tracked(ctx, dryRun, videoID, func() (string, error) {
			return d.webhook(ctx, target, data, vars)
		})
	case model.RuleProcess:
		var data ProcessData
		if err := decode(rule.Data, &data); err != nil {
			return "", err
		}
		return d.tracked(ctx, dryRun, videoID, func() (string, error) {
			return runProcess(ctx, rule.Target, data, vars)
		})
	case model.RuleTelegram:
		var data TelegramData
		if err := decode(rule.Data, &data); err != nil {
			return "", err
		}
		return d.telegram(ctx, rule.Target, data, vars)
	default:
		return "", fmt.Errorf("%q: %w", rule.Type, ErrUnknownRuleType)
	}
}

// tracked wraps fn with the pending, downloading and error transitions.
func (d *Dispatcher) tracked(ctx context.Context, dryRun bool, videoID string, fn func() (string, error)) (string, error) {
	if dryRun {
		return fn()
	}
	if err := d.setState(ctx, videoID, model.StatePending); err != nil {
		return "", err
	}
	out, runErr := fn()
	next := model.StateDownloading
	if runErr != nil {
		next = model.StateError
	}
	if err := d.setState(ctx, videoID, next); err != nil {
		return out, errors.Join(runErr, err)
	}
	return out, runErr
}

func (d *Dispatcher) setState(ctx context.Context, videoID string, state model.VideoState) error {
	err := d.store.SetVideoState(ctx, videoID, state)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("set video state %s: %w", state, err)
	}
	return nil
}

// Validate checks that a rule can be executed.
func Validate(rule model.Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if rule.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRule)
	}
	switch rule.Type {
	case model.RuleWebhook:
		var data WebhookData
		if err := decode(rule.Data, &data); err != nil {
			return err
		}
		return validateURL(render.String(rule.Target, render.VarsFor(render.Sample()), render.URL))
	case model.RuleProcess:
		var data ProcessData
		return decode(rule.Data, &data)
	case model.RuleTelegram:
		var data TelegramData
		if err := decode(rule.Data, &data); err != nil {
			return err
		}
		_, err := parseChatID(rule.Target)
		return err
	default:
		return fmt.Errorf("%q: %w", rule.Type, ErrUnknownRuleType)
	}
}

func decode(raw string, v any) error {
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrInvalidRule, err)
	}
	return nil
}
