// Package assist answers scorecard questions through an OpenAI-compatible
// chat completion endpoint.
package assist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"scorecard/api/internal/blob"
	"scorecard/api/internal/cache"
)

const (
	FlowChat         = "chat"
	FlowReprioritize = "reprioritize"
	FlowCompareGoals = "compare-goals"
	FlowAIFlows      = "ai-flows"

	// MaxContextChars bounds the serialized scorecard context.
	MaxContextChars = 50000

	systemPromptName = "system-prompt.md"
	fallbackPrompt   = "You are a strategy analyst helping a leadership team review its scorecard."
)

var (
	ErrUnavailable = errors.New("assistant is not configured")
	ErrUnknownFlow = errors.New("unknown flow")
	ErrInvalid     = errors.New("invalid assistant request")
)

var flowTemplates = map[string]*template.Template{
	FlowChat: template.Must(template.New(FlowChat).Parse(
		`{{.Message}}

Scorecard context (JSON):
{{.Context}}`)),
	FlowReprioritize: template.Must(template.New(FlowReprioritize).Parse(
		`Suggest how to reprioritize the goals below. Rank the goals that need attention first and explain each move in one or two sentences.
{{if .Message}}Constraint from the team: {{.Message}}
{{end}}
Scorecard context (JSON):
{{.Context}}`)),
	FlowCompareGoals: template.Must(template.New(FlowCompareGoals).Parse(
		`Compare the goals {{range $i, $id := .GoalIDs}}{{if $i}}, {{end}}{{$id}}{{end}}. Cover progress by quarter, risks and shared programs.
{{if .Message}}Focus: {{.Message}}
{{end}}
Scorecard context (JSON):
{{.Context}}`)),
	FlowAIFlows: template.Must(template.New(FlowAIFlows).Parse(
		`Review the scorecard and list goals or programs that could benefit from automation or AI-assisted workflows. For each, name the workflow and the expected effect.
{{if .Message}}Additional notes: {{.Message}}
{{end}}
Scorecard context (JSON):
{{.Context}}`)),
}

// Flows returns the supported flow names.
func Flows() []string {
	return []string{FlowChat, FlowReprioritize, FlowCompareGoals, FlowAIFlows}
}

type Request struct {
	Flow    string          `json:"flow"`
	Message string          `json:"message"`
	Context json.RawMessage `json:"context,omitempty"`
	GoalIDs []string        `json:"goalIds,omitempty"`
}

type Response struct {
	Flow   string `json:"flow"`
	Model  string `json:"model"`
	Reply  string `json:"reply"`
	Cached bool   `json:"cached"`
}

// Cache is the subset of cache.RedisCache the assistant needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

type Service struct {
	client    openai.Client
	enabled   bool
	model     string
	maxTokens int64
	timeout   time.Duration
	prompts   blob.Store
	cache     Cache
	logger    *zap.Logger
}

// NewService builds the assistant. Without an API key every call returns
// ErrUnavailable. prompts and responses may be nil.
func NewService(opts Options, prompts blob.Store, responses Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	s := &Service{
		enabled:   opts.APIKey != "",
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		prompts:   prompts,
		cache:     responses,
		logger:    logger.Named("assist"),
	}
	if s.enabled {
		clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
		}
		s.client = openai.NewClient(clientOpts...)
	}
	return s
}

func (s *Service) Enabled() bool {
	return s.enabled
}

type promptData struct {
	Message string
	Context string
	GoalIDs []string
}

// BuildUserMessage renders the flow template with the truncated context.
func BuildUserMessage(req Request) (string, error) {
	tmpl, ok := flowTemplates[req.Flow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, req.Flow)
	}
	message := strings.TrimSpace(req.Message)
	switch req.Flow {
	case FlowChat:
		if message == "" {
			return "", fmt.Errorf("%w: message is required", ErrInvalid)
		}
	case FlowCompareGoals:
		if len(req.GoalIDs) < 2 {
			return "", fmt.Errorf("%w: compare-goals needs at least two goal ids", ErrInvalid)
		}
	}

	var b strings.Builder
	err := tmpl.Execute(&b, promptData{
		Message: message,
		Context: TruncateContext(string(req.Context)),
		GoalIDs: req.GoalIDs,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", req.Flow, err)
	}
	return b.String(), nil
}

// TruncateContext cuts the serialized context to MaxContextChars characters.
func TruncateContext(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "{}"
	}
	runes := []rune(raw)
	if len(runes) <= MaxContextChars {
		return raw
	}
	return string(runes[:MaxContextChars])
}

func (s *Service) systemPrompt(ctx context.Context) string {
	if s.prompts == nil {
		return fallbackPrompt
	}
	data, err := s.prompts.Get(ctx, systemPromptName)
	if err != nil {
		s.logger.Warn("system prompt unavailable, using fallback", zap.Error(err))
		return fallbackPrompt
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		return prompt
	}
	return fallbackPrompt
}

// CacheKey hashes the model and the ordered messages.
func CacheKey(model string, messages ...string) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Chat runs one flow. ctx is handed to the upstream request, so a cancelled
// client request aborts the completion.
func (s *Service) Chat(ctx context.Context, req Request) (Response, error) {
	if !s.enabled {
		return Response{}, ErrUnavailable
	}
	user, err := BuildUserMessage(req)
	if err != nil {
		return Response{}, err
	}
	system := s.systemPrompt(ctx)
	key := CacheKey(s.model, system, user)
	resp := Response{Flow: req.Flow, Model: s.model}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			resp.Reply, resp.Cached = cached, true
			return resp, nil
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("assist cache read failed", zap.Error(err))
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(s.maxTokens),
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, errors.New("chat completion returned no choices")
	}
	resp.Reply = strings.TrimSpace(completion.Choices[0].Message.Content)
	s.logger.Info("chat completion",
		zap.String("flow", req.Flow),
		zap.String("model", s.model),
		zap.Int64("completion_tokens", completion.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(started)),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp.Reply); err != nil {
			s.logger.Warn("assist cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}
