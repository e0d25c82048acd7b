// Package openai provides an LLM provider backed by the OpenAI API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
)

const providerName = "openai"

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	logger *slog.Logger

	mu    sync.Mutex
	usage llm.Usage
}

var _ llm.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for stream assembly warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, logger: logger}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, provider.Wrap(provider.KindValidation, providerName, "complete", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapErr("complete", err)
	}
	if len(resp.Choices) == 0 {
		return nil, provider.Errorf(provider.KindGeneric, providerName, "complete", "empty choices in response")
	}

	usage := llm.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	p.addUsage(usage)

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content:      choice.Message.Content,
		Usage:        usage,
		FinishReason: llm.ParseFinishReason(choice.FinishReason),
		Model:        resp.Model,
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// StreamComplete implements llm.Provider.
func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, provider.Wrap(provider.KindValidation, providerName, "stream", err)
	}
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{
		IncludeUsage: param.NewOpt(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, mapErr("stream", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		// in-flight tool calls keyed by index
		accum := map[int]*llm.ToolCall{}

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				p.addUsage(llm.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				})
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			delta := choice.Delta

			out := llm.Chunk{
				ContentDelta: delta.Content,
				FinishReason: llm.ParseFinishReason(choice.FinishReason),
			}

			for _, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				existing, ok := accum[idx]
				if !ok {
					existing = &llm.ToolCall{}
					accum[idx] = existing
				}
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Name = tc.Function.Name
				}
				existing.Arguments += tc.Function.Arguments
			}

			// The final chunk carries the fully assembled list.
			if out.FinishReason != "" && len(accum) > 0 {
				out.ToolCalls = p.assemble(accum)
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishError, ContentDelta: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// assemble orders the accumulated tool calls by index and sanitizes their
// argument buffers. A buffer that is not valid JSON is replaced with an
// empty object so the dispatcher still receives a parseable call.
func (p *Provider) assemble(accum map[int]*llm.ToolCall) []llm.ToolCall {
	calls := make([]llm.ToolCall, 0, len(accum))
	for i := 0; i < len(accum); i++ {
		tc, ok := accum[i]
		if !ok {
			continue
		}
		if tc.Arguments == "" {
			tc.Arguments = "{}"
		} else if !json.Valid([]byte(tc.Arguments)) {
			p.logger.Warn("discarding malformed tool arguments",
				"tool", tc.Name, "bytes", len(tc.Arguments))
			tc.Arguments = "{}"
		}
		calls = append(calls, *tc)
	}
	return calls
}

// TokenUsage implements llm.Provider.
func (p *Provider) TokenUsage() llm.Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

func (p *Provider) addUsage(u llm.Usage) {
	p.mu.Lock()
	p.usage.Add(u)
	p.mu.Unlock()
}

// mapErr converts an OpenAI SDK error into the shared provider taxonomy.
func mapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Wrap(provider.KindTimeout, providerName, op, err)
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return provider.Wrap(provider.KindRateLimit, providerName, op, err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return provider.Wrap(provider.KindAuth, providerName, op, err)
		case strings.Contains(apiErr.Code, "context_length"),
			strings.Contains(apiErr.Message, "maximum context length"):
			return provider.Wrap(provider.KindContextLength, providerName, op, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return provider.Wrap(provider.KindTimeout, providerName, op, err)
		}
	}
	return provider.Wrap(provider.KindGeneric, providerName, op, err)
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}

	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil

	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil

	case llm.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	case llm.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}
