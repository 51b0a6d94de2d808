package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

// LogLevel controls how much detail the logging middleware records.
type LogLevel int

const (
	// LogLevelMinimal logs model and duration only.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds message count and token usage.
	LogLevelStandard

	// LogLevelVerbose adds truncated trigger and response content.
	LogLevelVerbose
)

const truncateLen = 500

// NewLoggingMiddleware logs every dispatch before and after the call. Calls
// are logged at Debug and failures at Warn, since the dispatcher itself
// reports the final outcome.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) dispatch.Middleware {
	return func(next dispatch.SendFunc) dispatch.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			logger.DebugContext(ctx, "LLM send", buildRequestAttrs(request, level)...)

			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			if err != nil {
				logger.WarnContext(ctx, "LLM send failed",
					slog.String("model", request.Model),
					slog.Duration("duration", elapsed),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.DebugContext(ctx, "LLM send completed", buildResponseAttrs(request, response, elapsed, level)...)
			return response, nil
		}
	}
}

func buildRequestAttrs(request ai.ChatRequest, level LogLevel) []any {
	attrs := []any{
		slog.String("model", request.Model),
	}

	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("message_count", len(request.Messages)),
			slog.Bool("structured", len(request.Format) > 0),
		)
	}

	if level >= LogLevelVerbose && len(request.Messages) > 0 {
		last := request.Messages[len(request.Messages)-1]
		attrs = append(attrs,
			slog.String("trigger_role", string(last.Role)),
			slog.String("trigger_content", utils.TruncateString(last.Content, truncateLen)),
		)
	}

	return attrs
}

func buildResponseAttrs(request ai.ChatRequest, response *ai.ChatResponse, elapsed time.Duration, level LogLevel) []any {
	model := request.Model
	if response.Model != "" {
		model = response.Model
	}
	attrs := []any{
		slog.String("model", model),
		slog.Duration("duration", elapsed),
	}

	if level >= LogLevelStandard && response.Usage != nil {
		attrs = append(attrs,
			slog.Int("prompt_tokens", response.Usage.PromptTokens),
			slog.Int("completion_tokens", response.Usage.CompletionTokens),
			slog.Int("total_tokens", response.Usage.TotalTokens),
		)
	}

	if level >= LogLevelStandard && response.FinishReason != "" {
		attrs = append(attrs, slog.String("finish_reason", response.FinishReason))
	}

	if level >= LogLevelVerbose && response.Content != "" {
		attrs = append(attrs,
			slog.String("response_content", utils.TruncateString(response.Content, truncateLen)),
		)
	}

	return attrs
}
