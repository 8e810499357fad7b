// Package generator drafts strategy programs from plain-language
// descriptions using an LLM provider.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/llm"
	"github.com/newthinker/prism/internal/strategy"
)

// MinDescriptionLen is the shortest description worth sending to a model.
const MinDescriptionLen = 10

// Result is a generated program that passed validation.
type Result struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Provider    string `json:"provider"`
}

// reply is the JSON object the model is instructed to return.
type reply struct {
	Success     bool   `json:"success"`
	Code        string `json:"code"`
	Error       string `json:"error"`
	Explanation string `json:"explanation"`
}

// Recorder counts generation outcomes per provider.
type Recorder interface {
	RecordGeneration(provider, outcome string)
}

// Generator turns descriptions into strategy programs.
type Generator struct {
	llm      llm.Provider
	recorder Recorder
	logger   *zap.Logger
}

// New creates a generator. provider may be nil, in which case every call
// fails with ErrConfigMissing.
func New(provider llm.Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: provider, logger: logger}
}

// SetRecorder sets the metrics sink.
func (g *Generator) SetRecorder(r Recorder) {
	g.recorder = r
}

// Available reports whether an LLM provider is configured.
func (g *Generator) Available() bool {
	return g.llm != nil
}

// Generate asks the model for a program implementing description. The code
// is validated before it is returned.
func (g *Generator) Generate(ctx context.Context, description string) (result *Result, err error) {
	if g.llm == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "no LLM provider configured")
	}
	description = strings.TrimSpace(description)
	if len(description) < MinDescriptionLen {
		return nil, core.Errorf(core.ErrValidation,
			"describe the strategy in at least %d characters", MinDescriptionLen)
	}
	defer func() { g.record(err) }()

	resp, err := g.llm.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: buildPrompt(description)}},
		MaxTokens:    llm.DefaultMaxTokens,
		Temperature:  0.3,
		JSONMode:     true,
	})
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, llm.WrapError(err)
	}

	g.logger.Debug("generation reply",
		zap.String("provider", g.llm.Name()),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)

	r, err := parseReply(resp.Content)
	if err != nil {
		return nil, err
	}

	program := strategy.Program{Name: "generated", Source: r.Code}
	if err := strategy.Validate(program); err != nil {
		g.logger.Info("generated program rejected", zap.String("provider", g.llm.Name()), zap.Error(err))
		return nil, err
	}

	explanation := r.Explanation
	if explanation == "" {
		explanation = "Strategy generated."
	}
	return &Result{Code: r.Code, Explanation: explanation, Provider: g.llm.Name()}, nil
}

func (g *Generator) record(err error) {
	if g.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = core.AsError(err).Code
	}
	g.recorder.RecordGeneration(g.llm.Name(), outcome)
}

func parseReply(content string) (*reply, error) {
	body := extractJSON(content)
	if body == "" {
		return nil, core.Errorf(core.ErrGenerationFailed, "model reply is not JSON")
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, core.Errorf(core.ErrGenerationFailed, "malformed model reply: %v", err)
	}
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "model declined to generate a strategy, try a more specific description"
		}
		return nil, core.Errorf(core.ErrGenerationFailed, "%s", msg)
	}

	r.Code = stripFences(r.Code)
	if r.Code == "" {
		return nil, core.Errorf(core.ErrGenerationFailed, "model reply has no code")
	}
	return &r, nil
}

// extractJSON returns the outermost {...} span of s, tolerating code fences
// and prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// stripFences removes a surrounding ``` block, with or without a language tag.
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	code = strings.TrimPrefix(code, "```")
	if nl := strings.IndexByte(code, '\n'); nl >= 0 {
		code = code[nl+1:]
	} else {
		code = ""
	}
	code = strings.TrimSuffix(strings.TrimSpace(code), "```")
	return strings.TrimSpace(code)
}

func buildPrompt(description string) string {
	var sb strings.Builder
	sb.WriteString("## Strategy description\n")
	sb.WriteString(description)
	sb.WriteString("\n\n## Task\n")
	sb.WriteString("Write the strategy program. If the description cannot be implemented with the data and helpers above, ")
	sb.WriteString("or is too vague, set success to false and explain why in error.\n")
	fmt.Fprintf(&sb, "Imports are limited to: %s.\n", strings.Join(strategy.AllowedModules(), ", "))
	return sb.String()
}

const systemPrompt = `You are a quantitative developer who writes trading strategies in the Tengo scripting language.

Always respond with valid JSON:
{
  "success": true or false,
  "code": "program source, or empty",
  "error": "why no program was produced, or empty",
  "explanation": "one or two sentences describing the strategy"
}

A program must follow this shape exactly:

series := import("series")

Strategy := func(data) {
	return {
		stop_loss: 0.05,
		take_profit: 0.10,
		generate_signals: func() {
			signals := series.zeros(data.len)
			up := series.crossover(data.MA5, data.MA20)
			for i := 0; i < data.len; i++ {
				if up[i] { signals[i] = 1 }
			}
			return signals
		}
	}
}

Rules:
- generate_signals returns an array with exactly data.len entries: 1 = BUY, -1 = SELL, 0 = HOLD.
- stop_loss and take_profit are optional fractions of the entry price (0.02 means 2%); omit them or use 0 to disable.
- Map literals must not end with a trailing comma.
- Never read bar i+1 or later when deciding the signal for bar i.
- Identifiers must not start with "__".

data provides, as arrays of data.len floats:
- open, high, low, close, volume
- MA5, MA20, MA60: simple moving averages
- RSI: 14-period relative strength index
- MACD, MACD_Signal, MACD_Hist: MACD(12, 26, 9)
- BB_Upper, BB_Middle, BB_Lower: Bollinger Bands (20 periods, 2 std dev)
Indicator values are NaN during warm-up; comparisons with NaN are false.
data.len is the bar count, data.symbol the ticker, data.timestamp Unix seconds per bar.

series helpers (windows keep the input length, NaN-padded):
zeros(n), full(n, v), shift(a, k), sma(a, n), ema(a, n), rolling_max(a, n), rolling_min(a, n),
rolling_std(a, n), crossover(a, b), crossunder(a, b) where b is an array or a number, nan(), is_nan(x).`
