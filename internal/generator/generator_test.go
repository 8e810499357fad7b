package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/llm"
)

const validProgram = `series := import("series")

Strategy := func(data) {
	return {
		generate_signals: func() {
			return series.zeros(data.len)
		}
	}
}`

type fakeProvider struct {
	content string
	err     error
	last    llm.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}

func replyJSON(t *testing.T, r reply) string {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return string(data)
}

func TestGenerate(t *testing.T) {
	p := &fakeProvider{content: replyJSON(t, reply{Success: true, Code: validProgram, Explanation: "Holds cash."})}
	g := New(p, nil)

	res, err := g.Generate(context.Background(), "buy when the 5 day average crosses the 20 day one")
	require.NoError(t, err)
	assert.Equal(t, validProgram, res.Code)
	assert.Equal(t, "Holds cash.", res.Explanation)
	assert.Equal(t, "fake", res.Provider)

	assert.True(t, p.last.JSONMode)
	assert.Contains(t, p.last.Messages[0].Content, "crosses the 20 day one")
	assert.Contains(t, p.last.SystemPrompt, "generate_signals")
}

func TestGenerate_FencedReply(t *testing.T) {
	body := replyJSON(t, reply{Success: true, Code: "```tengo\n" + validProgram + "\n```"})
	g := New(&fakeProvider{content: "Here you go:\n```json\n" + body + "\n```"}, nil)

	res, err := g.Generate(context.Background(), "hold cash forever and ever")
	require.NoError(t, err)
	assert.Equal(t, validProgram, res.Code)
	assert.Equal(t, "Strategy generated.", res.Explanation)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		desc     string
		want     *core.Error
	}{
		{"no provider", nil, "a long enough description", core.ErrConfigMissing},
		{"too short", &fakeProvider{}, "buy", core.ErrValidation},
		{"declined", &fakeProvider{content: `{"success": false, "error": "needs order book data"}`}, "trade on order book imbalance", core.ErrGenerationFailed},
		{"not json", &fakeProvider{content: "I cannot help with that."}, "a long enough description", core.ErrGenerationFailed},
		{"malformed json", &fakeProvider{content: `{"success": tru}`}, "a long enough description", core.ErrGenerationFailed},
		{"empty code", &fakeProvider{content: `{"success": true, "code": ""}`}, "a long enough description", core.ErrGenerationFailed},
		{"invalid code", &fakeProvider{content: `{"success": true, "code": "x := import(\"os\")"}`}, "a long enough description", core.ErrValidation},
		{"provider failure", &fakeProvider{err: errors.New("connection refused")}, "a long enough description", core.ErrLLMFailed},
		{"provider timeout", &fakeProvider{err: core.WrapError(core.ErrLLMTimeout, context.DeadlineExceeded)}, "a long enough description", core.ErrLLMTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.provider, nil)
			_, err := g.Generate(context.Background(), tt.desc)
			assert.True(t, errors.Is(err, tt.want), "expected %s, got %v", tt.want.Code, err)
		})
	}
}

func TestGenerate_DeclinedMessage(t *testing.T) {
	g := New(&fakeProvider{content: `{"success": false, "error": "needs order book data"}`}, nil)
	_, err := g.Generate(context.Background(), "trade on order book imbalance")
	require.Error(t, err)
	assert.Equal(t, "needs order book data", core.AsError(err).Detail())
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"x := 1":                "x := 1",
		"```\nx := 1\n```":      "x := 1",
		"```tengo\nx := 1\n```": "x := 1",
		"  ```go\nx := 1```  ":  "x := 1",
		"```":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripFences(in), in)
	}
}

func TestAvailable(t *testing.T) {
	assert.False(t, New(nil, nil).Available())
	assert.True(t, New(&fakeProvider{}, nil).Available())
}

type outcomes map[string]int

func (o outcomes) RecordGeneration(provider, outcome string) {
	o[provider+":"+outcome]++
}

func TestGenerate_RecordsOutcome(t *testing.T) {
	rec := outcomes{}

	ok := New(&fakeProvider{content: replyJSON(t, reply{Success: true, Code: validProgram})}, nil)
	ok.SetRecorder(rec)
	_, err := ok.Generate(context.Background(), "hold cash forever")
	require.NoError(t, err)

	bad := New(&fakeProvider{content: "no json here"}, nil)
	bad.SetRecorder(rec)
	_, err = bad.Generate(context.Background(), "hold cash forever")
	require.Error(t, err)

	// too short to reach the provider
	_, err = bad.Generate(context.Background(), "buy")
	require.Error(t, err)

	assert.Equal(t, outcomes{"fake:success": 1, "fake:GENERATION_FAILED": 1}, rec)
}
