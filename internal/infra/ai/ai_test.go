package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/infra/cache"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

const goodAsset = `{"title":"Tony","tagline":"Fixes the lift with duct tape.","palette":["#1e3a8a","#fbbf24"],"pixels":["..11..",".1221."]}`

func quiet() *logger.Logger { return logger.NewWriterLogger(io.Discard) }

func TestBudgetGate(t *testing.T) {
	bg := NewBudgetGate(1, 5)
	if !bg.CanSpend(0.9) {
		t.Fatal("fresh gate refused spend under the daily limit")
	}
	bg.RecordSpend(0.9)
	if bg.CanSpend(0.2) {
		t.Error("daily limit not enforced")
	}
	if got := bg.MonthlyRemaining(); got < 4.09 || got > 4.11 {
		t.Errorf("monthly remaining = %v", got)
	}

	// a new day clears the daily spend only
	bg.now = func() time.Time { return bg.LastDayReset.AddDate(0, 0, 1) }
	if !bg.CanSpend(0.2) {
		t.Error("daily spend not reset on a new day")
	}
	if !strings.HasPrefix(bg.GetStatus(), "Day: $0.00/1.00") {
		t.Errorf("status = %q", bg.GetStatus())
	}
}

func TestParseAssetContent(t *testing.T) {
	c, err := ParseAssetContent("Here you go:\n```json\n" + goodAsset + "\n```")
	if err != nil {
		t.Fatalf("fenced answer: %v", err)
	}
	if c.Title != "Tony" || len(c.Palette) != 2 {
		t.Errorf("parsed %+v", c)
	}

	for _, bad := range []string{"no json here", `{"palette":["#fff"]}`, `{"title":"x","palette":["red"]}`} {
		if _, err := ParseAssetContent(bad); err == nil {
			t.Errorf("ParseAssetContent(%q) accepted", bad)
		}
	}
}

func TestBuildAssetPromptAddsKnownLooks(t *testing.T) {
	msgs := BuildAssetPrompt("sprite:Tony", "Tony, a vip passenger", "pixel-art")
	if len(msgs) != 2 || msgs[0].Role != "system" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "safety goggles") {
		t.Errorf("known guest look missing: %s", msgs[1].Content)
	}
	banner := BuildAssetPrompt("disaster:FLOOD", "flood alert banner", "pixel-art")
	if !strings.Contains(banner[1].Content, "32x8") {
		t.Errorf("banner size missing: %s", banner[1].Content)
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1","model":"gpt-4o-mini","choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":30,"completion_tokens":10,"total_tokens":40}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", NewBudgetGate(1, 1)).WithBaseURL(srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:       []Message{{Role: "user", Content: "hi"}},
		MaxTokens:      50,
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" || resp.TotalTokens != 40 || resp.CostUSD <= 0 {
		t.Errorf("response = %+v", resp)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("json mode not requested: %+v", got)
	}
	if s := p.GetUsageStats(); s.TotalRequests != 1 || s.TotalTokens != 40 {
		t.Errorf("usage = %+v", s)
	}

	if _, err := NewOpenAIProvider("", NewBudgetGate(1, 1)).Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Error("provider without key answered")
	}
}

func TestAnthropicProviderMovesSystemPrompt(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak-test" || r.Header.Get("anthropic-version") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1","type":"message","role":"assistant","model":"claude-3-haiku-20240307","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak-test", NewBudgetGate(1, 1)).WithBaseURL(srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  BuildAssetPrompt("disaster:FLOOD", "flood banner", "pixel-art"),
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.TotalTokens != 25 || resp.FinishReason != "end_turn" {
		t.Errorf("response = %+v", resp)
	}
	if got.System != AssetSystemPrompt || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("request = %+v", got)
	}
}

func TestProviderRespectsBudget(t *testing.T) {
	p := NewOpenAIProvider("sk-test", NewBudgetGate(0, 0))
	_, err := p.Complete(context.Background(), CompletionRequest{MaxTokens: 10})
	if err == nil || !strings.Contains(err.Error(), "budget") {
		t.Errorf("err = %v, want budget refusal", err)
	}
}

// scripted is an LLMProvider that answers from a fixed list.
type scripted struct {
	name      string
	available bool
	answers   []string
	calls     int
}

func (s *scripted) Complete(ctx context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	if s.calls >= len(s.answers) {
		return nil, errors.New("out of answers")
	}
	a := s.answers[s.calls]
	s.calls++
	return &CompletionResponse{Content: a, CostUSD: 0.001}, nil
}
func (s *scripted) GetUsageStats() UsageStats { return UsageStats{} }
func (s *scripted) ResetUsage()               {}
func (s *scripted) Name() string              { return s.name }
func (s *scripted) IsAvailable() bool         { return s.available }

func TestGeneratorFallsBackAcrossProviders(t *testing.T) {
	off := &scripted{name: "off"}
	broken := &scripted{name: "broken", available: true, answers: []string{"sorry, I can't draw"}}
	good := &scripted{name: "good", available: true, answers: []string{goodAsset, goodAsset}}

	g := NewGenerator(quiet(), off, broken, good)
	res, err := g.Generate(context.Background(), "sprite:Tony", "Tony", "pixel-art")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if off.calls != 0 || broken.calls != 1 {
		t.Errorf("calls: off=%d broken=%d", off.calls, broken.calls)
	}
	if !strings.HasPrefix(res.Asset.Handle, "gen:") || res.Asset.Key != "sprite:Tony" || res.CostUSD != 0.001 {
		t.Errorf("result = %+v", res)
	}

	again, _ := NewGenerator(quiet(), good).Generate(context.Background(), "sprite:Tony", "Tony", "pixel-art")
	if again.Asset.Handle != res.Asset.Handle {
		t.Errorf("same content got handles %s and %s", res.Asset.Handle, again.Asset.Handle)
	}

	_, err = NewGenerator(quiet(), off).Generate(context.Background(), "sprite:Tony", "Tony", "pixel-art")
	if !errors.Is(err, simerr.ErrGeneration) {
		t.Errorf("no provider: err = %v", err)
	}
}

// fakeGen counts calls and optionally blocks until released.
type fakeGen struct {
	calls   atomic.Int32
	release chan struct{}
	fail    bool
}

func (f *fakeGen) Generate(ctx context.Context, key, _, style string) (*Result, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, simerr.Wrap(simerr.CodeGeneration, "generate "+key, ctx.Err())
		}
	}
	if f.fail {
		return nil, simerr.New(simerr.CodeGeneration, "generate "+key, "model refused")
	}
	return &Result{Asset: cache.Asset{Key: key, Handle: "gen:" + key, Style: style, Content: "{}"}}, nil
}

func newTestBroker(t *testing.T, gen ContentGenerator, timeout time.Duration) *Broker {
	t.Helper()
	c, err := cache.NewAssetCache(8)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBroker(gen, c, timeout, quiet())
	t.Cleanup(b.Close)
	return b
}

func TestBrokerPollNeverBlocks(t *testing.T) {
	gen := &fakeGen{release: make(chan struct{})}
	b := newTestBroker(t, gen, time.Second)

	f := b.Request("sprite:Cindy", "Cindy", "pixel-art")
	if _, done, _ := f.Poll(); done {
		t.Fatal("future resolved before generation finished")
	}
	close(gen.release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	handle, err := f.Wait(ctx)
	if err != nil || handle != "gen:sprite:Cindy" {
		t.Fatalf("Wait = %q, %v", handle, err)
	}
	if h, done, err := f.Poll(); !done || h != handle || err != nil {
		t.Errorf("Poll after resolve = %q %v %v", h, done, err)
	}
	if a, ok := b.Lookup(handle); !ok || a.Key != "sprite:Cindy" {
		t.Errorf("Lookup = %+v, %v", a, ok)
	}

	// cached now: resolves immediately without another generation
	if h, done, _ := b.Request("sprite:Cindy", "Cindy", "pixel-art").Poll(); !done || h != handle {
		t.Errorf("cached request = %q, %v", h, done)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generated %d times", gen.calls.Load())
	}
}

func TestBrokerSharesConcurrentRequests(t *testing.T) {
	gen := &fakeGen{release: make(chan struct{})}
	b := newTestBroker(t, gen, time.Second)

	futures := make([]*Future, 5)
	for i := range futures {
		futures[i] = b.Request("disaster:FLOOD", "flood", "pixel-art")
	}
	// let every goroutine join the flight before it lands
	time.Sleep(50 * time.Millisecond)
	close(gen.release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for _, f := range futures {
		wg.Add(1)
		go func(f *Future) {
			defer wg.Done()
			if h, err := f.Wait(ctx); err != nil || h != "gen:disaster:FLOOD" {
				t.Errorf("Wait = %q, %v", h, err)
			}
		}(f)
	}
	wg.Wait()
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generated %d times, want 1", n)
	}
}

func TestBrokerTimeoutAndFailure(t *testing.T) {
	slow := &fakeGen{release: make(chan struct{})}
	b := newTestBroker(t, slow, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := b.Request("sprite:Xeno", "Xeno", "pixel-art").Wait(ctx); !errors.Is(err, simerr.ErrGeneration) {
		t.Errorf("timeout err = %v", err)
	}

	failing := newTestBroker(t, &fakeGen{fail: true}, time.Second)
	if _, err := failing.Request("sprite:Scott", "Scott", "pixel-art").Wait(ctx); !errors.Is(err, simerr.ErrGeneration) {
		t.Errorf("failure err = %v", err)
	}
	if _, ok := failing.cache.Get("sprite:Scott"); ok {
		t.Error("failed generation was cached")
	}
}
