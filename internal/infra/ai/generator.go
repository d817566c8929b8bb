package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/infra/cache"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// Result is one generated asset and what it cost.
type Result struct {
	Asset   cache.Asset
	CostUSD float64
}

// ContentGenerator produces content for a key. Failures match simerr.ErrGeneration.
type ContentGenerator interface {
	Generate(ctx context.Context, key, description, style string) (*Result, error)
}

// Generator asks its providers in order and keeps the first usable answer.
type Generator struct {
	providers []LLMProvider
	log       *logger.Logger
}

// NewGenerator creates a generator over the given providers. Unconfigured providers
// are skipped at call time.
func NewGenerator(log *logger.Logger, providers ...LLMProvider) *Generator {
	return &Generator{providers: providers, log: log}
}

// Available reports whether any provider has credentials.
func (g *Generator) Available() bool {
	for _, p := range g.providers {
		if p.IsAvailable() {
			return true
		}
	}
	return false
}

// Generate implements ContentGenerator.
func (g *Generator) Generate(ctx context.Context, key, description, style string) (*Result, error) {
	op := "generate " + key
	req := CompletionRequest{
		Messages:       BuildAssetPrompt(key, description, style),
		MaxTokens:      400,
		Temperature:    0.8,
		ResponseFormat: "json",
	}

	var errs []error
	for _, p := range g.providers {
		if !p.IsAvailable() {
			continue
		}
		resp, err := p.Complete(ctx, req)
		if err != nil {
			g.log.Warnf("%s: %s failed: %v", op, p.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		content, err := ParseAssetContent(resp.Content)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		body, err := json.Marshal(content)
		if err != nil {
			return nil, simerr.Wrap(simerr.CodeGeneration, op, err)
		}
		return &Result{
			Asset: cache.Asset{
				Key:     key,
				Handle:  contentHandle(key, style, body),
				Style:   style,
				Content: string(body),
			},
			CostUSD: resp.CostUSD,
		}, nil
	}

	if len(errs) == 0 {
		return nil, simerr.New(simerr.CodeGeneration, op, "no provider configured")
	}
	return nil, simerr.Wrap(simerr.CodeGeneration, op, errors.Join(errs...))
}

// contentHandle is stable for identical content, so a regenerated asset that comes
// back the same keeps its handle.
func contentHandle(key, style string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(style))
	h.Write([]byte{0})
	h.Write(body)
	return "gen:" + hex.EncodeToString(h.Sum(nil))[:16]
}
