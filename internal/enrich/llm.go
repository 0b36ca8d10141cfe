package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/resilience"
	"github.com/sells-group/gradsync/pkg/anthropic"
)

const normalizePrompt = `You standardize graduate admissions data.
Given a program name and a university name as typed by an applicant, reply with
only a JSON object of the form {"university": "...", "program": "..."} using the
official full university name and a conventional program name. Expand
abbreviations (JHU, MIT, CS, EE). If a field is unknown, repeat it unchanged.`

// LLMOptions tunes the anthropic provider.
type LLMOptions struct {
	Model       string                   `mapstructure:"model"`
	MaxTokens   int64                    `mapstructure:"max_tokens"`
	Concurrency int                      `mapstructure:"-"`
	Breaker     resilience.BreakerConfig `mapstructure:"breaker"`
}

// LLM asks Claude to normalize each distinct (university, program) pair.
// Pairs that fail, or that arrive while the breaker is open, keep their
// scraped names.
type LLM struct {
	client  anthropic.Client
	opts    LLMOptions
	breaker *resilience.CircuitBreaker
}

type normalized struct {
	University string `json:"university"`
	Program    string `json:"program"`
}

type pairKey struct{ university, program string }

// NewLLM creates an LLM enricher.
func NewLLM(client anthropic.Client, opts LLMOptions) *LLM {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 256
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &LLM{
		client:  client,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker(opts.Breaker),
	}
}

func (l *LLM) Enrich(ctx context.Context, recs []model.ApplicantRecord) ([]model.ApplicantRecord, error) {
	log := zap.L().With(zap.String("component", "enrich.llm"))

	var keys []pairKey
	seen := make(map[pairKey]bool)
	for _, r := range recs {
		k := pairKey{r.Institution, r.Program}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	pairs := make(map[pairKey]normalized, len(keys))

	var (
		mu       sync.Mutex
		usage    anthropic.TokenUsage
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for _, key := range keys {
		g.Go(func() error {
			n, u, err := l.normalize(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			usage.Add(u)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				if !errors.Is(err, resilience.ErrCircuitOpen) {
					log.Warn("normalization failed, keeping scraped names",
						zap.String("university", key.university),
						zap.String("program", key.program),
						zap.Error(err),
					)
				}
				n = normalized{University: key.university, Program: key.program}
			}
			pairs[key] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "enrich: llm")
	}
	usage.LogUsage(l.opts.Model, "enrich.llm")
	if failures > 0 {
		log.Warn("some pairs were not normalized", zap.Int("failed", failures), zap.Int("pairs", len(pairs)))
	}

	out := make([]model.ApplicantRecord, len(recs))
	for i, r := range recs {
		n := pairs[pairKey{r.Institution, r.Program}]
		r.LLMUniversity = n.University
		r.LLMProgram = n.Program
		out[i] = r
	}
	return out, nil
}

func (l *LLM) normalize(ctx context.Context, key pairKey) (normalized, anthropic.TokenUsage, error) {
	temp := 0.0
	resp, err := resilience.Execute(ctx, l.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return l.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       l.opts.Model,
			MaxTokens:   l.opts.MaxTokens,
			System:      anthropic.CachedSystem(normalizePrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(key)}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return normalized{}, anthropic.TokenUsage{}, err
	}

	n, err := parseNormalized(resp.Text())
	if err != nil {
		return normalized{}, resp.Usage, err
	}
	if n.University == "" {
		n.University = key.university
	}
	if n.Program == "" {
		n.Program = key.program
	}
	return n, resp.Usage, nil
}

func userPrompt(key pairKey) string {
	return fmt.Sprintf("Program: %s\nUniversity: %s", key.program, key.university)
}

// parseNormalized reads the first JSON object in text. Models sometimes
// wrap the object in prose or code fences.
func parseNormalized(text string) (normalized, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return normalized{}, eris.Errorf("enrich: no JSON object in response %q", text)
	}
	var n normalized
	if err := json.Unmarshal([]byte(text[start:end+1]), &n); err != nil {
		return normalized{}, eris.Wrap(err, "enrich: decode response")
	}
	n.University = strings.TrimSpace(n.University)
	n.Program = strings.TrimSpace(n.Program)
	return n, nil
}
