// Package enrich fills the normalized university and program names on
// crawled records before they are merged.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/pkg/anthropic"
)

// Enricher returns records with LLMUniversity and LLMProgram set. It may
// return fewer records than it was given; the caller merges what comes back.
type Enricher interface {
	Enrich(ctx context.Context, recs []model.ApplicantRecord) ([]model.ApplicantRecord, error)
}

// Provider names accepted by New.
const (
	ProviderNone      = "none"
	ProviderCommand   = "command"
	ProviderAnthropic = "anthropic"
	ProviderAlias     = "alias"
)

// Config selects and configures a provider.
type Config struct {
	Provider    string        `mapstructure:"provider"`
	Command     string        `mapstructure:"command"`
	Args        []string      `mapstructure:"args"`
	Timeout     time.Duration `mapstructure:"timeout"`
	AliasFile   string        `mapstructure:"alias_file"`
	Concurrency int           `mapstructure:"concurrency"`
}

// New builds the configured Enricher. client is only used by the anthropic
// provider and may be nil otherwise.
func New(cfg Config, client anthropic.Client, llm LLMOptions) (Enricher, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return Noop{}, nil
	case ProviderCommand:
		return NewCommand(cfg.Command, cfg.Args, cfg.Timeout)
	case ProviderAlias:
		return LoadAliases(cfg.AliasFile)
	case ProviderAnthropic:
		if client == nil {
			return nil, eris.New("enrich: anthropic provider needs a client")
		}
		llm.Concurrency = cfg.Concurrency
		return NewLLM(client, llm), nil
	default:
		return nil, eris.Errorf("enrich: unknown provider %q", cfg.Provider)
	}
}

// Noop returns records unchanged.
type Noop struct{}

func (Noop) Enrich(_ context.Context, recs []model.ApplicantRecord) ([]model.ApplicantRecord, error) {
	return recs, nil
}
