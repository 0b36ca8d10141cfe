package enrich

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gradsync/internal/model"
)

// AliasTable maps spellings to canonical names.
//
//	universities:
//	  - canonical: Johns Hopkins University
//	    match: [johns hopkins, jhu]
//	programs:
//	  - canonical: Computer Science
//	    match: [computer science, cs]
type AliasTable struct {
	Universities []Alias `yaml:"universities"`
	Programs     []Alias `yaml:"programs"`
}

// Alias is one canonical name and the words that select it.
type Alias struct {
	Canonical string   `yaml:"canonical"`
	Match     []string `yaml:"match"`
}

type compiledAlias struct {
	canonical string
	re        *regexp.Regexp
}

// Aliases enriches from a static table. The first entry whose match words
// appear (case-insensitive, whole words) in the scraped name wins; names
// with no match are kept as scraped.
type Aliases struct {
	universities []compiledAlias
	programs     []compiledAlias
}

// LoadAliases reads an alias table from a YAML file.
func LoadAliases(path string) (*Aliases, error) {
	if path == "" {
		return nil, eris.New("enrich: alias provider needs enrich.alias_file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read alias file %s", path)
	}
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "enrich: parse alias file")
	}
	return NewAliases(t)
}

// NewAliases compiles t.
func NewAliases(t AliasTable) (*Aliases, error) {
	unis, err := compileAliases(t.Universities)
	if err != nil {
		return nil, err
	}
	progs, err := compileAliases(t.Programs)
	if err != nil {
		return nil, err
	}
	return &Aliases{universities: unis, programs: progs}, nil
}

func compileAliases(in []Alias) ([]compiledAlias, error) {
	out := make([]compiledAlias, 0, len(in))
	for _, a := range in {
		if a.Canonical == "" {
			return nil, eris.New("enrich: alias entry without canonical name")
		}
		words := make([]string, 0, len(a.Match)+1)
		for _, m := range append([]string{a.Canonical}, a.Match...) {
			if m = strings.TrimSpace(m); m != "" {
				words = append(words, regexp.QuoteMeta(m))
			}
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: compile alias %q", a.Canonical)
		}
		out = append(out, compiledAlias{canonical: a.Canonical, re: re})
	}
	return out, nil
}

func lookup(table []compiledAlias, name string) string {
	for _, a := range table {
		if a.re.MatchString(name) {
			return a.canonical
		}
	}
	return name
}

func (a *Aliases) Enrich(_ context.Context, recs []model.ApplicantRecord) ([]model.ApplicantRecord, error) {
	out := make([]model.ApplicantRecord, len(recs))
	for i, r := range recs {
		r.LLMUniversity = lookup(a.universities, r.Institution)
		r.LLMProgram = lookup(a.programs, r.Program)
		out[i] = r
	}
	return out, nil
}
