package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/xrsl/solvx/pkg/ai"
	"github.com/xrsl/solvx/pkg/cache"
	"github.com/xrsl/solvx/pkg/classify"
	"github.com/xrsl/solvx/pkg/config"
	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/corpus/postgres"
	"github.com/xrsl/solvx/pkg/corpus/sqlite"
	"github.com/xrsl/solvx/pkg/embed"
	"github.com/xrsl/solvx/pkg/match"
	"github.com/xrsl/solvx/pkg/style"
	"github.com/xrsl/solvx/pkg/workflow"
)

// loadConfig loads the config or returns an error suitable for RunE.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// openStore opens the corpus backend selected by corpus.driver.
func openStore(ctx context.Context, cfg *config.Config) (corpus.Store, error) {
	switch cfg.Corpus.Driver {
	case "", "sqlite":
		s, err := sqlite.Open(ctx, cfg.Corpus.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Corpus.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown corpus driver %q (use sqlite or postgres)", cfg.Corpus.Driver)
	}
}

func newEmbedder(cfg *config.Config) (*embed.OpenAI, error) {
	return embed.NewOpenAI(embed.Options{
		BaseURL:           cfg.Embedding.URL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
}

// newEmbeddingCache returns nil when disabled so callers can pass it through.
func newEmbeddingCache(cfg *config.Config, disabled bool) cache.Store {
	if disabled {
		return nil
	}
	return cache.NewDir(cfg.Ingest.CacheDir)
}

func newClassifier(cfg *config.Config) (*classify.Classifier, ai.Client, error) {
	agent := cfg.Agent
	if agent == "" {
		agent = ai.DefaultAgent
	}
	if env := ai.CredentialEnv(agent); env != "" {
		if _, err := config.Env(env); err != nil {
			return nil, nil, err
		}
	}
	client, err := ai.NewClient(agent)
	if err != nil {
		return nil, nil, err
	}
	prompt, err := classify.LoadPrompt(cfg.Classify.PromptPath)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	c := classify.New(client,
		classify.WithPrompt(prompt),
		classify.WithTimeout(cfg.Classify.Timeout),
	)
	return c, client, nil
}

func newMatcher(cfg *config.Config, e match.Embedder, s corpus.Searcher) *match.Matcher {
	return match.New(e, s,
		match.WithTimeout(cfg.Match.Timeout),
		match.WithPrompt(cfg.Match.IncludePrompt),
	)
}

// profile resolves a named matcher profile from config.
func profile(cfg *config.Config, name string) (match.Profile, error) {
	p, err := cfg.Profile(name)
	if err != nil {
		return match.Profile{}, err
	}
	return match.Profile{Threshold: p.Threshold, Limit: p.Limit}, nil
}

func profiles(cfg *config.Config) map[string]match.Profile {
	out := make(map[string]match.Profile, len(cfg.Match.Profiles))
	for name, p := range cfg.Match.Profiles {
		out[name] = match.Profile{Threshold: p.Threshold, Limit: p.Limit}
	}
	return out
}

// printDistribution prints per-domain counts in taxonomy order, then any
// other domains alphabetically.
func printDistribution(title string, dist map[workflow.Domain]int) {
	fmt.Printf("\n%s\n", style.B(title))
	seen := map[workflow.Domain]bool{}
	total := 0
	for _, d := range workflow.Domains() {
		seen[d] = true
		if n := dist[d]; n > 0 {
			fmt.Printf("  %-12s %s\n", d, style.C(style.Cyan, fmt.Sprint(n)))
			total += n
		}
	}
	var rest []string
	for d := range dist {
		if !seen[d] {
			rest = append(rest, string(d))
		}
	}
	sort.Strings(rest)
	for _, d := range rest {
		n := dist[workflow.Domain(d)]
		fmt.Printf("  %-12s %s\n", d, style.C(style.Yellow, fmt.Sprint(n)))
		total += n
	}
	fmt.Printf("  %-12s %s\n", "total", style.B(fmt.Sprint(total)))
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
