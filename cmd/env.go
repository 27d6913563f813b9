package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/backend"
	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/documents"
	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/orchestrator"
	"github.com/sells-group/evidence-cli/internal/resilience"
	"github.com/sells-group/evidence-cli/internal/retrieval"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
	anthropicpkg "github.com/sells-group/evidence-cli/pkg/anthropic"
	"github.com/sells-group/evidence-cli/pkg/edgar"
	"github.com/sells-group/evidence-cli/pkg/edgefn"
	"github.com/sells-group/evidence-cli/pkg/google"
	"github.com/sells-group/evidence-cli/pkg/jina"
)

// generationEnv holds the store, registries and generation backend needed
// by the generate and serve commands.
type generationEnv struct {
	Store    store.Store
	Registry *evidence.Registry
	Profiles tierconfig.Profiles
	Invoker  orchestrator.Invoker
	Breakers *resilience.ServiceBreakers
}

// Close releases resources held by the environment.
func (ge *generationEnv) Close() {
	if ge.Store != nil {
		_ = ge.Store.Close()
	}
}

// initGeneration validates config for mode, opens the store and builds the
// backend. Callers should defer env.Close().
func initGeneration(ctx context.Context, mode string) (*generationEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	reg, profiles, err := loadRegistries(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	breakers := resilience.NewServiceBreakers(resilience.FromGenerationConfig(cfg.Generation))
	inv, err := buildInvoker(cfg, st, reg, profiles, breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &generationEnv{
		Store:    st,
		Registry: reg,
		Profiles: profiles,
		Invoker:  inv,
		Breakers: breakers,
	}, nil
}

func loadRegistries(c *config.Config) (*evidence.Registry, tierconfig.Profiles, error) {
	reg := evidence.DefaultRegistry()
	if c.Generation.RegistryPath != "" {
		var err error
		if reg, err = evidence.LoadRegistry(c.Generation.RegistryPath); err != nil {
			return nil, nil, err
		}
	}
	profiles, err := tierconfig.LoadProfiles(c.Profiles.Path)
	if err != nil {
		return nil, nil, err
	}
	return reg, profiles, nil
}

// buildInvoker selects the generation backend: the remote edge function, or
// the in-process retrieval and Anthropic pipeline.
func buildInvoker(c *config.Config, st store.Store, reg *evidence.Registry, profiles tierconfig.Profiles, breakers *resilience.ServiceBreakers) (orchestrator.Invoker, error) {
	switch c.Generation.Backend {
	case "edge":
		zap.L().Info("generation backend: edge function",
			zap.String("url", c.Generation.EdgeURL),
			zap.String("function", c.Generation.EdgeFunction),
		)
		return edgefn.NewClient(c.Generation.EdgeURL, c.Generation.EdgeToken,
			edgefn.WithFunction(c.Generation.EdgeFunction),
			edgefn.WithTimeout(time.Duration(c.Generation.FunctionTimeoutSecs)*time.Second),
			edgefn.WithBreaker(breakers.Get("edgefn")),
		), nil
	case "local":
		opts := retrieval.OptionsFromConfig(c.Retrieval)
		opts.Profiles = profiles
		master := retrieval.NewMaster(opts, buildTiers(c, st, breakers)...)
		llm := anthropicpkg.NewClient(c.Anthropic.Key)
		zap.L().Info("generation backend: local", zap.String("model", c.Anthropic.Model))
		return backend.NewLocal(master, llm, reg, st, c.Anthropic), nil
	}
	return nil, eris.Errorf("unknown generation backend %q", c.Generation.Backend)
}

// buildTiers registers the user document tier always and the external tiers
// whose credentials are configured.
func buildTiers(c *config.Config, st store.Store, breakers *resilience.ServiceBreakers) []retrieval.Tier {
	tiers := []retrieval.Tier{retrieval.NewUserDocs(st)}

	if c.Edgar.UserAgent != "" {
		client := edgar.NewClient(c.Edgar.UserAgent,
			edgar.WithBaseURL(c.Edgar.BaseURL),
			edgar.WithRateLimit(c.Edgar.RateLimit),
		)
		tiers = append(tiers, retrieval.Guard(retrieval.NewOfficial(client), breakers.Get("edgar")))
	} else {
		zap.L().Debug("EVIDENCE_EDGAR_USER_AGENT not set, official API tier disabled")
	}

	if c.Google.Key != "" {
		client := google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.BaseURL))
		tiers = append(tiers, retrieval.Guard(retrieval.NewBusiness(client), breakers.Get("google")))
	} else {
		zap.L().Debug("EVIDENCE_GOOGLE_KEY not set, business data tier disabled")
	}

	if c.Jina.Key != "" {
		client := jina.NewClient(c.Jina.Key, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
		tiers = append(tiers, retrieval.Guard(retrieval.NewNews(client), breakers.Get("jina")))
	} else {
		zap.L().Debug("EVIDENCE_JINA_KEY not set, news tier disabled")
	}
	return tiers
}

// newIngestor builds the document ingestor from config.
func newIngestor(st store.Store) (*documents.Ingestor, error) {
	pdf, err := documents.NewPDFExtractor(cfg.Documents)
	if err != nil {
		return nil, err
	}
	return documents.NewIngestor(st, documents.NewExtractor(pdf), cfg.Documents.MaxFileBytes), nil
}
