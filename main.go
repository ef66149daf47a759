package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	conciergex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/agents/concierge"
	orchestratorx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	llmx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/llm"
	retrievalx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/retrieval"
	sessionx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/session"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/tool"
	"github.com/tanpawarit/Chative-Hotel-Concierge/hotel"
	configx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/config"
	_ "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/metrics"
	openrouterx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/qstash"
)

var (
	identityFlag = flag.String("identity", "guest@hotel.com", "identity (email) to chat as")
	sessionFlag  = flag.String("session", "", "session id to resume; a new one is minted when empty")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("concierge stopped")
	}
}

func run(ctx context.Context) error {
	storeCfg := configx.MustNew[hotel.Config]("STORE")
	sessionCfg := configx.MustNew[sessionx.Config]("SESSION")
	retrievalCfg := configx.MustNew[retrievalx.Config]("RETRIEVAL")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	agentCfg := configx.MustNew[orchestratorx.Config]("AGENT")
	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	metricsCfg := configx.MustNew[metricsx.Config]("METRICS")

	rooms, err := hotel.Open(ctx, *storeCfg)
	if err != nil {
		return fmt.Errorf("open hotel store: %w", err)
	}
	defer rooms.Close()

	registry, err := toolx.NewRegistry()
	if err != nil {
		return err
	}
	directory, err := sessionx.LoadDirectory(sessionCfg.UsersFile)
	if err != nil {
		return err
	}
	resolver, err := sessionx.NewResolver(directory, registry)
	if err != nil {
		return err
	}

	faq, err := buildRetriever(ctx, *retrievalCfg, *llmCfg)
	if err != nil {
		return err
	}

	gatewayOpts := []toolx.Option{toolx.WithRetriever(faq, faq.DefaultK(), faq.DefaultMinScore())}
	if qstashCfg.Enabled() {
		client, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			return fmt.Errorf("qstash: %w", err)
		}
		notifier, err := qstashx.NewNotifier(client, qstashCfg.Destination)
		if err != nil {
			return err
		}
		gatewayOpts = append(gatewayOpts, toolx.WithNotifier(notifier))
	}
	tools, err := toolx.NewGateway(registry, rooms, gatewayOpts...)
	if err != nil {
		return err
	}

	decider, err := conciergex.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return err
	}

	var transcripts statex.Store = statex.NewMemoryStore()
	if redisCfg.Enabled() {
		transcripts, err = statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			return fmt.Errorf("upstash redis: %w", err)
		}
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metricsx.NewRecorder(promRegistry)

	orch, err := orchestratorx.New(resolver, decider, tools, transcripts, *agentCfg, orchestratorx.WithMetrics(recorder))
	if err != nil {
		return err
	}

	info, err := orch.Describe(ctx, *identityFlag)
	if err != nil {
		return fmt.Errorf("identity %q: %w", *identityFlag, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metricsx.Serve(gctx, *metricsCfg, promRegistry)
	})
	g.Go(func() error {
		defer cancel()
		return repl(gctx, orch, info, os.Stdin, os.Stdout)
	})
	return g.Wait()
}

func buildRetriever(ctx context.Context, cfg retrievalx.Config, llmCfg llmx.Config) (*retrievalx.Gateway, error) {
	var embedder retrievalx.Embedder
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), retrievalx.BackendEmbedding) {
		client := openrouterx.NewClient(openrouterx.Config{
			APIKey:   llmCfg.APIKey,
			BaseURL:  llmCfg.BaseURL,
			SiteURL:  llmCfg.SiteURL,
			SiteName: llmCfg.SiteName,
		})
		if client == nil {
			return nil, fmt.Errorf("%w: embedding retrieval needs an api key", contractx.ErrValidation)
		}
		e, err := retrievalx.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	index, err := retrievalx.BuildIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("build faq index: %w", err)
	}
	return retrievalx.NewGateway(index, cfg)
}

func repl(ctx context.Context, orch *orchestratorx.Orchestrator, info orchestratorx.AgentInfo, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Hotel concierge. Chatting as %s (%s), %d tools available. /whoami for details, /quit to leave.\n", info.Name, info.Role, info.ToolCount)

	sessionID := strings.TrimSpace(*sessionFlag)
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/whoami":
			fmt.Fprintf(out, "%s (%s): %s\n", info.Name, info.Role, strings.Join(info.Tools, ", "))
			continue
		}

		resp, err := orch.HandleMessage(ctx, sessionID, *identityFlag, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		sessionID = resp.SessionID
		fmt.Fprintf(out, "[%s] %s\n", resp.Role, resp.Reply)
		if resp.Degraded {
			log.Debug().Str("reason", resp.Reason).Str("session_id", resp.SessionID).Msg("degraded reply")
		}
	}
}
