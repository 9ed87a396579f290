package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xrsl/solvx/pkg/api"
	"github.com/xrsl/solvx/pkg/enrich"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/signal"
	"github.com/xrsl/solvx/pkg/style"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: style.GroupSearch,
	Short:   "Serve the HTTP API",
	Long: `Serve classification and workflow retrieval over HTTP. Request logs are
written at info level; set log.level to info and log.format to json for
production.

Routes:
  GET  /health
  POST /api/classify
  POST /api/enrich
  POST /api/workflows/search
  POST /api/workflows/match
  GET  /api/workflows/status

Examples:
  solvx serve
  solvx serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	classifier, client, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	matcher := newMatcher(cfg, embedder, store)
	srv := api.NewServer(api.Deps{
		Classifier: classifier,
		Matcher:    matcher,
		Enricher:   enrich.New(classifier, matcher),
		Stats:      store,
		Profiles:   profiles(cfg),
		Logger:     clog.With("component", "api"),
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	info("Listening on %s", addr)
	return srv.Run(ctx, addr)
}
