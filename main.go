package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newCommand().Run(ctx, os.Args)
	stop()
	_ = logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandEnv is the configuration shared by every command
type commandEnv struct {
	cfg     *config.Config
	yamlCfg *config.YAMLConfig
}

func newCommand() *cli.Command {
	rt := &commandEnv{}
	var metricsAddr string

	return &cli.Command{
		Name:  "bizassist",
		Usage: "Per-business conversational assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "serve Prometheus metrics on this address (disabled when empty)",
				Sources:     cli.EnvVars("METRICS_ADDR"),
				Destination: &metricsAddr,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.LoadConfig()
			if err != nil {
				return ctx, err
			}
			if err := logger.InitLogger(cfg.Log); err != nil {
				return ctx, err
			}
			yamlCfg, err := config.LoadYAMLConfig(cfg.ConfigFile)
			if err != nil {
				return ctx, err
			}
			rt.cfg, rt.yamlCfg = cfg, yamlCfg
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			rt.chatCommand(),
			rt.ingestCommand(),
			rt.leadsCommand(),
		},
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func (rt *commandEnv) ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "index documents of a business",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "business", Aliases: []string{"b"}, Usage: "business id", Required: true},
			&cli.StringSliceFlag{Name: "delete", Usage: "document ids to remove instead of ingesting"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := newAssistant(ctx, rt.cfg, rt.yamlCfg)
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := a.profiles.GetProfile(ctx, c.String("business"))
			if err != nil {
				return err
			}
			for _, documentID := range c.StringSlice("delete") {
				if err := a.documents.Remove(ctx, profile, documentID); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", documentID)
			}
			for _, path := range c.Args().Slice() {
				documentID, n, err := a.documents.Upload(ctx, profile, path)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %s (%d chunks)\n", documentID, n)
			}
			total, err := a.documents.Chunks(ctx, profile)
			if err != nil {
				return err
			}
			fmt.Printf("%s has %d chunks indexed\n", profile.Name, total)
			return nil
		},
	}
}

func (rt *commandEnv) leadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "leads",
		Usage: "list the leads captured for a business",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "business", Aliases: []string{"b"}, Usage: "business id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := newAssistant(ctx, rt.cfg, rt.yamlCfg)
			if err != nil {
				return err
			}
			defer a.Close()

			leads, err := a.leads.Leads(ctx, c.String("business"))
			if err != nil {
				return err
			}
			if len(leads) == 0 {
				fmt.Println("No leads yet.")
				return nil
			}
			for _, l := range leads {
				fmt.Printf("%s  %-20s  %s  %q\n", l.CreatedAt.Format("2006-01-02 15:04"), l.Name, l.ConversationID, l.FirstMessage)
			}
			return nil
		},
	}
}
