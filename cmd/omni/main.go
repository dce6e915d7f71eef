package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/cmd"
	"github.com/nulzo/omni-router/internal/app"
	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/platform/logger"
	"github.com/nulzo/omni-router/pkg/api"
)

type options struct {
	configFile string
	jsonOut    bool
	noColor    bool
	verbose    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.CrossMark(), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "omni",
		Short:         "Route queries across language models from the command line",
		Version:       cmd.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.noColor {
				cli.SetEnabled(false)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (defaults to ./config.yaml)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable ANSI colors")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline stages to stderr")

	root.AddCommand(
		newRouteCmd(opts),
		newModeCmd(opts),
		newRankCmd(opts),
		newAskCmd(opts),
		newModelsCmd(opts),
	)
	return root
}

// pipeline builds the gateway in-process. Providers are only needed by ask.
func (o *options) pipeline(ctx context.Context) (gateway.Service, error) {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if o.verbose {
		log = logger.NewWithSink(logger.Config{Level: "debug", Format: "console", EnableColor: cli.Enabled()}, os.Stderr)
	}

	service, _, err := app.NewGateway(ctx, cfg, log, app.Deps{})
	return service, err
}

func newRouteCmd(opts *options) *cobra.Command {
	var task string
	c := &cobra.Command{
		Use:   "route <query>",
		Short: "Score every model for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			service, err := opts.pipeline(c.Context())
			if err != nil {
				return err
			}
			decision, err := service.Route(c.Context(), strings.Join(args, " "), task)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				cli.PrettyPrint(decision)
				return nil
			}
			renderDecision(c.OutOrStdout(), decision)
			return nil
		},
	}
	c.Flags().StringVarP(&task, "task", "t", "", "task type, skips classification")
	return c
}

func newModeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <query>",
		Short: "Decide between a single model and an ensemble",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			service, err := opts.pipeline(c.Context())
			if err != nil {
				return err
			}
			mode, err := service.DecideMode(c.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if opts.jsonOut {
				cli.PrettyPrint(api.ModeResponse{Mode: mode})
				return nil
			}
			fmt.Fprintf(c.OutOrStdout(), "%s %s\n", cli.Arrow(), cli.Style(string(mode), cli.Bold))
			return nil
		},
	}
}

func newRankCmd(opts *options) *cobra.Command {
	var prompt string
	c := &cobra.Command{
		Use:   "rank --prompt <prompt> <candidate>...",
		Short: "Order candidate answers by relevance to a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			service, err := opts.pipeline(c.Context())
			if err != nil {
				return err
			}
			ranked, err := service.Rank(c.Context(), prompt, args)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				cli.PrettyPrint(ranked)
				return nil
			}
			renderRanked(c.OutOrStdout(), ranked)
			return nil
		},
	}
	c.Flags().StringVarP(&prompt, "prompt", "p", "", "the prompt the candidates answer")
	_ = c.MarkFlagRequired("prompt")
	return c
}

func newAskCmd(opts *options) *cobra.Command {
	var (
		task      string
		mode      string
		maxTokens int
	)
	c := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run the full pipeline and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			switch api.Mode(mode) {
			case "", api.ModeSingle, api.ModeEnsemble:
			default:
				return fmt.Errorf("--mode must be %q or %q", api.ModeSingle, api.ModeEnsemble)
			}

			service, err := opts.pipeline(c.Context())
			if err != nil {
				return err
			}
			resp, err := service.Complete(c.Context(), &api.CompletionRequest{
				Query:     strings.Join(args, " "),
				Task:      task,
				Mode:      api.Mode(mode),
				MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				cli.PrettyPrint(resp)
				return nil
			}
			renderCompletion(c.OutOrStdout(), resp)
			return nil
		},
	}
	c.Flags().StringVarP(&task, "task", "t", "", "task type, skips classification")
	c.Flags().StringVarP(&mode, "mode", "m", "", "force single or ensemble")
	c.Flags().IntVar(&maxTokens, "max-tokens", 0, "token limit per generation")
	return c
}

func newModelsCmd(opts *options) *cobra.Command {
	var provider, capability string
	c := &cobra.Command{
		Use:   "models",
		Short: "List the chat and image catalogues",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			service, err := opts.pipeline(c.Context())
			if err != nil {
				return err
			}
			models, err := service.ListModels(c.Context(), api.ModelFilter{Provider: provider, Capability: capability})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				cli.PrettyPrint(models)
				return nil
			}
			renderModels(c.OutOrStdout(), models)
			return nil
		},
	}
	c.Flags().StringVar(&provider, "provider", "", "only models served by this provider")
	c.Flags().StringVar(&capability, "capability", "", "chat or image")
	return c
}
