package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/playtrade/chatkit/internal/api"
	"github.com/playtrade/chatkit/internal/channel"
	"github.com/playtrade/chatkit/internal/config"
	"github.com/playtrade/chatkit/internal/conversations"
	"github.com/playtrade/chatkit/internal/domain"
	"github.com/playtrade/chatkit/internal/logging"
	"github.com/playtrade/chatkit/internal/pubsub"
	"github.com/playtrade/chatkit/internal/receipts"
)

var rootCmd = &cobra.Command{
	Use:   "chatkit",
	Short: "Terminal client for the marketplace chat service",
	Long: `chatkit is a terminal client for the marketplace conversation service.

It connects to the push channel for live events and falls back to the REST
API when the channel is unavailable.

Use "chatkit [command] --help" for more information about a specific command.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(logging.New)
}

// runtime bundles everything a command needs to talk to the backend.
type runtime struct {
	cfg     *config.Config
	session *domain.Session
	bus     *pubsub.WatermillBus
	api     *api.Client
	manager *channel.Manager
	client  *conversations.Client
}

// newRuntime wires the SDK from environment configuration.
func newRuntime() (*runtime, error) {
	cfg := config.New()

	session, err := domain.NewSession(cfg.Token)
	if err != nil {
		return nil, err
	}

	bus := pubsub.NewWatermillBus()
	apiClient := api.NewClient(cfg.APIBaseURL, cfg.Token)
	manager := channel.NewManager(cfg.ChannelURL, cfg.Token, bus,
		channel.WithReconnectDelay(cfg.ReconnectDelay))
	batcher := receipts.NewBatcher(apiClient)
	client := conversations.NewClient(session, manager, apiClient, bus, batcher,
		conversations.WithTypingDebounce(cfg.TypingDebounce))

	return &runtime{
		cfg:     cfg,
		session: session,
		bus:     bus,
		api:     apiClient,
		manager: manager,
		client:  client,
	}, nil
}

// close releases the runtime's resources in teardown order.
func (r *runtime) close() {
	r.client.Close()
	_ = r.manager.Close()
	_ = r.bus.Close()
}
