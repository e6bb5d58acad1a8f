package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/gateway"
	"github.com/rahul/vibe/internal/governance"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/observability"
	"github.com/rahul/vibe/internal/preview"
	"github.com/rahul/vibe/internal/reference"
	"github.com/rahul/vibe/internal/sandbox"
	"github.com/rahul/vibe/internal/store"
	"github.com/rahul/vibe/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const expiredNotice = "Your project expired after a period of inactivity. Send a new description to start again."

func newServeCmd(configPath *string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, chat gateways and session reaper",
		Long: "Run the HTTP API, the enabled chat gateways and the session reaper.\n\n" +
			"--listen, --workspace and --prompts override the config file, as do the\n" +
			"VIBE_LISTEN, VIBE_WORKSPACE and VIBE_PROMPTS environment variables.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(*configPath, v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address")
	cmd.Flags().String("workspace", "", "directory for sandboxed projects")
	cmd.Flags().String("prompts", "", "directory of prompt overrides")

	v.SetEnvPrefix("VIBE")
	v.AutomaticEnv()
	for _, name := range []string{"listen", "workspace", "prompts"} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

// loadServeConfig reads the config file and applies flag and environment
// overrides from v.
func loadServeConfig(path string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if s := v.GetString("listen"); s != "" {
		cfg.App.Listen = s
	}
	if s := v.GetString("workspace"); s != "" {
		cfg.App.Workspace = s
	}
	if s := v.GetString("prompts"); s != "" {
		cfg.App.Prompts = s
	}
	return cfg, nil
}

// chatGateway pairs a messenger with the conversations it feeds.
type chatGateway struct {
	name  string
	bot   gateway.Messenger
	chats *gateway.Conversations
}

func serve(cfg *config.Config) error {
	if observability.IsTerminal() {
		observability.PrintBanner(cfg.App.Listen)
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()

		// Route all log output through the terminal mutex so it never
		// interrupts the dashboard's cursor save/restore sequence.
		log.SetOutput(observability.NewTermWriter())
	}

	if name, _ := cfg.GetDefaultProvider(); name == "" {
		log.Printf("Warning: no provider is enabled in config")
	}

	history, err := store.NewSessionStore(cfg.Memory.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	logger := observability.NewLogger()

	builder := agent.NewBuilder(llm.ConfigResolver(cfg), agent.NewPromptManager(cfg.App.Prompts), history, logger)
	if cfg.Reference.Fetch {
		fetcher := reference.NewFetcher()
		if cfg.Reference.Search {
			search, err := reference.NewSearch(5)
			if err != nil {
				log.Printf("Warning: Failed to initialize search: %v", err)
			} else {
				fetcher.Search = search
			}
		}
		builder.Reference = fetcher
	}

	workspace, err := filepath.Abs(cfg.App.Workspace)
	if err != nil {
		return err
	}
	sb := sandbox.NewManager(workspace, cfg.Sandbox, governance.NewSandboxPolicy(), logger)
	defer sb.StopAll()

	var browser *preview.Browser
	if cfg.Sandbox.Preview {
		browser = preview.NewBrowser()
		defer browser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateways, err := chatGateways(cfg, builder)
	if err != nil {
		return err
	}

	reaper := agent.NewReaper(builder, cfg.TTL())
	reaper.OnEvict = append(reaper.OnEvict, sb.Stop)
	for _, g := range gateways {
		reaper.OnEvict = append(reaper.OnEvict, func(id string) {
			chatID, ok := g.chats.Forget(id)
			if !ok {
				return
			}
			if err := g.bot.Send(chatID, expiredNotice); err != nil {
				log.Printf("[%s] expiry notice to %s: %v", g.name, chatID, err)
			}
		})
	}
	go reaper.Start(ctx)

	if observability.IsTerminal() {
		go tick(ctx, time.Second, observability.PrintLiveStatus)
	}
	go tick(ctx, 30*time.Second, func() {
		observability.Heartbeat()
		logger.LogHeartbeat()
	})

	for _, g := range gateways {
		go func() {
			if err := g.bot.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] %s GATEWAY ERROR: %v\033[0m", g.name, err)
			}
		}()
	}

	srv := gateway.NewServer(cfg.App.Listen, builder, sb, browser)
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Printf("\033[91m[ FAIL ] HTTP API CRITICAL ERROR: %v\033[0m", err)
			stop()
		}
	}()

	<-ctx.Done()

	if err := srv.Stop(); err != nil {
		log.Printf("HTTP API: %v", err)
	}
	for _, g := range gateways {
		if err := g.bot.Stop(); err != nil {
			log.Printf("[%s] stop: %v", g.name, err)
		}
	}

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
	return nil
}

func chatGateways(cfg *config.Config, builder *agent.Builder) ([]chatGateway, error) {
	var gateways []chatGateway

	if gc, ok := cfg.Gateway("telegram"); ok {
		chats := gateway.NewConversations(builder)
		tg, err := gateway.NewTelegramGateway(gc.Token, chats)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		gateways = append(gateways, chatGateway{name: "telegram", bot: tg, chats: chats})
	}
	if gc, ok := cfg.Gateway("discord"); ok {
		chats := gateway.NewConversations(builder)
		dg, err := gateway.NewDiscordGateway(gc.Token, chats)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		gateways = append(gateways, chatGateway{name: "discord", bot: dg, chats: chats})
	}
	return gateways, nil
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
