// Command arenad hosts spike matches without Nakama. Matches are driven by a scheduler and
// controlled through an HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"spikeline/internal/app"
	"spikeline/internal/config"
	"spikeline/internal/domain"
	"spikeline/internal/logging"
	"spikeline/internal/ports"
	"spikeline/internal/ports/archive"
	"spikeline/internal/ports/discord"
	"spikeline/internal/ports/gormstore"
	"spikeline/internal/ports/httpapi"
	"spikeline/internal/queue"
	"spikeline/internal/runner"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.NewProduction(env.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	if err := config.LoadGameConfig(env.GameConfigPath); err != nil {
		log.Fatalf("game config error: %v", err)
	}
	game := config.GetGameConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	sinks := app.MultiSink{}
	var (
		records   httpapi.Records
		results   ports.ResultStore
		summaries ports.Archive
	)
	if env.DatabaseURL != "" {
		store, err := gormstore.Open(env.DatabaseURL)
		if err != nil {
			log.Fatalf("database error: %v", err)
		}
		results = store
		records = store
	}
	if env.ArchiveEnabled() {
		uploader, err := archive.New(ctx, archive.Options{
			Bucket:    env.ArchiveBucket,
			Endpoint:  env.ArchiveEndpoint,
			Region:    env.ArchiveRegion,
			AccessKey: env.ArchiveAccessKey,
			SecretKey: env.ArchiveSecretKey,
		})
		if err != nil {
			log.Fatalf("archive error: %v", err)
		}
		summaries = uploader
	}
	storeSink := app.NewStoreSink(results, summaries, logger)
	stored := make(chan struct{})
	go func() {
		storeSink.Run(context.Background())
		close(stored)
	}()
	sinks = append(sinks, storeSink)

	if env.DiscordEnabled() {
		notifier, session, err := discord.Open(env.DiscordToken, env.DiscordChannelID, logger)
		if err != nil {
			log.Fatalf("discord error: %v", err)
		}
		defer session.Close()
		go notifier.Run(ctx)
		sinks = append(sinks, notifier)
	}

	var voice *app.VoiceService
	if env.VoiceEnabled() {
		voice = app.NewVoiceService(env.VoiceSecret, env.VoiceIssuer, env.VoiceDomain, clock)
	}

	registry := app.NewRegistry(app.RegistryOptions{
		Clock:       clock,
		Logger:      logger,
		Sink:        sinks,
		Shop:        game.ShopItems(),
		SettleDelay: game.SettleDelay(),
	})
	queues := queue.NewManager(game.QueueCapacities())
	matchmaker := app.NewMatchmaker(registry, queues, game.Layouts(), game.ModeSet(), logger, time.Now().UnixNano())

	r, err := runner.New(registry, matchmaker, runner.Options{
		TickInterval: env.TickInterval,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("runner error: %v", err)
	}
	r.Start()

	server := httpapi.New(httpapi.Options{
		Registry:   registry,
		Matchmaker: matchmaker,
		Queues:     queues,
		Game:       game,
		Records:    records,
		Voice:      voice,
		Secret:     []byte(env.AdminSecret),
		Clock:      clock,
		Logger:     logger,
	})
	if env.PrintOperatorToken {
		token, err := httpapi.IssueToken([]byte(env.AdminSecret), "arenad", "operator", httpapi.RoleAdmin, clock.Now(), 12*time.Hour)
		if err != nil {
			log.Fatalf("operator token error: %v", err)
		}
		fmt.Println(token)
	}

	go func() {
		if err := server.Listen(env.HTTPAddr); err != nil {
			logger.Error("http server stopped: %v", err)
			stop()
		}
	}()

	logger.Info("arenad ready - %s", env.Redacted())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}
	if err := r.Shutdown(); err != nil {
		logger.Warn("runner shutdown: %v", err)
	}
	for _, m := range registry.Matches() {
		m.EndMatch(domain.MatchEndAdmin)
	}
	storeSink.Close()
	select {
	case <-stored:
	case <-shutdownCtx.Done():
		logger.Warn("results still pending at exit")
	}
}
