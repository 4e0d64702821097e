package nakama

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/app"
	"spikeline/internal/config"
	"spikeline/internal/ports"
	"spikeline/internal/ports/archive"
)

const defaultGameConfigPath = "data/game_config.json"

// InitModule wires RPCs, hooks and the match handler for the Nakama runtime.
// Runtime env keys: spike_game_config, vivox_secret/vivox_issuer/vivox_domain,
// archive_bucket/archive_endpoint/archive_region/archive_access_key_id/archive_secret_access_key.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	path := env["spike_game_config"]
	if path == "" {
		path = defaultGameConfigPath
	}
	if err := config.LoadGameConfig(path); err != nil {
		logger.Warn("InitModule: Could not load game config, using built-in modes: %v", err)
	}

	if env["vivox_secret"] != "" {
		voiceService = app.NewVoiceService(env["vivox_secret"], env["vivox_issuer"], env["vivox_domain"], nil)
	}

	var matchArchive ports.Archive
	if bucket := env["archive_bucket"]; bucket != "" {
		uploader, err := archive.New(ctx, archive.Options{
			Bucket:    bucket,
			Endpoint:  env["archive_endpoint"],
			Region:    env["archive_region"],
			AccessKey: env["archive_access_key_id"],
			SecretKey: env["archive_secret_access_key"],
		})
		if err != nil {
			logger.Error("InitModule: Archive disabled: %v", err)
		} else {
			matchArchive = uploader
		}
	}

	results := app.NewStoreSink(NewStorageResultStore(nk), matchArchive, logger)
	go results.Run(context.Background())

	if err := RegisterRPCs(initializer); err != nil {
		return err
	}
	if err := initializer.RegisterAfterAuthenticateDevice(AfterAuthenticateDevice); err != nil {
		return err
	}
	if err := initializer.RegisterMatch(MatchNameSpike, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return &matchHandler{
			clock:   clockwork.NewRealClock(),
			results: results,
		}, nil
	}); err != nil {
		return err
	}

	logger.Info("Spikeline Go module loaded.")
	return nil
}
