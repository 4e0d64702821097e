package nakama

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/form3tech-oss/jwt-go"
	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/app/onboarding"
)

// AfterAuthenticateDevice is triggered after an account is authenticated.
// New accounts get a callsign and an empty career record.
func AfterAuthenticateDevice(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error {
	if !out.Created {
		return nil
	}
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		resolved, err := extractUserIDFromToken(out.Token)
		if err != nil {
			logger.Error("resolve new account id: %v", err)
			return err
		}
		userID = resolved
	}

	service := onboarding.NewService(NewProfileAdapter(nk), NewStorageResultStore(nk), nil)
	res, err := service.Onboard(ctx, userID)
	if err != nil {
		logger.Error("onboarding %s failed: %v", userID, err)
		return err
	}
	switch {
	case !res.CareerCreated:
		logger.Debug("career already exists for %s", userID)
	case res.ProfileErr != nil:
		logger.Warn("could not publish callsign %s for %s: %v", res.Callsign, userID, res.ProfileErr)
	default:
		logger.Info("onboarded %s as %s", userID, res.Callsign)
	}
	return nil
}

// extractUserIDFromToken reads the uid claim of a session token Nakama has just issued.
// The signature is not checked; the token never left the server.
func extractUserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse session token: %w", err)
	}
	uid, ok := claims["uid"].(string)
	if !ok || uid == "" {
		return "", fmt.Errorf("token claims missing uid")
	}
	return uid, nil
}
