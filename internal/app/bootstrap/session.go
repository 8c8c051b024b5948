package bootstrap

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/session"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// BuildSession returns the token verifier and identity cache. Both are nil outside production
// when SESSION_JWT_SECRET is unset.
func BuildSession(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (session.Verifier, session.Cache, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.SessionJWTSecret) == "" {
		if cfg.Env == "production" {
			return nil, nil, fmt.Errorf("bootstrap: SESSION_JWT_SECRET is required in production")
		}
		return nil, nil, nil
	}

	var opts []session.CacheOption
	if redisClient != nil {
		opts = append(opts, session.WithRedis(redisClient))
	}
	cache := session.NewTieredCache(cfg.SessionCacheSize, cfg.SessionCacheTTL, logger.Component("session"), opts...)
	return session.NewHMACVerifier(cfg.SessionJWTSecret), cache, nil
}
