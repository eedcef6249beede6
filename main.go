package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/config"
	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/agent"
	"github.com/meridian-labs/solagent/pkg/cache"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/version"
)

// Exit codes: 0 success, 1 user/validation error, 2 internal error.
const (
	exitOK       = 0
	exitUsage    = 1
	exitInternal = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	env, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitUsage
	}

	log, err := logging.New(env.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return exitInternal
	}
	defer log.Sync()

	log.Info("solagent starting",
		zap.String("version", version.GetVersionString()),
		zap.String("network", env.Network),
		zap.String("rpc_url", env.RPCURL))

	agents, err := agent.LoadAgentConfigs(env.AgentsConfigPath)
	if err != nil {
		log.Error("failed to load agents config", zap.Error(err))
		return exitUsage
	}

	quoteCache := buildQuoteCache(env, log)
	defer quoteCache.Close()

	manager, err := agent.NewManager(agent.ManagerConfig{
		Agents:         agents,
		RPCURL:         env.RPCURL,
		AuditDBPath:    env.AuditDBPath,
		Production:     env.Production(),
		WalletPassword: env.WalletPassword,
		QuoteCache:     quoteCache,
		OrcaRouteURL:   env.OrcaRouteURL,
	}, log)
	if err != nil {
		if domain.ErrorCode(err) != "" {
			log.Error("invalid configuration", zap.Error(err))
			return exitUsage
		}
		log.Error("failed to build agent manager", zap.Error(err))
		return exitInternal
	}

	if err := manager.Run(context.Background()); err != nil {
		log.Error("agent fleet failed", zap.Error(err))
		if domain.ErrorCode(err) != "" {
			return exitUsage
		}
		return exitInternal
	}
	return exitOK
}

func buildQuoteCache(env *config.Env, log *logging.Logger) cache.QuoteCache {
	if !env.RedisEnabled {
		return cache.NoOpCache{}
	}
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{Address: env.RedisAddress})
	if err != nil {
		// The cache is optional: degrade rather than refuse to start.
		log.Warn("redis cache unavailable, continuing without quote cache", zap.Error(err))
		return cache.NoOpCache{}
	}
	log.Info("redis quote cache enabled", zap.String("address", env.RedisAddress))
	return redisCache
}
