package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/config"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/source"
	"github.com/qwerty-development/tableflow/internal/store"
)

// settings loads deployment variables and the engine policy. The --config
// flag wins over TABLEFLOW_CONFIG.
func (o *RootOptions) settings() (config.Env, config.Engine, error) {
	var dotenv []string
	if o.EnvFile != "" {
		dotenv = append(dotenv, o.EnvFile)
	}
	env, err := config.LoadEnv(dotenv...)
	if err != nil {
		return config.Env{}, config.Engine{}, WrapExitError(ExitCommandError, "failed to load environment", err)
	}

	path := o.ConfigPath
	if path == "" {
		path = env.ConfigPath
	}
	policy, err := config.LoadEngine(path)
	if err != nil {
		return config.Env{}, config.Engine{}, WrapExitError(ExitCommandError, "failed to load engine policy", err)
	}
	return env, policy, nil
}

// runtime is the set of connections an engine process needs.
type runtime struct {
	env    config.Env
	policy config.Engine
	logger *slog.Logger

	state *store.Store
	src   *source.SQLSource
	redis *redis.Client
	cache cache.SnapshotCache
}

// openRuntime connects the engine state store, the record store and the
// board cache. A configured but unreachable Redis degrades to an
// in-process cache.
func openRuntime(ctx context.Context, opts *RootOptions, logger *slog.Logger) (*runtime, error) {
	env, policy, err := opts.settings()
	if err != nil {
		return nil, err
	}
	rt := &runtime{env: env, policy: policy, logger: logger}

	logger.Debug("opening state store", "event", "store_open", "path", env.StatePath)
	rt.state, err = store.OpenContext(ctx, env.StatePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state store", err)
	}

	logger.Debug("opening record store", "event", "source_open", "driver", env.DBDriver)
	rt.src, err = source.Open(ctx, env.DBDriver, env.DBDSN)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open record store", err)
	}
	if env.DBDriver == source.DriverSQLite {
		if err := rt.src.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, WrapExitError(ExitCommandError, "failed to prepare record store", err)
		}
	}

	rt.redis = cache.NewRedisClient(ctx, env.RedisAddr, env.RedisPass, env.RedisDB)
	switch {
	case rt.redis != nil:
		rt.cache = cache.NewRedisCache(rt.redis, policy.CacheTTL, cache.DefaultPrefix)
	case env.RedisAddr != "":
		logger.Warn("redis unreachable, using in-process board cache", "event", "cache_degraded", "addr", env.RedisAddr)
	}
	return rt, nil
}

// engine builds an engine over the runtime's stores. Extra options are
// applied after the defaults.
func (rt *runtime) engine(extra ...engine.Option) *engine.Engine {
	opts := []engine.Option{
		engine.WithConfig(rt.policy),
		engine.WithLogger(rt.logger),
	}
	if rt.cache != nil {
		opts = append(opts, engine.WithCache(rt.cache))
	}
	return engine.New(rt.src, rt.state, append(opts, extra...)...)
}

// Close releases every connection that was opened.
func (rt *runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.src != nil {
		errs = append(errs, rt.src.Close())
	}
	if rt.state != nil {
		errs = append(errs, rt.state.Close())
	}
	return errors.Join(errs...)
}

// restaurants lists the restaurants whose workers start with the engine.
func (rt *runtime) restaurants() []string {
	return config.RestaurantIDs(rt.env, rt.policy)
}
