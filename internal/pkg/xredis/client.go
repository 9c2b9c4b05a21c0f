package xredis

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewClient builds and pings a redis client from config. URL mode wins over
// addr mode; explicit credential/DB fields override whatever the URL carries.
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

func options(cfg Config) (*redis.Options, error) {
	var (
		opts *redis.Options
		err  error
	)

	switch {
	case cfg.URL != "":
		opts, err = redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
	case strings.TrimSpace(cfg.Addr) != "":
		opts = &redis.Options{Addr: strings.TrimSpace(cfg.Addr)}
	default:
		return nil, errors.New("redis addr or url is required")
	}

	if cfg.Username != "" {
		opts.Username = cfg.Username
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.DB != nil {
		opts.DB = *cfg.DB
	}

	if cfg.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if opts.TLSConfig != nil {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
		opts.TLSConfig.InsecureSkipVerify = cfg.TLSInsecureSkipVerify // #nosec G402 -- operator controlled
	} else if cfg.TLSInsecureSkipVerify {
		return nil, errors.New("tls_insecure_skip_verify requires tls=true or a rediss:// url")
	}

	return opts, nil
}
