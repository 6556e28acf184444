package awsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/singleflight"
)

// fallbackRegion is used for global calls when a profile has no region.
const fallbackRegion = "us-east-1"

// ConfigLoader loads the SDK configuration for a named profile.
type ConfigLoader func(ctx context.Context, profile string) (aws.Config, error)

// Provider caches per-profile SDK configuration, regional ElastiCache
// clients and resolved account ids. It is safe for concurrent use.
type Provider struct {
	load           ConfigLoader
	newElastiCache func(aws.Config) ElastiCacheAPI
	newSTS         func(aws.Config) STSAPI

	mu       sync.Mutex
	configs  map[string]aws.Config
	clients  map[string]ElastiCacheAPI
	accounts map[string]string
	group    singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithConfigLoader replaces the SDK config loader.
func WithConfigLoader(fn ConfigLoader) Option {
	return func(p *Provider) { p.load = fn }
}

// WithElastiCacheFactory replaces the ElastiCache client constructor.
func WithElastiCacheFactory(fn func(aws.Config) ElastiCacheAPI) Option {
	return func(p *Provider) { p.newElastiCache = fn }
}

// WithSTSFactory replaces the STS client constructor.
func WithSTSFactory(fn func(aws.Config) STSAPI) Option {
	return func(p *Provider) { p.newSTS = fn }
}

// NewProvider creates a Provider backed by the shared AWS config files.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		load: LoadProfileConfig,
		newElastiCache: func(cfg aws.Config) ElastiCacheAPI {
			return elasticache.NewFromConfig(cfg)
		},
		newSTS: func(cfg aws.Config) STSAPI {
			return sts.NewFromConfig(cfg)
		},
		configs:  make(map[string]aws.Config),
		clients:  make(map[string]ElastiCacheAPI),
		accounts: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadProfileConfig loads the SDK config for profile with SDK retries
// disabled; the scan engine applies its own retry policy.
func LoadProfileConfig(ctx context.Context, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws profile %q: %w", profile, err)
	}
	return cfg, nil
}

func (p *Provider) config(ctx context.Context, profile string) (aws.Config, error) {
	p.mu.Lock()
	cfg, ok := p.configs[profile]
	p.mu.Unlock()
	if ok {
		return cfg, nil
	}

	v, err, _ := p.group.Do("config|"+profile, func() (any, error) {
		cfg, err := p.load(ctx, profile)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.configs[profile] = cfg
		p.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return aws.Config{}, err
	}
	return v.(aws.Config), nil
}

// ElastiCache returns the ElastiCache client for (profile, region).
func (p *Provider) ElastiCache(ctx context.Context, profile, region string) (ElastiCacheAPI, error) {
	if region == "" {
		return nil, errors.New("region is required")
	}
	key := profile + "|" + region

	p.mu.Lock()
	client, ok := p.clients[key]
	p.mu.Unlock()
	if ok {
		return client, nil
	}

	cfg, err := p.config(ctx, profile)
	if err != nil {
		return nil, err
	}
	regional := cfg.Copy()
	regional.Region = region
	client = p.newElastiCache(regional)

	p.mu.Lock()
	if existing, ok := p.clients[key]; ok {
		client = existing
	} else {
		p.clients[key] = client
	}
	p.mu.Unlock()
	return client, nil
}

// AccountID resolves the account id behind profile with STS
// GetCallerIdentity. Concurrent callers for the same profile share one call;
// successful lookups are cached for the lifetime of the Provider.
func (p *Provider) AccountID(ctx context.Context, profile string) (string, error) {
	p.mu.Lock()
	id, ok := p.accounts[profile]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	v, err, _ := p.group.Do("account|"+profile, func() (any, error) {
		cfg, err := p.config(ctx, profile)
		if err != nil {
			return "", err
		}
		if cfg.Region == "" {
			cfg = cfg.Copy()
			cfg.Region = fallbackRegion
		}
		out, err := p.newSTS(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return "", fmt.Errorf("sts get caller identity: %w", err)
		}
		if out.Account == nil {
			return "", errors.New("sts get caller identity returned no account")
		}
		id := aws.ToString(out.Account)
		p.mu.Lock()
		p.accounts[profile] = id
		p.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
