// Package collector scans the ElastiCache resources of one profile/region
// pair and normalizes them into resource.Resource values.
package collector

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/LeoncioXavier/elasticache-inventory/internal/awsclient"
	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/internal/filter"
	"github.com/LeoncioXavier/elasticache-inventory/internal/retry"
	"github.com/LeoncioXavier/elasticache-inventory/internal/telemetry"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// ClientProvider hands out AWS clients for a profile and region.
type ClientProvider interface {
	ElastiCache(ctx context.Context, profile, region string) (awsclient.ElastiCacheAPI, error)
	AccountID(ctx context.Context, profile string) (string, error)
}

// Options selects what a task collects.
type Options struct {
	IncludeClusters          bool
	IncludeReplicationGroups bool
	// NodeInfo requests per-node detail: one extra describe call per
	// replication group member.
	NodeInfo bool
	// Tags are the tag names copied onto each resource.
	Tags        []string
	IncludeTags map[string]string
	ExcludeTags map[string]string
}

func (o Options) filter() *filter.Filter {
	return filter.ForTypes(o.IncludeClusters, o.IncludeReplicationGroups, o.IncludeTags, o.ExcludeTags)
}

// tagKeys returns the sorted union of requested and filter tag names. Only
// the requested ones end up on the resource.
func (o Options) tagKeys(f *filter.Filter) []string {
	keys := append(slices.Clone(o.Tags), f.TagKeys()...)
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Task is one unit of work: a single profile in a single region.
type Task struct {
	Profile string
	Region  string
	Options Options
}

func (t Task) String() string {
	return t.Profile + "@" + t.Region
}

// TaskResult is the outcome of one Task. Exactly one of Resources (possibly
// empty) or Failure is meaningful.
type TaskResult struct {
	Task      Task
	Resources []resource.Resource
	Failure   *failure.Record
	Warnings  []string
	Attempts  int
	Duration  time.Duration
}

// OK reports whether the task succeeded.
func (r TaskResult) OK() bool {
	return r.Failure == nil
}

// Collector runs scan tasks against AWS.
type Collector struct {
	clients   ClientProvider
	policy    retry.Policy
	sleep     retry.SleepFunc
	limiter   *rate.Limiter
	telemetry *telemetry.Provider
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithRetryPolicy sets the retry policy applied to every API call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Collector) { c.policy = p }
}

// WithSleep replaces the backoff sleep (tests).
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Collector) { c.sleep = fn }
}

// WithLimiter shares a request rate limiter across tasks.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Collector) { c.limiter = l }
}

// WithTelemetry records retries through the given provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(c *Collector) { c.telemetry = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a Collector.
func New(clients ClientProvider, opts ...Option) *Collector {
	c := &Collector{
		clients:   clients,
		policy:    retry.DefaultPolicy(),
		sleep:     retry.Sleep,
		telemetry: telemetry.Noop(),
		logger:    log.Logger.With().Str("component", "collector").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewLimiter returns a limiter for rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Collect runs one task. It never returns an error or panics; every failure
// is reported in TaskResult.Failure.
func (c *Collector) Collect(ctx context.Context, task Task) (result TaskResult) {
	start := time.Now()
	result.Task = task

	s := &scan{
		c:      c,
		task:   task,
		filter: task.Options.filter(),
		at:     c.now().UTC(),
		logger: c.logger.With().Str("profile", task.Profile).Str("region", task.Region).Logger(),
	}
	s.tagKeys = task.Options.tagKeys(s.filter)
	s.retrier = retry.New(c.policy,
		retry.WithSleep(c.sleep),
		retry.WithNotify(s.onRetry(ctx)),
	)

	defer func() {
		if r := recover(); r != nil {
			rec := failure.NewRecord(task.Profile, task.Region, fmt.Errorf("collector panic: %v", r))
			result.Resources = nil
			result.Failure = &rec
		}
		result.Attempts = s.attempts
		result.Warnings = s.warnings
		result.Duration = time.Since(start)
	}()

	resources, err := s.run(ctx)
	if err != nil {
		rec := failure.NewRecord(task.Profile, task.Region, err)
		result.Failure = &rec
		return result
	}
	result.Resources = s.requestedTagsOnly(s.filter.FilterResources(resources))
	return result
}

// scan holds the per-task state of one Collect call.
type scan struct {
	c       *Collector
	task    Task
	filter  *filter.Filter
	tagKeys []string
	at      time.Time
	retrier *retry.Retrier
	logger  zerolog.Logger

	attempts int
	warnings []string
}

// requestedTagsOnly drops the tags fetched only for the include/exclude rules
// and recomputes the fingerprint.
func (s *scan) requestedTagsOnly(resources []resource.Resource) []resource.Resource {
	if s.filter.HasNoTagRules() {
		return resources
	}
	out := make([]resource.Resource, 0, len(resources))
	for _, r := range resources {
		var tags map[string]string
		for _, k := range s.task.Options.Tags {
			if v, ok := r.Tags[k]; ok {
				if tags == nil {
					tags = make(map[string]string, len(s.task.Options.Tags))
				}
				tags[k] = v
			}
		}
		out = append(out, resource.New(r.Identity, r.AccountID, r.ARN, r.Attrs, tags, r.ScannedAt))
	}
	return out
}

func (s *scan) onRetry(ctx context.Context) func(int, failure.Classification, time.Duration) {
	return func(attempt int, cl failure.Classification, wait time.Duration) {
		s.c.telemetry.RecordRetry(ctx, s.task.Profile, s.task.Region, string(cl.Kind))
		s.logger.Debug().
			Int("attempt", attempt).
			Str("kind", string(cl.Kind)).
			Dur("wait", wait).
			Msg("retrying api call")
	}
}

// call runs fn under the retry policy and the shared limiter.
func (s *scan) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	n, err := s.retrier.Do(ctx, func(ctx context.Context) error {
		if s.c.limiter != nil {
			if err := s.c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
	s.attempts += n
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *scan) warn(err error, msg string) {
	s.warnings = append(s.warnings, fmt.Sprintf("%s: %v", msg, err))
	s.logger.Warn().Err(err).Msg(msg)
}

func (s *scan) run(ctx context.Context) ([]resource.Resource, error) {
	client, err := s.c.clients.ElastiCache(ctx, s.task.Profile, s.task.Region)
	if err != nil {
		return nil, fmt.Errorf("elasticache client: %w", err)
	}

	var accountID string
	err = s.call(ctx, "get caller identity", func(ctx context.Context) error {
		id, err := s.c.clients.AccountID(ctx, s.task.Profile)
		accountID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	var resources []resource.Resource
	for _, typ := range s.filter.ScannedTypes() {
		var (
			found []resource.Resource
			err   error
		)
		switch typ {
		case resource.TypeReplicationGroup:
			found, err = s.scanReplicationGroups(ctx, client, accountID)
		case resource.TypeCluster:
			found, err = s.scanCacheClusters(ctx, client, accountID)
		}
		if err != nil {
			return nil, err
		}
		resources = append(resources, found...)
	}
	return resources, nil
}
