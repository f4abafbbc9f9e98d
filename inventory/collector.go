package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phlukman/inventory-tag/observe"
	"github.com/phlukman/inventory-tag/resilience"
)

// RoleAssumer assumes a role in a member account.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, accountID, roleName string) (Credentials, error)
}

// Source lists one kind of resource and fetches per-item detail. AWS
// implementations live in the aws package; tests use fakes.
type Source interface {
	// Name identifies the resource kind, e.g. "iam-policies". Breaker
	// names derive from it.
	Name() string

	// ListPage returns one page of the listing. Pass the zero cursor
	// for the first page; an empty NextCursor ends the listing.
	ListPage(ctx context.Context, sess Session, cursor string) (Page, error)

	// GetDetail fetches attributes and tags for one listed item.
	GetDetail(ctx context.Context, sess Session, item Item) (Record, error)
}

// Config configures a Collector.
type Config struct {
	// MaxAccountConcurrency bounds concurrent account tasks.
	// Default: 3
	MaxAccountConcurrency int

	// MaxResourceConcurrency bounds concurrent detail fetches within
	// each account. Default: 5
	MaxResourceConcurrency int

	// AssumeRole, List and Detail configure the three shared circuit
	// breakers. Thresholds default to 3/3/5 failures with 60s/30s/15s
	// recovery windows.
	AssumeRole resilience.CircuitBreakerConfig
	List       resilience.CircuitBreakerConfig
	Detail     resilience.CircuitBreakerConfig

	// Logger receives engine events. Defaults to a nop logger.
	Logger observe.Logger

	// Metrics receives engine counters. Optional.
	Metrics *observe.Metrics
}

// Collector runs the two-tier bounded fan-out over accounts and
// resources. Its breakers are shared by all workers; everything else it
// touches per account is task-local.
type Collector struct {
	assumer      RoleAssumer
	source       Source
	maxAccounts  int
	maxResources int
	assumeCB     *resilience.CircuitBreaker
	listCB       *resilience.CircuitBreaker
	detailCB     *resilience.CircuitBreaker
	log          observe.Logger
	metrics      *observe.Metrics
}

// NewCollector creates a collector for one resource source.
func NewCollector(assumer RoleAssumer, source Source, config Config) *Collector {
	// Apply defaults
	if config.MaxAccountConcurrency <= 0 {
		config.MaxAccountConcurrency = 3
	}
	if config.MaxResourceConcurrency <= 0 {
		config.MaxResourceConcurrency = 5
	}
	if config.Logger == nil {
		config.Logger = observe.NewNop()
	}
	if config.AssumeRole.FailureThreshold <= 0 {
		config.AssumeRole.FailureThreshold = 3
	}
	if config.AssumeRole.RecoveryTimeout <= 0 {
		config.AssumeRole.RecoveryTimeout = 60 * time.Second
	}
	if config.List.FailureThreshold <= 0 {
		config.List.FailureThreshold = 3
	}
	if config.List.RecoveryTimeout <= 0 {
		config.List.RecoveryTimeout = 30 * time.Second
	}
	if config.Detail.FailureThreshold <= 0 {
		config.Detail.FailureThreshold = 5
	}
	if config.Detail.RecoveryTimeout <= 0 {
		config.Detail.RecoveryTimeout = 15 * time.Second
	}

	c := &Collector{
		assumer:      assumer,
		source:       source,
		maxAccounts:  config.MaxAccountConcurrency,
		maxResources: config.MaxResourceConcurrency,
		log:          config.Logger,
		metrics:      config.Metrics,
	}

	config.AssumeRole.OnStateChange = c.onStateChange(config.AssumeRole.OnStateChange)
	config.List.OnStateChange = c.onStateChange(config.List.OnStateChange)
	config.Detail.OnStateChange = c.onStateChange(config.Detail.OnStateChange)

	c.assumeCB = resilience.NewCircuitBreaker("assume-role", config.AssumeRole)
	c.listCB = resilience.NewCircuitBreaker(source.Name()+"-list", config.List)
	c.detailCB = resilience.NewCircuitBreaker(source.Name()+"-detail", config.Detail)

	return c
}

func (c *Collector) onStateChange(next func(string, resilience.State, resilience.State)) func(string, resilience.State, resilience.State) {
	return func(name string, from, to resilience.State) {
		ctx := context.Background()
		c.log.Warn(ctx, "circuit state change",
			observe.Field{Key: "breaker", Value: name},
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
		c.metrics.RecordTransition(ctx, name, from.String(), to.String())
		if next != nil {
			next(name, from, to)
		}
	}
}

// Collect processes every account task and returns one AccountResult
// per task plus the global summary. It never returns an error: partial
// and total failure are both expressed in the Result.
func (c *Collector) Collect(ctx context.Context, tasks []AccountTask) *Result {
	start := time.Now()
	result := &Result{
		Accounts: make(map[string]*AccountResult, len(tasks)),
	}

	c.log.Info(ctx, "starting collection",
		observe.Field{Key: "source", Value: c.source.Name()},
		observe.Field{Key: "accounts", Value: len(tasks)},
		observe.Field{Key: "account_concurrency", Value: c.maxAccounts},
		observe.Field{Key: "resource_concurrency", Value: c.maxResources},
	)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.maxAccounts)

	for _, task := range tasks {
		g.Go(func() error {
			account := c.collectAccount(ctx, task)
			c.metrics.RecordAccount(ctx, task.AccountID, string(account.Status))

			// Each task owns its own key; only the insertion races.
			mu.Lock()
			result.Accounts[task.AccountID] = account
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Summary = c.summarize(result, len(tasks), time.Since(start))
	c.metrics.RecordCollection(ctx, result.Summary.Duration, len(tasks))

	c.log.Info(ctx, "collection finished",
		observe.Field{Key: "source", Value: c.source.Name()},
		observe.Field{Key: "successful_accounts", Value: result.Summary.SuccessfulAccounts},
		observe.Field{Key: "failed_accounts", Value: result.Summary.FailedAccounts},
		observe.Field{Key: "circuit_open_accounts", Value: result.Summary.CircuitOpenAccounts},
		observe.Field{Key: "total_resources", Value: result.Summary.TotalResources},
		observe.Field{Key: "duration", Value: result.Summary.Duration.String()},
	)
	return result
}

func (c *Collector) collectAccount(ctx context.Context, task AccountTask) *AccountResult {
	log := c.log.With(observe.Field{Key: "account_id", Value: task.AccountID})

	// Role assumption, guarded. No fallback: a blocked call surfaces
	// ErrCircuitOpen, which maps to the circuit_open status.
	sessGuard := resilience.Guard[Session]{Breaker: c.assumeCB}
	sess, err := sessGuard.Do(ctx, func(ctx context.Context) (Session, error) {
		creds, err := c.assumer.AssumeRole(ctx, task.AccountID, task.RoleName)
		if err != nil {
			return Session{}, err
		}
		return Session{
			AccountID:   task.AccountID,
			Region:      task.Region,
			Credentials: creds,
		}, nil
	})
	if err != nil {
		log.Error(ctx, "role assumption failed",
			observe.Field{Key: "role", Value: task.RoleName},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return c.failedResult(task.AccountID, "assume-role", err)
	}

	// Drain the paginated listing, each page guarded. A failed page
	// fails the account; pages already fetched are not retried.
	listGuard := resilience.Guard[Page]{Breaker: c.listCB}
	var items []Item
	cursor := ""
	for {
		page, err := listGuard.Do(ctx, func(ctx context.Context) (Page, error) {
			return c.source.ListPage(ctx, sess, cursor)
		})
		if err != nil {
			log.Error(ctx, "resource listing failed",
				observe.Field{Key: "source", Value: c.source.Name()},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return c.failedResult(task.AccountID, c.source.Name()+"-list", err)
		}
		items = append(items, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	// Per-item detail fetches in the account-scoped inner pool.
	// Item failures drop that item and never abort siblings.
	var (
		rmu     sync.Mutex
		records = make([]Record, 0, len(items))
		failed  int
	)
	rg := new(errgroup.Group)
	rg.SetLimit(c.maxResources)

	for _, item := range items {
		rg.Go(func() error {
			detailGuard := resilience.Guard[Record]{Breaker: c.detailCB}
			record, err := detailGuard.Do(ctx, func(ctx context.Context) (Record, error) {
				return c.source.GetDetail(ctx, sess, item)
			})

			rmu.Lock()
			defer rmu.Unlock()
			if err != nil {
				failed++
				log.Warn(ctx, "detail fetch failed",
					observe.Field{Key: "item_id", Value: item.ID},
					observe.Field{Key: "error", Value: err.Error()},
				)
				return nil
			}
			records = append(records, record)
			return nil
		})
	}
	_ = rg.Wait()

	// Completion order varies; the reported sequence does not.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	stats := computeStatistics(records, failed)
	c.metrics.RecordResources(ctx, task.AccountID, stats.Total, failed)

	log.Info(ctx, "account collected",
		observe.Field{Key: "total", Value: stats.Total},
		observe.Field{Key: "tagged", Value: stats.Tagged},
		observe.Field{Key: "untagged", Value: stats.Untagged},
		observe.Field{Key: "failed_items", Value: failed},
	)

	return &AccountResult{
		AccountID:  task.AccountID,
		Status:     StatusSuccess,
		Items:      records,
		Statistics: stats,
	}
}

func (c *Collector) failedResult(accountID, operation string, err error) *AccountResult {
	status := StatusFailed
	if errors.Is(err, resilience.ErrCircuitOpen) {
		status = StatusCircuitOpen
	}
	return &AccountResult{
		AccountID: accountID,
		Status:    status,
		Items:     []Record{},
		Error: &ErrorDetail{
			Operation: operation,
			Kind:      resilience.Classify(err).String(),
			Message:   err.Error(),
		},
	}
}

func (c *Collector) summarize(result *Result, totalAccounts int, elapsed time.Duration) Summary {
	s := Summary{
		TotalAccounts: totalAccounts,
		Duration:      elapsed,
		CircuitStates: map[string]string{
			c.assumeCB.Name(): c.assumeCB.State().String(),
			c.listCB.Name():   c.listCB.State().String(),
			c.detailCB.Name(): c.detailCB.State().String(),
		},
	}

	for _, account := range result.Accounts {
		switch account.Status {
		case StatusSuccess:
			s.SuccessfulAccounts++
		case StatusFailed:
			s.FailedAccounts++
		case StatusCircuitOpen:
			s.CircuitOpenAccounts++
		}
		s.TotalResources += account.Statistics.Total
		s.TaggedResources += account.Statistics.Tagged
		s.UntaggedResources += account.Statistics.Untagged
	}

	if s.TotalResources > 0 {
		s.TaggingPercent = float64(s.TaggedResources) / float64(s.TotalResources) * 100
	}
	return s
}

func computeStatistics(records []Record, failed int) Statistics {
	stats := Statistics{
		Total:       len(records),
		FailedItems: failed,
	}
	for _, r := range records {
		if r.Tagged() {
			stats.Tagged++
		} else {
			stats.Untagged++
		}
	}
	if stats.Total > 0 {
		stats.TaggingPercent = float64(stats.Tagged) / float64(stats.Total) * 100
	}
	return stats
}
