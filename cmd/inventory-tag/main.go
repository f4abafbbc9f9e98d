// Command inventory-tag collects resource tag inventories across the
// member accounts of an AWS organization and publishes the results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	snsv2 "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/phlukman/inventory-tag/aws"
	"github.com/phlukman/inventory-tag/inventory"
	"github.com/phlukman/inventory-tag/lock"
	"github.com/phlukman/inventory-tag/observe"
	"github.com/phlukman/inventory-tag/report"
	"github.com/phlukman/inventory-tag/resilience"
	"github.com/phlukman/inventory-tag/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "inventory-tag",
		Usage: "multi-account AWS resource tag inventory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn, or error",
				Value:   "info",
				Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL")),
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region override",
				Sources: cli.NewValueSourceChain(cli.EnvVar("AWS_REGION")),
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "emit metrics to stdout on exit",
			},
		},
		Commands: []*cli.Command{
			collectCommand(),
			reportCommand(),
		},
	}
}

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "inventory resources across member accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "accounts",
				Usage:   "comma-separated member account ids",
				Sources: cli.NewValueSourceChain(cli.EnvVar("MEMBER_ACCOUNTS")),
			},
			&cli.StringFlag{
				Name:    "ou",
				Usage:   "organizational unit to discover accounts under (alternative to --accounts)",
				Sources: cli.NewValueSourceChain(cli.EnvVar("PARENT_OU_ID")),
			},
			&cli.StringFlag{
				Name:    "role",
				Usage:   "role to assume in member accounts",
				Value:   "EvMSCIDBInventoryMemberAccountRole",
				Sources: cli.NewValueSourceChain(cli.EnvVar("MEMBER_ACCOUNTS_ROLE")),
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "resource source: iam-policies, ec2-images, kms-keys, or s3-buckets",
				Value: "iam-policies",
			},
			&cli.IntFlag{
				Name:    "max-accounts",
				Usage:   "account-level concurrency",
				Value:   3,
				Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_ACCOUNTS_CONCURRENCY")),
			},
			&cli.IntFlag{
				Name:    "max-resources",
				Usage:   "per-account resource concurrency",
				Value:   5,
				Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_WORKERS")),
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "write the result JSON to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "topic",
				Usage:   "SNS topic ARN for the run summary",
				Sources: cli.NewValueSourceChain(cli.EnvVar("SNS_TOPIC_ARN")),
			},
		},
		Action: collectAction,
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "merge a collect result into the shared CSV report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Usage:    "collect result JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "bucket",
				Usage:    "report bucket",
				Sources:  cli.NewValueSourceChain(cli.EnvVar("BUCKET_NAME")),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "prefix",
				Usage:   "report key prefix",
				Value:   "cidb-2.0",
				Sources: cli.NewValueSourceChain(cli.EnvVar("REPORT_PREFIX")),
			},
			&cli.IntFlag{
				Name:    "lock-timeout",
				Usage:   "lock staleness timeout in seconds",
				Value:   60,
				Sources: cli.NewValueSourceChain(cli.EnvVar("LOCK_TIMEOUT_SECONDS")),
			},
			&cli.IntFlag{
				Name:    "lock-max-attempts",
				Usage:   "lock acquisition attempts before giving up",
				Value:   5,
				Sources: cli.NewValueSourceChain(cli.EnvVar("LOCK_MAX_ATTEMPTS")),
			},
		},
		Action: reportAction,
	}
}

func collectAction(ctx context.Context, cmd *cli.Command) error {
	log := observe.NewLogger(cmd.String("log-level"))
	metrics, flush, err := setupMetrics(cmd.Bool("metrics"))
	if err != nil {
		return err
	}
	defer flush(ctx)

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	tasks, err := resolveTasks(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no accounts to process: set --accounts or --ou")
	}

	source, err := sourceByName(cmd.String("source"), cfg)
	if err != nil {
		return err
	}

	collector := inventory.NewCollector(aws.NewAssumer(sts.NewFromConfig(cfg)), source, inventory.Config{
		MaxAccountConcurrency:  int(cmd.Int("max-accounts")),
		MaxResourceConcurrency: int(cmd.Int("max-resources")),
		Logger:                 log,
		Metrics:                metrics,
	})

	result := collector.Collect(ctx, tasks)

	if topic := cmd.String("topic"); topic != "" {
		if err := publishSummary(ctx, cfg, topic, result, log); err != nil {
			log.Error(ctx, "summary publish failed", observe.Field{Key: "error", Value: err.Error()})
		}
	}

	return writeResult(cmd.String("output"), result)
}

func reportAction(ctx context.Context, cmd *cli.Command) error {
	log := observe.NewLogger(cmd.String("log-level"))

	body, err := os.ReadFile(cmd.String("input"))
	if err != nil {
		return err
	}
	var result inventory.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse %s: %w", cmd.String("input"), err)
	}

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	st := store.NewS3Store(s3v2.NewFromConfig(cfg), cmd.String("bucket"))
	locker := lock.New(st, lock.Config{
		Timeout:     time.Duration(cmd.Int("lock-timeout")) * time.Second,
		MaxAttempts: int(cmd.Int("lock-max-attempts")),
		Backoff:     resilience.BackoffConfig{},
		Logger:      log,
	})

	key := report.ObjectKey(cmd.String("prefix"), time.Now())
	writer := report.NewWriter(st, locker, log)
	if err := writer.Write(ctx, key, result.AllRecords()); err != nil {
		return err
	}

	log.Info(ctx, "report merged",
		observe.Field{Key: "bucket", Value: cmd.String("bucket")},
		observe.Field{Key: "key", Value: key},
	)
	return nil
}

func loadConfig(ctx context.Context, cmd *cli.Command) (awsv2.Config, error) {
	var opts []aws.Option
	if region := cmd.String("region"); region != "" {
		opts = append(opts, aws.WithRegion(region))
	}
	return aws.LoadConfig(ctx, opts...)
}

// resolveTasks turns --accounts or an --ou discovery walk into
// collector tasks.
func resolveTasks(ctx context.Context, cmd *cli.Command, cfg awsv2.Config) ([]inventory.AccountTask, error) {
	role := cmd.String("role")
	region := cfg.Region

	if list := cmd.String("accounts"); list != "" {
		var tasks []inventory.AccountTask
		for _, id := range strings.Split(list, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			tasks = append(tasks, inventory.AccountTask{AccountID: id, RoleName: role, Region: region})
		}
		return tasks, nil
	}

	ou := cmd.String("ou")
	if ou == "" {
		return nil, nil
	}
	accounts, err := aws.DiscoverAccounts(ctx, organizations.NewFromConfig(cfg), ou)
	if err != nil {
		return nil, err
	}
	return aws.Tasks(accounts, role, region), nil
}

func sourceByName(name string, cfg awsv2.Config) (inventory.Source, error) {
	switch name {
	case "iam-policies":
		return aws.NewPolicySource(cfg), nil
	case "ec2-images":
		return aws.NewImageSource(cfg), nil
	case "kms-keys":
		return aws.NewKeySource(cfg), nil
	case "s3-buckets":
		return aws.NewBucketSource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}

func publishSummary(ctx context.Context, cfg awsv2.Config, topic string, result *inventory.Result, log observe.Logger) error {
	body, err := json.Marshal(result.Summary)
	if err != nil {
		return err
	}

	status := "success"
	if result.Summary.FailedAccounts > 0 || result.Summary.CircuitOpenAccounts > 0 {
		status = "partial"
	}

	publisher := aws.NewPublisher(snsv2.NewFromConfig(cfg), topic, log)
	_, err = publisher.Publish(ctx, string(body), map[string]string{
		"status": status,
		"source": "inventory-tag",
	})
	return err
}

func writeResult(path string, result *inventory.Result) error {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Println(string(body))
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

// setupMetrics installs a stdout meter provider when enabled. The
// returned flush pushes any accumulated readings before exit.
func setupMetrics(enabled bool) (*observe.Metrics, func(context.Context), error) {
	if !enabled {
		return nil, func(context.Context) {}, nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)

	metrics, err := observe.NewMetrics(nil)
	if err != nil {
		return nil, nil, err
	}
	flush := func(ctx context.Context) {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}
	return metrics, flush, nil
}
