package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/werf/logboek"
	"github.com/werf/logboek/pkg/level"

	"github.com/werf/scanjob/pkg/cluster"
	"github.com/werf/scanjob/pkg/config"
	"github.com/werf/scanjob/pkg/display"
	"github.com/werf/scanjob/pkg/kube"
	"github.com/werf/scanjob/pkg/metrics"
	"github.com/werf/scanjob/pkg/orchestrator"
	"github.com/werf/scanjob/pkg/report"
	"github.com/werf/scanjob/pkg/storage"
)

var version = "dev"

const metricsPushTimeout = 10 * time.Second

func main() {
	klog.SetOutput(io.Discard)
	klog.LogToStderr(false)

	rootCmd := &cobra.Command{
		Use:           "scanjob",
		Short:         "Run a scanner job in Kubernetes and ship its report to S3",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var exitCode int
	rootCmd.AddCommand(newRunCmd(&exitCode), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newRunCmd(exitCode *int) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply the job, wait for it, upload its log and delete it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			*exitCode = run(cfg)
			return nil
		},
	}

	defaults := config.Defaults()
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML file with settings, overridden by env and flags")
	flags.String(config.Bucket, defaults.Bucket, "S3 bucket the report is uploaded to")
	flags.String(config.Region, defaults.Region, "AWS region of the bucket")
	flags.String(config.JobName, defaults.JobName, "Name of the job defined by the manifest")
	flags.String(config.Manifest, defaults.Manifest, "Path to the job manifest")
	flags.StringP(config.Namespace, "n", defaults.Namespace, "Kubernetes namespace of the job")
	flags.Duration(config.Timeout, defaults.Timeout, "How long to wait for the job to complete")
	flags.String(config.BaseFolder, defaults.BaseFolder, "Key prefix the dated report folders are created under; folder dates and timestamps are in UTC")
	flags.Int64(config.FailureTailLines, defaults.FailureTailLines, "Log lines captured from a failed job, 0 for the whole log")
	flags.Bool(config.StripANSI, defaults.StripANSI, "Strip terminal escape sequences from the report")
	flags.String(config.PushgatewayURL, defaults.PushgatewayURL, "Prometheus Pushgateway to push run metrics to")
	flags.String(config.KubeContext, defaults.KubeContext, "The name of the kubeconfig context to use")
	flags.String(config.KubeConfig, defaults.KubeConfig, "Path to the kubeconfig file")
	flags.String(config.KubeConfigBase64, defaults.KubeConfigBase64, "Kubeconfig data encoded with base64")
	flags.Bool(config.Debug, defaults.Debug, "Verbose output, including client-go logs")

	return cmd
}

// loadConfig layers defaults, the config file, env and explicitly set flags.
func loadConfig(path string, flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Defaults()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	var flagErr error
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || flagErr != nil {
			return
		}
		flagErr = cfg.Set(f.Name, f.Value.String())
	})
	if flagErr != nil {
		return cfg, flagErr
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config) int {
	logger := logboek.NewLogger(display.Out, display.Err)
	if cfg.Debug {
		logger.SetAcceptedLevel(level.Debug)
		klog.SetOutput(display.Err)
		klog.LogToStderr(true)
	}

	ctx, stop := signal.NotifyContext(logboek.NewContext(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kube.Init(kube.InitOptions{KubeConfigOptions: kube.KubeConfigOptions{
		Context:          cfg.KubeContext,
		ConfigPath:       cfg.KubeConfig,
		ConfigDataBase64: cfg.KubeConfigBase64,
	}}); err != nil {
		display.StatusLine(false, "unable to initialize kubernetes client: %s", err)
		return 1
	}
	logboek.Context(ctx).Debug().LogF("Using kube context %q (default namespace %q), job namespace %q\n", kube.Context, kube.DefaultNamespace, cfg.Namespace)

	storageClient, err := storage.NewS3Client(ctx, cfg.Region)
	if err != nil {
		display.StatusLine(false, "unable to initialize storage client: %s", err)
		return 1
	}

	result := orchestrator.New(cfg, cluster.NewKubeClient(kube.Client), storageClient).Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushMetrics(ctx, cfg, result)
	}

	switch {
	case result.Err != nil:
		display.StatusLine(false, "%s: %s", result.Outcome, result.Err)
	case result.ReportKey != "":
		display.StatusLine(true, "report uploaded to %s", report.URI(cfg.Bucket, result.ReportKey))
	default:
		display.StatusLine(true, "job completed with an empty log, nothing uploaded")
	}

	return result.ExitCode
}

func pushMetrics(ctx context.Context, cfg config.Config, result orchestrator.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()

	err := metrics.Push(ctx, cfg.PushgatewayURL, metrics.Run{
		JobName:    cfg.JobName,
		Namespace:  cfg.Namespace,
		Result:     result,
		FinishedAt: float64(time.Now().Unix()),
	})
	if err != nil {
		logboek.Context(ctx).Warn().LogF("WARNING: %s\n", err)
	}
}
