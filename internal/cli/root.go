package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/build"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/scheduler"
	"github.com/spf13/cobra"
)

const (
	EnvCacheAccessKey = "GUTENBERG_CACHE_ACCESS_KEY"
	EnvCacheSecretKey = "GUTENBERG_CACHE_SECRET_KEY"
)

var (
	cfgFile              string
	htmlPatternsFile     string
	cacheDir             string
	scratchDir           string
	catalogPath          string
	languages            []string
	formats              []string
	onlyBooks            []int
	force                bool
	mirrorURL            string
	imageBaseURL         string
	listMirror           bool
	remoteCacheEndpoint  string
	remoteCacheBucket    string
	concurrency          int
	coverConcurrency     int
	baseDelay            time.Duration
	jitter               time.Duration
	randomSeed           int64
	maxRequestsPerSecond float64
	maxAttempt           int
	timeout              time.Duration
	probeTimeout         time.Duration
	userAgent            string
	logLevel             string
	logFormat            string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gutenberg-fetch",
	Short: "Download Project Gutenberg books and covers into a local cache.",
	Long: `gutenberg-fetch walks the book catalog and lands every requested format
(html, epub, pdf) and each cover image into a per-book directory tree.

For every book and format it tries the local cache first, then the remote
optimized-artifact cache, then the archive mirror, probing the candidate
URLs a mirror is known to publish until one works. Re-running against a
populated cache makes no network requests.`,
	Version:      build.FullVersion(),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}

		logger, err := NewLogger(cmd.ErrOrStderr(), cfg.LogLevel(), cfg.LogFormat())
		if err != nil {
			return err
		}
		logger.Info("starting gutenberg-fetch",
			slog.String("version", build.FullVersion()),
			slog.String("cache_dir", cfg.CacheDir()),
			slog.String("catalog", cfg.CatalogPath()),
			slog.Any("formats", config.RequestedKinds(cfg.Formats())),
		)

		s, err := scheduler.NewScheduler(cfg, logger)
		if err != nil {
			return fmt.Errorf("error wiring downloader: %w", err)
		}
		defer s.Close()

		report, runErr := s.Execute(cmd.Context())
		PrintReport(cmd.OutOrStdout(), report)
		return runErr
	},
}

// Execute runs the root command under ctx and exits non-zero on failure.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gutenberg-fetch %s (built %s)\n", build.FullVersion(), build.BuildTime))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config-file", "", "JSON config file path, comments allowed (e.g., /home/myuser/gutenberg.jsonc)")
	flags.StringVar(&htmlPatternsFile, "html-patterns-file", "", "YAML file replacing the built-in html pattern table")
	flags.StringVar(&cacheDir, "cache-dir", config.DefaultCacheDir, "root of the per-book download tree")
	flags.StringVar(&scratchDir, "scratch-dir", "", "directory archives are unpacked in (defaults to the OS temp dir)")
	flags.StringVar(&catalogPath, "catalog", "", "SQLite catalog file")
	flags.StringSliceVar(&languages, "language", []string{}, "only fetch books in these languages (can be repeated)")
	flags.StringSliceVar(&formats, "format", []string{}, "formats to fetch: html, epub, pdf (can be repeated; html is always fetched)")
	flags.IntSliceVar(&onlyBooks, "book", []int{}, "only fetch these book ids (can be repeated)")
	flags.BoolVar(&force, "force", false, "download again even when the file is already on disk")
	flags.StringVar(&mirrorURL, "mirror-url", "", "base URL of the archive mirror")
	flags.StringVar(&imageBaseURL, "image-base-url", "", "base URL cover images are published under")
	flags.BoolVar(&listMirror, "list-mirror", false, "also read the mirror's directory listing for candidate files")
	flags.StringVar(&remoteCacheEndpoint, "remote-cache-endpoint", "", "optimized-artifact cache endpoint (empty disables the remote cache)")
	flags.StringVar(&remoteCacheBucket, "remote-cache-bucket", "", "optimized-artifact cache bucket")
	flags.IntVar(&concurrency, "concurrency", 0, "number of books downloaded in parallel")
	flags.IntVar(&coverConcurrency, "cover-concurrency", 0, "number of covers downloaded in parallel")
	flags.DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	flags.DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	flags.Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	flags.Float64Var(&maxRequestsPerSecond, "max-rps", 0, "global request rate cap across all workers (0 for unlimited)")
	flags.IntVar(&maxAttempt, "max-attempt", 0, "maximum attempts per download")
	flags.DurationVar(&timeout, "timeout", 0, "timeout for a single download")
	flags.DurationVar(&probeTimeout, "probe-timeout", 0, "timeout for an existence probe")
	flags.StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "log format: text, json")
}

// InitConfigWithError builds the run configuration from the config file
// when one is given, or from the flags otherwise. Remote cache credentials
// and the html pattern file apply in both cases.
func InitConfigWithError() (config.Config, error) {
	var configBuilder *config.Config

	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error initializing config from file: %w", err)
		}
		configBuilder = &cfg
	} else {
		configBuilder = builderFromFlags()
	}

	if remote, ok := remoteCacheFromEnv(configBuilder.RemoteCache()); ok {
		configBuilder = configBuilder.WithRemoteCache(remote)
	}

	if htmlPatternsFile != "" {
		patterns, err := config.LoadHTMLPatterns(htmlPatternsFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error loading html patterns: %w", err)
		}
		configBuilder = configBuilder.WithHTMLPatterns(patterns)
	}

	return configBuilder.Build()
}

func builderFromFlags() *config.Config {
	dir := cacheDir
	if dir == "" {
		dir = config.DefaultCacheDir
	}
	configBuilder := config.WithDefault(dir)

	if len(languages) > 0 {
		configBuilder = configBuilder.WithLanguages(languages)
	}

	if len(formats) > 0 {
		configBuilder = configBuilder.WithFormats(formats)
	}

	if len(onlyBooks) > 0 {
		configBuilder = configBuilder.WithOnlyBooks(onlyBooks)
	}

	if force {
		configBuilder = configBuilder.WithForce(force)
	}

	if scratchDir != "" {
		configBuilder = configBuilder.WithScratchDir(scratchDir)
	}

	if catalogPath != "" {
		configBuilder = configBuilder.WithCatalogPath(catalogPath)
	}

	if mirrorURL != "" {
		configBuilder = configBuilder.WithMirrorURL(mirrorURL)
	}

	if imageBaseURL != "" {
		configBuilder = configBuilder.WithImageBaseURL(imageBaseURL)
	}

	if listMirror {
		configBuilder = configBuilder.WithListMirror(listMirror)
	}

	if remoteCacheEndpoint != "" {
		configBuilder = configBuilder.WithRemoteCache(config.RemoteCache{
			Endpoint: remoteCacheEndpoint,
			Bucket:   remoteCacheBucket,
		})
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if coverConcurrency > 0 {
		configBuilder = configBuilder.WithCoverConcurrency(coverConcurrency)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if maxRequestsPerSecond > 0 {
		configBuilder = configBuilder.WithMaxRequestsPerSecond(maxRequestsPerSecond)
	}

	if maxAttempt > 0 {
		configBuilder = configBuilder.WithMaxAttempt(maxAttempt)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if probeTimeout > 0 {
		configBuilder = configBuilder.WithProbeTimeout(probeTimeout)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}

	if logFormat != "" {
		configBuilder = configBuilder.WithLogFormat(logFormat)
	}

	return configBuilder
}

// remoteCacheFromEnv fills missing remote cache credentials from the environment.
func remoteCacheFromEnv(remote config.RemoteCache) (config.RemoteCache, bool) {
	changed := false
	if v := os.Getenv(EnvCacheAccessKey); v != "" && remote.AccessKey == "" {
		remote.AccessKey = v
		changed = true
	}
	if v := os.Getenv(EnvCacheSecretKey); v != "" && remote.SecretKey == "" {
		remote.SecretKey = v
		changed = true
	}
	return remote, changed
}

// NewLogger builds the process logger writing to w.
func NewLogger(w io.Writer, level string, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: unknown log level %q", config.ErrInvalidConfig, level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", config.ErrInvalidConfig, format)
	}
}

// PrintReport writes the end-of-run summary. Abandoned and failed kinds
// are listed one per line so a single book can be re-run with --book.
func PrintReport(w io.Writer, report scheduler.Report) {
	fmt.Fprintf(w, "Books: %d\n", report.Books)
	fmt.Fprintf(w, "Downloaded: %d\n", report.Downloaded)
	fmt.Fprintf(w, "Remote cache hits: %d\n", report.RemoteHits)
	fmt.Fprintf(w, "Already present: %d\n", report.LocalSkips)
	fmt.Fprintf(w, "Covers: %d downloaded, %d from remote cache, %d skipped, %d failed\n",
		report.Covers.Downloaded, report.Covers.RemoteHits, report.Covers.Skipped, report.Covers.Failed)
	fmt.Fprintf(w, "Duration: %v\n", report.Duration.Round(time.Millisecond))

	if len(report.Abandoned) > 0 {
		fmt.Fprintf(w, "Abandoned (%d):\n", len(report.Abandoned))
		for _, a := range report.Abandoned {
			fmt.Fprintf(w, "  book %d %s: %s", a.BookID, a.Kind, a.Reason)
			if len(a.Candidates) > 0 {
				fmt.Fprintf(w, " [tried %s]", strings.Join(a.Candidates, ", "))
			}
			fmt.Fprintln(w)
		}
	}
	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "Failed (%d):\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  book %d %s: %s", f.BookID, f.Kind, f.Reason)
			if f.Err != nil {
				fmt.Fprintf(w, ": %v", f.Err)
			}
			fmt.Fprintln(w)
		}
	}
}

func ResetFlags() {
	cfgFile = ""
	htmlPatternsFile = ""
	cacheDir = ""
	scratchDir = ""
	catalogPath = ""
	languages = []string{}
	formats = []string{}
	onlyBooks = []int{}
	force = false
	mirrorURL = ""
	imageBaseURL = ""
	listMirror = false
	remoteCacheEndpoint = ""
	remoteCacheBucket = ""
	concurrency = 0
	coverConcurrency = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	maxRequestsPerSecond = 0
	maxAttempt = 0
	timeout = 0
	probeTimeout = 0
	userAgent = ""
	logLevel = ""
	logFormat = ""
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetHTMLPatternsFileForTest(path string) {
	htmlPatternsFile = path
}

func SetCacheDirForTest(dir string) {
	cacheDir = dir
}

func SetFormatsForTest(f []string) {
	formats = f
}

func SetOnlyBooksForTest(ids []int) {
	onlyBooks = ids
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetRemoteCacheForTest(endpoint, bucket string) {
	remoteCacheEndpoint = endpoint
	remoteCacheBucket = bucket
}

func SetLogLevelForTest(level string) {
	logLevel = level
}
