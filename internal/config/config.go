package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/build"
	"github.com/tidwall/jsonc"
)

type Config struct {
	//===============
	// Selection
	//===============
	// Restrict the run to books in these languages. Empty means all languages.
	languages []string
	// Kinds to fetch per book. Empty means every supported kind; html is always added.
	formats []string
	// Explicit book id allow-list. Empty means every book matching the other filters.
	onlyBooks []int
	// Re-download even when a local artifact already exists.
	force bool

	//===============
	// Storage
	//===============
	// Root of the per-book download tree.
	cacheDir string
	// Where archives are unpacked before their members are moved in. Empty means the OS temp dir.
	scratchDir string
	// SQLite catalog file.
	catalogPath string

	//===============
	// Sources
	//===============
	// Base URL of the archive mirror.
	mirrorURL string
	// Base URL under which cover images are published.
	imageBaseURL string
	// Also parse the mirror's directory listing for extra candidates.
	listMirror bool
	// Remote optimized-artifact cache. Disabled when endpoint is empty.
	remoteCache RemoteCache

	//===============
	// Concurrency & politeness
	//===============
	// Number of books downloaded in parallel.
	concurrency int
	// Number of covers downloaded in parallel during the second pass.
	coverConcurrency int
	// Minimum, fixed waiting time between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// Global request rate cap across all workers. 0 disables the cap.
	maxRequestsPerSecond float64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single download request
	timeout time.Duration
	// Maximum time of an existence probe
	probeTimeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string
	// Allow-list of primary html document patterns with confidences.
	htmlPatterns HTMLPatterns

	//===============
	// Logging
	//===============
	logLevel  string
	logFormat string
}

// RemoteCache holds the endpoint and credentials of the optimized-artifact cache.
type RemoteCache struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
}

func (r RemoteCache) Enabled() bool {
	return r.Endpoint != ""
}

type configDTO struct {
	Languages              []string     `json:"languages,omitempty"`
	Formats                []string     `json:"formats,omitempty"`
	OnlyBooks              []int        `json:"onlyBooks,omitempty"`
	Force                  bool         `json:"force,omitempty"`
	CacheDir               string       `json:"cacheDir,omitempty"`
	ScratchDir             string       `json:"scratchDir,omitempty"`
	CatalogPath            string       `json:"catalogPath,omitempty"`
	MirrorURL              string       `json:"mirrorUrl,omitempty"`
	ImageBaseURL           string       `json:"imageBaseUrl,omitempty"`
	ListMirror             bool         `json:"listMirror,omitempty"`
	RemoteCache            RemoteCache  `json:"remoteCache,omitempty"`
	Concurrency            int          `json:"concurrency,omitempty"`
	CoverConcurrency       int          `json:"coverConcurrency,omitempty"`
	BaseDelay              string       `json:"baseDelay,omitempty"`
	Jitter                 string       `json:"jitter,omitempty"`
	RandomSeed             int64        `json:"randomSeed,omitempty"`
	MaxRequestsPerSecond   float64      `json:"maxRequestsPerSecond,omitempty"`
	MaxAttempt             int          `json:"maxAttempt,omitempty"`
	BackoffInitialDuration string       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64      `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     string       `json:"backoffMaxDuration,omitempty"`
	Timeout                string       `json:"timeout,omitempty"`
	ProbeTimeout           string       `json:"probeTimeout,omitempty"`
	UserAgent              string       `json:"userAgent,omitempty"`
	HTMLPatterns           HTMLPatterns `json:"htmlPatterns,omitempty"`
	LogLevel               string       `json:"logLevel,omitempty"`
	LogFormat              string       `json:"logFormat,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cacheDir := dto.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	cfg := WithDefault(cacheDir)

	// For every field, only override if non-zero value is provided
	if len(dto.Languages) > 0 {
		cfg.languages = dto.Languages
	}
	if len(dto.Formats) > 0 {
		cfg.formats = dto.Formats
	}
	if len(dto.OnlyBooks) > 0 {
		cfg.onlyBooks = dto.OnlyBooks
	}
	cfg.force = dto.Force
	cfg.listMirror = dto.ListMirror
	if dto.ScratchDir != "" {
		cfg.scratchDir = dto.ScratchDir
	}
	if dto.CatalogPath != "" {
		cfg.catalogPath = dto.CatalogPath
	}
	if dto.MirrorURL != "" {
		cfg.mirrorURL = dto.MirrorURL
	}
	if dto.ImageBaseURL != "" {
		cfg.imageBaseURL = dto.ImageBaseURL
	}
	cfg.remoteCache = dto.RemoteCache
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.CoverConcurrency != 0 {
		cfg.coverConcurrency = dto.CoverConcurrency
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxRequestsPerSecond != 0 {
		cfg.maxRequestsPerSecond = dto.MaxRequestsPerSecond
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if len(dto.HTMLPatterns) > 0 {
		cfg.htmlPatterns = dto.HTMLPatterns
	}
	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}
	if dto.LogFormat != "" {
		cfg.logFormat = dto.LogFormat
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"baseDelay", dto.BaseDelay, &cfg.baseDelay},
		{"jitter", dto.Jitter, &cfg.jitter},
		{"backoffInitialDuration", dto.BackoffInitialDuration, &cfg.backoffInitialDuration},
		{"backoffMaxDuration", dto.BackoffMaxDuration, &cfg.backoffMaxDuration},
		{"timeout", dto.Timeout, &cfg.timeout},
		{"probeTimeout", dto.ProbeTimeout, &cfg.probeTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrConfigParsingFail, d.name, err.Error())
		}
		*d.dst = parsed
	}

	return cfg.Build()
}

// WithConfigFile reads a JSON config file. Comments and trailing commas are allowed.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(jsonc.ToJSON(configContent), &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

const (
	DefaultCacheDir     = "dl-cache"
	DefaultMirrorURL    = "http://aleph.gutenberg.org/"
	DefaultImageBaseURL = "http://aleph.gutenberg.org/cache/epub/"
	DefaultProbeTimeout = 20 * time.Second
)

// WithDefault creates a new Config rooted at cacheDir with default values for all other fields.
func WithDefault(cacheDir string) *Config {
	defaultConfig := Config{
		cacheDir:               cacheDir,
		catalogPath:            "gutenberg.db",
		mirrorURL:              DefaultMirrorURL,
		imageBaseURL:           DefaultImageBaseURL,
		concurrency:            16,
		coverConcurrency:       16,
		baseDelay:              200 * time.Millisecond,
		jitter:                 100 * time.Millisecond,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             3,
		backoffInitialDuration: 500 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                2 * time.Minute,
		probeTimeout:           DefaultProbeTimeout,
		userAgent:              build.UserAgent(),
		htmlPatterns:           DefaultHTMLPatterns(),
		logLevel:               "info",
		logFormat:              "text",
	}
	return &defaultConfig
}

func (c *Config) WithLanguages(languages []string) *Config {
	c.languages = languages
	return c
}

func (c *Config) WithFormats(formats []string) *Config {
	c.formats = formats
	return c
}

func (c *Config) WithOnlyBooks(ids []int) *Config {
	c.onlyBooks = ids
	return c
}

func (c *Config) WithForce(force bool) *Config {
	c.force = force
	return c
}

func (c *Config) WithCacheDir(dir string) *Config {
	c.cacheDir = dir
	return c
}

func (c *Config) WithScratchDir(dir string) *Config {
	c.scratchDir = dir
	return c
}

func (c *Config) WithCatalogPath(path string) *Config {
	c.catalogPath = path
	return c
}

func (c *Config) WithMirrorURL(mirrorURL string) *Config {
	c.mirrorURL = mirrorURL
	return c
}

func (c *Config) WithImageBaseURL(imageBaseURL string) *Config {
	c.imageBaseURL = imageBaseURL
	return c
}

func (c *Config) WithListMirror(listMirror bool) *Config {
	c.listMirror = listMirror
	return c
}

func (c *Config) WithRemoteCache(remoteCache RemoteCache) *Config {
	c.remoteCache = remoteCache
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithCoverConcurrency(concurrency int) *Config {
	c.coverConcurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxRequestsPerSecond(rps float64) *Config {
	c.maxRequestsPerSecond = rps
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithProbeTimeout(timeout time.Duration) *Config {
	c.probeTimeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithHTMLPatterns(patterns HTMLPatterns) *Config {
	c.htmlPatterns = patterns
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithLogFormat(format string) *Config {
	c.logFormat = format
	return c
}

func (c *Config) Build() (Config, error) {
	if c.cacheDir == "" {
		return Config{}, fmt.Errorf("%w: cacheDir cannot be empty", ErrInvalidConfig)
	}
	if c.concurrency < 1 {
		return Config{}, fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.concurrency)
	}
	if c.coverConcurrency < 1 {
		return Config{}, fmt.Errorf("%w: coverConcurrency must be at least 1, got %d", ErrInvalidConfig, c.coverConcurrency)
	}
	if c.maxAttempt < 1 {
		return Config{}, fmt.Errorf("%w: maxAttempt must be at least 1, got %d", ErrInvalidConfig, c.maxAttempt)
	}
	if c.maxRequestsPerSecond < 0 {
		return Config{}, fmt.Errorf("%w: maxRequestsPerSecond cannot be negative", ErrInvalidConfig)
	}
	for _, f := range c.formats {
		if !IsSupportedKind(f) {
			return Config{}, fmt.Errorf("%w: unsupported format %q, want one of %v", ErrInvalidConfig, f, SupportedKinds())
		}
	}
	for _, raw := range []string{c.mirrorURL, c.imageBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidConfig, raw)
		}
	}
	if c.remoteCache.Enabled() && c.remoteCache.Bucket == "" {
		return Config{}, fmt.Errorf("%w: remote cache endpoint requires a bucket", ErrInvalidConfig)
	}
	if len(c.htmlPatterns) == 0 {
		return Config{}, fmt.Errorf("%w: html pattern table cannot be empty", ErrInvalidConfig)
	}
	if err := c.htmlPatterns.validate(); err != nil {
		return Config{}, err
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.logLevel)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.logFormat)
	}

	return *c, nil
}

func (c Config) Languages() []string {
	languages := make([]string, len(c.languages))
	copy(languages, c.languages)
	return languages
}

func (c Config) Formats() []string {
	formats := make([]string, len(c.formats))
	copy(formats, c.formats)
	return formats
}

func (c Config) OnlyBooks() []int {
	ids := make([]int, len(c.onlyBooks))
	copy(ids, c.onlyBooks)
	return ids
}

func (c Config) Force() bool {
	return c.force
}

func (c Config) CacheDir() string {
	return c.cacheDir
}

func (c Config) ScratchDir() string {
	if c.scratchDir == "" {
		return os.TempDir()
	}
	return c.scratchDir
}

func (c Config) CatalogPath() string {
	return c.catalogPath
}

func (c Config) MirrorURL() string {
	return c.mirrorURL
}

func (c Config) ImageBaseURL() string {
	return c.imageBaseURL
}

func (c Config) ListMirror() bool {
	return c.listMirror
}

func (c Config) RemoteCache() RemoteCache {
	return c.remoteCache
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) CoverConcurrency() int {
	return c.coverConcurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) MaxRequestsPerSecond() float64 {
	return c.maxRequestsPerSecond
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) ProbeTimeout() time.Duration {
	return c.probeTimeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) HTMLPatterns() HTMLPatterns {
	patterns := make(HTMLPatterns, len(c.htmlPatterns))
	copy(patterns, c.htmlPatterns)
	return patterns
}

func (c Config) LogLevel() string {
	return c.logLevel
}

func (c Config) LogFormat() string {
	return c.logFormat
}
