package vecseg

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"github.com/hupe1980/vecseg/codec"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/segment"
)

type options struct {
	persistDirectory string
	memoryLimit      int64
	maxFileHandles   int
	scanConcurrency  int64
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	clock            func() time.Time
	dialOptions      []grpc.DialOption

	// Test hooks.
	catalog *segment.Catalog
	fs      fs.FileSystem
}

// Option configures a segment manager.
type Option func(*options)

// WithPersistDirectory enables persisted deployments rooted at dir.
// Each segment stores its files under dir/<segment id>.
// An empty dir selects in-memory vector segments.
func WithPersistDirectory(dir string) Option {
	return func(o *options) {
		o.persistDirectory = dir
	}
}

// WithMemoryLimit sets the footprint budget in bytes for resident persisted
// vector segments. A value <= 0 disables footprint governance.
//
// The budget is enforced against on-disk directory size, which serves as the
// proxy for the memory an index occupies once loaded.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMaxFileHandles overrides the number of file descriptors available to
// persisted vector segments. By default the process limit is used.
//
// The file-handle budget is this value divided by the per-segment cost of the
// persisted vector engine:
//
//	m, _ := vecseg.NewLocalManager(db,
//	    vecseg.WithPersistDirectory("./data"),
//	    vecseg.WithMaxFileHandles(4096), // 1024 segments at 4 files each
//	)
func WithMaxFileHandles(n int) Option {
	return func(o *options) {
		o.maxFileHandles = n
	}
}

// WithScanConcurrency bounds how many segment directories are measured at
// once during footprint admission.
func WithScanConcurrency(n int) Option {
	return func(o *options) {
		o.scanConcurrency = int64(n)
	}
}

// WithCodec configures the codec engines use to persist metadata.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecseg.BasicMetricsCollector{}
//	m, _ := vecseg.NewLocalManager(db, vecseg.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Lookups: %d, hits: %d\n", stats.GetSegmentCount, stats.GetSegmentHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecseg.NewJSONLogger(slog.LevelInfo)
//	m, _ := vecseg.NewLocalManager(db, vecseg.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithClock replaces the time source used for last-used stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now == nil {
			now = time.Now
		}
		o.clock = now
	}
}

// WithDialOptions sets the gRPC dial options of remote segment proxies.
// Without options, proxies dial with insecure transport credentials.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

func withCatalog(c *segment.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
