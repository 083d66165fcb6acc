// Package remote implements proxy instances for segments served by remote
// segment servers.
//
// A proxy resolves its endpoint through the environment's resolver when it
// starts and keeps a gRPC client connection to it. Proxies hold no local data:
// ResetState and Delete are no-ops, since the remote server owns the segment's
// state.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// MetadataPrefix selects the collection metadata keys propagated to remote
// vector segments.
const MetadataPrefix = "hnsw:"

// DefaultResolveTimeout bounds endpoint resolution during Start.
const DefaultResolveTimeout = 10 * time.Second

// ErrNoResolver is returned when a proxy is started without an endpoint resolver.
var ErrNoResolver = errors.New("remote: no endpoint resolver configured")

// VectorImpl returns the catalog entry of the distributed vector kind.
func VectorImpl(opts ...grpc.DialOption) segment.Impl {
	return segment.Impl{
		Type:                        model.SegmentTypeHNSWDistributed,
		Scope:                       model.ScopeVector,
		New:                         NewFactory(opts...),
		PropagateCollectionMetadata: segment.PrefixFilter(MetadataPrefix),
	}
}

// RecordImpl returns the catalog entry of the distributed record kind.
func RecordImpl(opts ...grpc.DialOption) segment.Impl {
	return segment.Impl{
		Type:  model.SegmentTypeBlockfileRecord,
		Scope: model.ScopeRecord,
		New:   NewFactory(opts...),
	}
}

// MetadataImpl returns the catalog entry of the distributed metadata kind.
func MetadataImpl(opts ...grpc.DialOption) segment.Impl {
	return segment.Impl{
		Type:  model.SegmentTypeBlockfileMetadata,
		Scope: model.ScopeMetadata,
		New:   NewFactory(opts...),
	}
}

// NewFactory returns a factory building proxies that dial with opts.
// Without options the connection uses insecure transport credentials.
func NewFactory(opts ...grpc.DialOption) segment.Factory {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return func(env segment.Env, seg model.Segment) (segment.Instance, error) {
		return &Proxy{
			desc:     seg,
			resolve:  env.Resolve,
			dialOpts: opts,
			logger:   env.Log().With("segment_id", seg.ID.String()),
		}, nil
	}
}

// Proxy is a local stand-in for a remotely served segment.
type Proxy struct {
	desc     model.Segment
	resolve  segment.EndpointResolver
	dialOpts []grpc.DialOption
	logger   *slog.Logger

	mu       sync.RWMutex
	conn     *grpc.ClientConn
	endpoint string
}

var _ segment.Instance = (*Proxy)(nil)

func (p *Proxy) Segment() model.Segment { return p.desc }

// Start resolves the endpoint and creates the client connection.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	if p.resolve == nil {
		return ErrNoResolver
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultResolveTimeout)
	defer cancel()

	endpoint, err := p.resolve(ctx, p.desc)
	if err != nil {
		return fmt.Errorf("remote: resolve %s: %w", p.desc.ID, err)
	}
	conn, err := grpc.NewClient(endpoint, p.dialOpts...)
	if err != nil {
		return fmt.Errorf("remote: connect %s: %w", endpoint, err)
	}

	p.conn = conn
	p.endpoint = endpoint
	p.logger.Debug("proxy connected", "endpoint", endpoint)
	return nil
}

// Stop closes the client connection.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Proxy) ResetState() error { return nil }

func (p *Proxy) Delete() error { return nil }

// Endpoint returns the resolved endpoint, or "" before Start.
func (p *Proxy) Endpoint() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

// Conn returns the client connection, or nil while stopped.
func (p *Proxy) Conn() *grpc.ClientConn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// Check queries the standard gRPC health service of the remote server.
func (p *Proxy) Check(ctx context.Context) error {
	conn := p.Conn()
	if conn == nil {
		return segment.ErrStopped
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("remote: %s is %s", p.endpoint, resp.GetStatus())
	}
	return nil
}
