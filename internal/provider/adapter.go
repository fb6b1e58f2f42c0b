// Package provider defines the contract every vendor binding implements and
// the pieces the family packages share: local validation, error mapping and
// the descriptor-driven HTTP exchange.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/httputil"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

// Adapter is a vendor binding. Implementations are stateless beyond their
// descriptor and credentials and are safe for concurrent use.
type Adapter interface {
	ID() string
	Descriptor() *descriptor.Descriptor
	// Validate is local and side-effect free; Send and SendStreaming run it
	// before any I/O.
	Validate(req domain.UnifiedRequest) error
	Send(ctx context.Context, req domain.UnifiedRequest) (*domain.UnifiedResponse, error)
	// SendStreaming performs the exchange eagerly, so HTTP and validation
	// errors are returned here rather than inside the sequence.
	SendStreaming(ctx context.Context, req domain.UnifiedRequest) (*stream.Stream, error)
}

type Config struct {
	Descriptor *descriptor.Descriptor
	APIKey     string
	Client     *http.Client
	// IdleTimeout bounds the silence between stream frames.
	IdleTimeout time.Duration
	Simulation  stream.SimulateOptions
}

// StatusOverride lets an adapter attach a richer message to specific status
// codes. The category always comes from the default status table.
type StatusOverride func(status int, message string) (string, bool)

// Base carries the fields and behavior shared by every family adapter.
type Base struct {
	desc        *descriptor.Descriptor
	apiKey      string
	client      *http.Client
	idleTimeout time.Duration
	simulation  stream.SimulateOptions
	override    StatusOverride
}

func NewBase(cfg Config, override StatusOverride) Base {
	client := cfg.Client
	if client == nil {
		client = httputil.NewStreamingClient(httputil.DefaultConfig())
	}
	return Base{
		desc:        cfg.Descriptor,
		apiKey:      cfg.APIKey,
		client:      client,
		idleTimeout: cfg.IdleTimeout,
		simulation:  cfg.Simulation,
		override:    override,
	}
}

func (b *Base) ID() string {
	return b.desc.ID
}

func (b *Base) Descriptor() *descriptor.Descriptor {
	return b.desc
}

func (b *Base) Validate(req domain.UnifiedRequest) error {
	return Validate(b.desc, req)
}

func (b *Base) APIKey() string {
	return b.apiKey
}

func (b *Base) IdleTimeout() time.Duration {
	return b.idleTimeout
}

// Simulate re-emits a complete response with the configured pacing.
func (b *Base) Simulate(ctx context.Context, full *domain.UnifiedResponse) *stream.Stream {
	return stream.Simulate(ctx, full, b.simulation)
}

// MapTransportError maps a failed exchange for this adapter.
func (b *Base) MapTransportError(err error) error {
	return MapTransportError(b.desc.ID, err)
}
