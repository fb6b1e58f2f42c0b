// Package registry builds adapters on demand from the descriptor set and the
// key store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/keystore"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/provider/anthropic"
	"github.com/felipepmaragno/chatgw/internal/provider/bedrock"
	"github.com/felipepmaragno/chatgw/internal/provider/gemini"
	"github.com/felipepmaragno/chatgw/internal/provider/openai"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

// availabilityConcurrency caps parallel key-store lookups in Available.
const availabilityConcurrency = 8

type Options struct {
	// Client is shared by every HTTP adapter; nil selects the default
	// streaming client.
	Client      *http.Client
	IdleTimeout time.Duration
	Simulation  stream.SimulateOptions
}

type Registry struct {
	descriptors *descriptor.Set
	keys        keystore.Store
	opts        Options

	newBedrock func(ctx context.Context, cfg provider.Config) (provider.Adapter, error)
}

func New(descriptors *descriptor.Set, keys keystore.Store, opts Options) *Registry {
	return &Registry{
		descriptors: descriptors,
		keys:        keys,
		opts:        opts,
		newBedrock: func(ctx context.Context, cfg provider.Config) (provider.Adapter, error) {
			return bedrock.New(ctx, cfg)
		},
	}
}

// Descriptor returns the descriptor registered under id.
func (r *Registry) Descriptor(id string) (*descriptor.Descriptor, error) {
	d, ok := r.descriptors.Get(id)
	if !ok {
		return nil, &domain.ProviderError{
			Kind:     domain.KindInvalidConfiguration,
			Provider: id,
			Message:  "provider not registered",
			Err:      domain.ErrProviderNotRegistered,
		}
	}
	return d, nil
}

// IDs lists registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	return r.descriptors.IDs()
}

// CreateAdapter fetches the provider's key and binds a new adapter to it
// and its descriptor.
func (r *Registry) CreateAdapter(ctx context.Context, id string) (provider.Adapter, error) {
	d, key, err := r.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	adapter, err := r.build(ctx, provider.Config{
		Descriptor:  d,
		APIKey:      key,
		Client:      r.opts.Client,
		IdleTimeout: r.opts.IdleTimeout,
		Simulation:  r.opts.Simulation,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("adapter created", "provider", id, "family", d.Family)
	return adapter, nil
}

// CanCreate runs the same checks as CreateAdapter without constructing the
// adapter or contacting the vendor.
func (r *Registry) CanCreate(ctx context.Context, id string) error {
	d, _, err := r.resolve(ctx, id)
	if err != nil {
		return err
	}
	if !d.Family.Valid() {
		return unknownFamily(d)
	}
	return nil
}

// Available returns the ids CanCreate accepts, in sorted order.
func (r *Registry) Available(ctx context.Context) ([]string, error) {
	ids := r.descriptors.IDs()
	ok := make([]bool, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(availabilityConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			err := r.CanCreate(ctx, id)
			if err == nil {
				ok[i] = true
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Debug("provider unavailable", "provider", id, "error", err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if ok[i] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Registry) resolve(ctx context.Context, id string) (*descriptor.Descriptor, string, error) {
	d, err := r.Descriptor(id)
	if err != nil {
		return nil, "", err
	}

	key, err := r.keys.GetAPIKey(ctx, id)
	switch {
	case err == nil:
		return d, key, nil
	case errors.Is(err, keystore.ErrNotFound):
		if d.RequiresKey {
			return nil, "", domain.NewProviderError(domain.KindMissingAPIKey, id, "no API key configured")
		}
		return d, "", nil
	default:
		return nil, "", &domain.ProviderError{
			Kind:     domain.KindInvalidConfiguration,
			Provider: id,
			Message:  "key store lookup failed",
			Err:      err,
		}
	}
}

func (r *Registry) build(ctx context.Context, cfg provider.Config) (provider.Adapter, error) {
	switch cfg.Descriptor.Family {
	case descriptor.FamilyOpenAI:
		return openai.New(cfg), nil
	case descriptor.FamilyAnthropic:
		return anthropic.New(cfg), nil
	case descriptor.FamilyGemini:
		return gemini.New(cfg), nil
	case descriptor.FamilyBedrock:
		return r.newBedrock(ctx, cfg)
	default:
		return nil, unknownFamily(cfg.Descriptor)
	}
}

func unknownFamily(d *descriptor.Descriptor) error {
	return domain.NewProviderError(domain.KindInvalidConfiguration, d.ID,
		fmt.Sprintf("unknown provider family %q", d.Family))
}
