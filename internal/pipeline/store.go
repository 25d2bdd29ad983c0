// Package pipeline orchestrates variant generation against a durable object
// store and issues access references for the derived images. Processing is
// advisory relative to the source asset: failures here never block, delete or
// mutate the original.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trailvision/internal/blob"
	"trailvision/internal/variant"
)

// DefaultStorageTimeout bounds individual object-store calls.
const DefaultStorageTimeout = 30 * time.Second

// Options configures a Store. The zero value yields default specs, a 7 day
// signed-URL TTL and per-variant fan-out bounded by the number of specs.
type Options struct {
	Specs          []variant.Spec
	SignedURLTTL   time.Duration
	StorageTimeout time.Duration
	Concurrency    int
	Generator      *variant.Generator
	Observer       Observer
}

// Store reads a source image once, fans out across the configured variant
// specs and writes each rendition to its deterministic derived key. Stateless
// across calls; concurrent Process calls for different sources are fully
// independent. Same-source concurrency is last-writer-wins.
type Store struct {
	blobs       blob.Store
	gen         variant.Generator
	specs       []variant.Spec
	ttl         time.Duration
	timeout     time.Duration
	concurrency int
	log         zerolog.Logger
	obs         Observer
	now         func() time.Time
}

// New constructs a Store over the given blob backend.
func New(blobs blob.Store, logger zerolog.Logger, opts Options) *Store {
	specs := opts.Specs
	if len(specs) == 0 {
		specs = variant.DefaultSpecs()
	}
	ttl := opts.SignedURLTTL
	if ttl <= 0 {
		ttl = blob.DefaultSignedURLExpiry
	}
	timeout := opts.StorageTimeout
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 || concurrency > len(specs) {
		concurrency = len(specs)
	}
	gen := variant.NewGenerator()
	if opts.Generator != nil {
		gen = *opts.Generator
	}
	var obs Observer = NopObserver{}
	if opts.Observer != nil {
		obs = opts.Observer
	}
	return &Store{
		blobs:       blobs,
		gen:         gen,
		specs:       specs,
		ttl:         ttl,
		timeout:     timeout,
		concurrency: concurrency,
		log:         logger,
		obs:         obs,
		now:         time.Now,
	}
}

// Specs returns the configured variant specs in delivery order.
func (s *Store) Specs() []variant.Spec { return s.specs }

// SignedURLTTL returns the validity window applied to signed references.
func (s *Store) SignedURLTTL() time.Duration { return s.ttl }

// Process generates, stores and references every configured variant of the
// source object. It returns references for the variants that succeeded; a
// missing name means that variant failed this round. The error is non-nil
// only when the source read itself fails, in which case nothing was written.
func (s *Store) Process(ctx context.Context, sourceKey string, makePublic bool) (map[string]Reference, error) {
	outcomes, err := s.ProcessOutcomes(ctx, sourceKey, makePublic)
	if err != nil {
		return nil, err
	}
	return References(outcomes), nil
}

// ProcessOutcomes is Process with per-variant detail preserved, in spec
// order, for callers that need to distinguish partial from full success.
func (s *Store) ProcessOutcomes(ctx context.Context, sourceKey string, makePublic bool) ([]Outcome, error) {
	started := s.now()
	data, err := s.readSource(ctx, sourceKey)
	if err != nil {
		s.obs.RecordProcess(s.now().Sub(started), err)
		return nil, err
	}
	s.log.Info().Str("source", sourceKey).Int("size_bytes", len(data)).Msg("processing source image")

	outcomes := make([]Outcome, len(s.specs))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, spec := range s.specs {
		wg.Add(1)
		go func(i int, spec variant.Spec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = s.processVariant(ctx, sourceKey, data, spec, makePublic)
		}(i, spec)
	}
	wg.Wait()

	names := make([]string, len(s.specs))
	sizes := make(map[string]int, len(outcomes))
	for i, o := range outcomes {
		names[i] = o.Variant
		if o.Err != nil {
			s.log.Warn().Str("source", sourceKey).Str("variant", o.Variant).Err(o.Err).Msg("variant failed")
			continue
		}
		sizes[o.Variant] = o.SizeBytes
	}
	for _, st := range variant.Stats(len(data), names, sizes) {
		s.log.Info().Str("source", sourceKey).Str("variant", st.Name).
			Int("size_bytes", st.SizeBytes).
			Float64("reduction_percent", st.ReductionPercent).
			Msg("variant stored")
	}
	s.obs.RecordProcess(s.now().Sub(started), nil)
	return outcomes, nil
}

// RefreshReference re-issues a signed reference for an existing derived
// object without re-reading the source or re-encoding. Returns ErrNotFound
// when the object was deleted out-of-band; the caller must re-run Process.
func (s *Store) RefreshReference(ctx context.Context, derivedKey string) (Reference, error) {
	started := s.now()
	ref, err := s.refresh(ctx, derivedKey)
	s.obs.RecordRefresh(s.now().Sub(started), err)
	return ref, err
}

func (s *Store) refresh(ctx context.Context, derivedKey string) (Reference, error) {
	hctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	if _, err := s.blobs.Head(hctx, derivedKey); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Reference{}, fmt.Errorf("%w: %s", ErrNotFound, derivedKey)
		}
		return Reference{}, fmt.Errorf("%w: head %s: %v", ErrStorageRead, derivedKey, err)
	}
	return s.signedReference(ctx, derivedKey)
}

func (s *Store) readSource(ctx context.Context, sourceKey string) ([]byte, error) {
	gctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	_, rc, err := s.blobs.Get(gctx, sourceKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceKey)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStorageRead, sourceKey, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageRead, sourceKey, err)
	}
	return data, nil
}

func (s *Store) processVariant(ctx context.Context, sourceKey string, data []byte, spec variant.Spec, makePublic bool) Outcome {
	started := s.now()
	out := Outcome{Variant: spec.Name, Key: DerivedKey(sourceKey, spec.Name)}

	encoded, err := s.gen.Generate(data, spec)
	if err != nil {
		out.Err = err
		s.obs.RecordVariant(spec.Name, s.now().Sub(started), 0, err)
		return out
	}
	out.SizeBytes = len(encoded)

	if err := s.putDerived(ctx, out.Key, encoded); err != nil {
		out.Err = err
		s.obs.RecordVariant(spec.Name, s.now().Sub(started), 0, err)
		return out
	}

	ref, err := s.reference(ctx, out.Key, makePublic)
	if err != nil {
		out.Err = err
		s.obs.RecordVariant(spec.Name, s.now().Sub(started), 0, err)
		return out
	}
	out.Reference = ref
	s.obs.RecordVariant(spec.Name, s.now().Sub(started), out.SizeBytes, nil)
	return out
}

func (s *Store) putDerived(ctx context.Context, key string, encoded []byte) error {
	pctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	_, err := s.blobs.Put(pctx, key, bytes.NewReader(encoded), blob.PutOptions{
		ContentType: variant.ContentType,
		// Derived content at a given key only changes via overwrite; callers
		// bust caches through the URL itself.
		CacheControl: "max-age=31536000",
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStorageWrite, key, err)
	}
	return nil
}

func (s *Store) reference(ctx context.Context, key string, makePublic bool) (Reference, error) {
	if makePublic {
		actx, cancel := s.boundedCtx(ctx)
		defer cancel()
		if err := s.blobs.SetPublicRead(actx, key); err != nil {
			return Reference{}, fmt.Errorf("%w: acl %s: %v", ErrStorageWrite, key, err)
		}
		return Reference{URL: s.blobs.PublicURL(key), Public: true}, nil
	}
	return s.signedReference(ctx, key)
}

func (s *Store) signedReference(ctx context.Context, key string) (Reference, error) {
	pctx, cancel := s.boundedCtx(ctx)
	defer cancel()
	url, err := s.blobs.PresignURL(pctx, key, blob.SignedURLOptions{Method: "GET", Expiry: s.ttl})
	if err != nil {
		return Reference{}, fmt.Errorf("%w: presign %s: %v", ErrStorageWrite, key, err)
	}
	return Reference{URL: url, ExpiresAt: s.now().Add(s.ttl).UTC()}, nil
}

func (s *Store) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
