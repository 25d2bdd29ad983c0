package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trailvision/internal/blob"
	blobmemory "trailvision/internal/infra/blob/memory"
	"trailvision/internal/variant"
)

const sourceKey = "project/kenya/client1/sensor9/2026-01-02/IMG_0042.jpg"

func sourceJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 34, G: 85, B: 51, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T, blobs blob.Store, opts Options) *Store {
	t.Helper()
	return New(blobs, zerolog.Nop(), opts)
}

func seedSource(t *testing.T, blobs blob.Store, key string, data []byte) {
	t.Helper()
	if _, err := blobs.Put(context.Background(), key, bytes.NewReader(data), blob.PutOptions{ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("seed source: %v", err)
	}
}

func expiresFromURL(t *testing.T, signed string) time.Time {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	raw := u.Query().Get("X-Expires")
	if raw == "" {
		t.Fatalf("signed url missing expiry: %s", signed)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("parse expiry: %v", err)
	}
	return time.Unix(unix, 0)
}

func TestProcess_AllVariants(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 1600, 1200))
	store := newTestStore(t, blobs, Options{})

	refs, err := store.Process(context.Background(), sourceKey, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %v", len(refs), refs)
	}
	for _, name := range variant.Names() {
		ref, ok := refs[name]
		if !ok {
			t.Fatalf("missing variant %s", name)
		}
		if ref.Public {
			t.Fatalf("%s: expected signed reference", name)
		}
		if ref.ExpiresAt.IsZero() {
			t.Fatalf("%s: signed reference missing expiry", name)
		}
		wantKey := DerivedKey(sourceKey, name)
		info, err := blobs.Head(context.Background(), wantKey)
		if err != nil {
			t.Fatalf("derived object %s not stored: %v", wantKey, err)
		}
		if info.ContentType != "image/jpeg" {
			t.Fatalf("%s: content type %q", name, info.ContentType)
		}
		if info.CacheControl != "max-age=31536000" {
			t.Fatalf("%s: cache control %q", name, info.CacheControl)
		}
		urlExpiry := expiresFromURL(t, ref.URL)
		week := time.Now().Add(7 * 24 * time.Hour)
		if d := urlExpiry.Sub(week); d < -time.Minute || d > time.Minute {
			t.Fatalf("%s: expiry %v not ~7 days out", name, urlExpiry)
		}
	}
}

func TestProcess_ExampleScenarioDimensions(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 4000, 3000))
	store := newTestStore(t, blobs, Options{})

	if _, err := store.Process(context.Background(), sourceKey, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := map[string][2]int{
		variant.NameThumbnail: {200, 150},
		variant.NamePreview:   {800, 600},
		variant.NameFull:      {1920, 1440},
	}
	for name, dims := range want {
		_, rc, err := blobs.Get(context.Background(), DerivedKey(sourceKey, name))
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != dims[0] || h != dims[1] {
			t.Fatalf("%s: got %dx%d want %dx%d", name, w, h, dims[0], dims[1])
		}
	}
}

func TestProcess_MakePublic(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 800, 600))
	store := newTestStore(t, blobs, Options{})

	refs, err := store.Process(context.Background(), sourceKey, true)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, name := range variant.Names() {
		ref := refs[name]
		key := DerivedKey(sourceKey, name)
		if !ref.Public {
			t.Fatalf("%s: expected public reference", name)
		}
		if !ref.ExpiresAt.IsZero() {
			t.Fatalf("%s: public reference must not expire", name)
		}
		if ref.URL != blobs.PublicURL(key) {
			t.Fatalf("%s: url %q, want canonical %q", name, ref.URL, blobs.PublicURL(key))
		}
		if !blobs.IsPublic(key) {
			t.Fatalf("%s: object not marked public-read", name)
		}
	}
}

func TestProcess_SourceNotFound(t *testing.T) {
	blobs := blobmemory.New()
	store := newTestStore(t, blobs, Options{})

	_, err := store.Process(context.Background(), "missing/source.jpg", false)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("got %v, want ErrSourceNotFound", err)
	}
	infos, err := blobs.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected zero derived objects, found %d", len(infos))
	}
}

// writeFailStore fails Put for keys containing a marker substring, leaving
// the rest of the interface untouched.
type writeFailStore struct {
	blob.Store
	marker string
}

func (s writeFailStore) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if strings.Contains(key, s.marker) {
		return blob.Info{}, errors.New("injected write failure")
	}
	return s.Store.Put(ctx, key, r, opts)
}

func TestProcess_PartialWriteFailure(t *testing.T) {
	inner := blobmemory.New()
	seedSource(t, inner, sourceKey, sourceJPEG(t, 1600, 1200))
	blobs := writeFailStore{Store: inner, marker: "_preview"}
	store := newTestStore(t, blobs, Options{})

	outcomes, err := store.ProcessOutcomes(context.Background(), sourceKey, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	refs := References(outcomes)
	if _, ok := refs[variant.NamePreview]; ok {
		t.Fatalf("preview should have failed")
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 surviving references, got %d", len(refs))
	}
	for _, o := range outcomes {
		if o.Variant != variant.NamePreview {
			continue
		}
		if !errors.Is(o.Err, ErrStorageWrite) {
			t.Fatalf("preview outcome err = %v, want ErrStorageWrite", o.Err)
		}
	}
}

func TestProcess_UndecodableSource(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, "cam/bad.jpg", []byte("definitely not a jpeg"))
	store := newTestStore(t, blobs, Options{})

	outcomes, err := store.ProcessOutcomes(context.Background(), "cam/bad.jpg", false)
	if err != nil {
		t.Fatalf("undecodable input must not be fatal: %v", err)
	}
	if len(References(outcomes)) != 0 {
		t.Fatalf("no variant should succeed")
	}
	for _, o := range outcomes {
		if !errors.Is(o.Err, variant.ErrInput) {
			t.Fatalf("%s: err = %v, want variant.ErrInput", o.Variant, o.Err)
		}
	}
	// nothing written besides the seeded source
	infos, _ := blobs.List(context.Background(), "cam/optimized/")
	if len(infos) != 0 {
		t.Fatalf("derived objects written for undecodable source: %v", infos)
	}
}

func TestProcess_IdempotentReprocessing(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 1600, 1200))
	store := newTestStore(t, blobs, Options{})
	ctx := context.Background()

	first, err := store.Process(ctx, sourceKey, false)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	firstBytes := derivedBytes(t, blobs, variant.NameThumbnail)

	second, err := store.Process(ctx, sourceKey, false)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	secondBytes := derivedBytes(t, blobs, variant.NameThumbnail)

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("both runs should produce all variants")
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatalf("reprocessing changed derived content")
	}
}

func derivedBytes(t *testing.T, blobs blob.Store, name string) []byte {
	t.Helper()
	_, rc, err := blobs.Get(context.Background(), DerivedKey(sourceKey, name))
	if err != nil {
		t.Fatalf("get derived %s: %v", name, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read derived %s: %v", name, err)
	}
	return data
}

func TestRefreshReference(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 800, 600))
	store := newTestStore(t, blobs, Options{SignedURLTTL: time.Hour})
	ctx := context.Background()

	if _, err := store.Process(ctx, sourceKey, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	key := DerivedKey(sourceKey, variant.NamePreview)

	ref, err := store.RefreshReference(ctx, key)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !ref.ExpiresAt.After(time.Now()) {
		t.Fatalf("refreshed expiry %v not in the future", ref.ExpiresAt)
	}

	if _, err := blobs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.RefreshReference(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("refresh after delete: got %v, want ErrNotFound", err)
	}
}

func TestProcess_CustomSpecs(t *testing.T) {
	blobs := blobmemory.New()
	seedSource(t, blobs, sourceKey, sourceJPEG(t, 1000, 500))
	specs := []variant.Spec{{Name: variant.NameThumbnail, MaxDimension: 100, Quality: 70}}
	store := newTestStore(t, blobs, Options{Specs: specs})

	refs, err := store.Process(context.Background(), sourceKey, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(refs))
	}
	data := derivedBytes(t, blobs, variant.NameThumbnail)
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 100 || h != 50 {
		t.Fatalf("got %dx%d, want 100x50", w, h)
	}
}
