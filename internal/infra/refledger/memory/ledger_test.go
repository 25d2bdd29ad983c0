package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trailvision/internal/refs/core"
)

func entry(source, variant string, expires time.Time) core.Entry {
	return core.Entry{
		SourceKey:  source,
		Variant:    variant,
		DerivedKey: source + "/" + variant,
		URL:        "memory://blob.local/" + source + "/" + variant,
		IssuedAt:   time.Now().UTC(),
		ExpiresAt:  expires,
	}
}

func TestLedger_RecordAndGet(t *testing.T) {
	l := New()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	if err := l.Record(ctx, []core.Entry{
		entry("a/img.jpg", "thumbnail", exp),
		entry("a/img.jpg", "preview", exp),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := l.Get(ctx, "a/img.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Variant != "preview" || got[1].Variant != "thumbnail" {
		t.Fatalf("entries = %+v", got)
	}
	if _, err := l.Get(ctx, "unknown"); !errors.Is(err, core.ErrNoEntries) {
		t.Fatalf("get unknown: got %v, want ErrNoEntries", err)
	}
}

func TestLedger_RecordUpserts(t *testing.T) {
	l := New()
	ctx := context.Background()
	first := entry("a/img.jpg", "thumbnail", time.Now().Add(time.Hour))
	if err := l.Record(ctx, []core.Entry{first}); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := first
	second.URL = "memory://blob.local/refreshed"
	if err := l.Record(ctx, []core.Entry{second}); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	got, err := l.Get(ctx, "a/img.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].URL != "memory://blob.local/refreshed" {
		t.Fatalf("upsert failed: %+v", got)
	}
}

func TestLedger_Expiring(t *testing.T) {
	l := New()
	ctx := context.Background()
	now := time.Now().UTC()
	soon := entry("a/img.jpg", "thumbnail", now.Add(time.Hour))
	later := entry("a/img.jpg", "preview", now.Add(48*time.Hour))
	public := entry("b/img.jpg", "full", time.Time{})
	public.Public = true
	if err := l.Record(ctx, []core.Entry{later, soon, public}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := l.Expiring(ctx, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("expiring: %v", err)
	}
	if len(got) != 1 || got[0].Variant != "thumbnail" {
		t.Fatalf("expiring = %+v", got)
	}
}

func TestLedger_Invalidate(t *testing.T) {
	l := New()
	ctx := context.Background()
	if err := l.Record(ctx, []core.Entry{entry("a/img.jpg", "thumbnail", time.Now().Add(time.Hour))}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Invalidate(ctx, "a/img.jpg"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := l.Get(ctx, "a/img.jpg"); !errors.Is(err, core.ErrNoEntries) {
		t.Fatalf("entries survive invalidate: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEntry_Expired(t *testing.T) {
	now := time.Now()
	signed := entry("a", "thumbnail", now.Add(-time.Minute))
	if !signed.Expired(now) {
		t.Fatalf("past expiry should report expired")
	}
	live := entry("a", "preview", now.Add(time.Minute))
	if live.Expired(now) {
		t.Fatalf("future expiry should not report expired")
	}
	public := core.Entry{Public: true}
	if public.Expired(now) {
		t.Fatalf("public entries never expire")
	}
}
