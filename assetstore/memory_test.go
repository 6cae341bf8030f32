package assetstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/eringen/pubcover/publish"
)

type rawBytes []byte

func (r rawBytes) Encode(w io.Writer) error {
	_, err := w.Write(r)
	return err
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, publish.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if s.Gets() != 1 {
		t.Fatalf("Gets = %d, want 1", s.Gets())
	}
}

func TestMemoryStoreCopiesInput(t *testing.T) {
	s := NewMemoryStore()
	data := []byte("abc")
	meta := publish.Metadata{publish.MetaHash: "h"}
	if err := s.Put(context.Background(), "id", data, meta); err != nil {
		t.Fatal(err)
	}
	data[0] = 'z'
	meta[publish.MetaHash] = "changed"

	got, ok := s.Data("id")
	if !ok || string(got) != "abc" {
		t.Fatalf("Data = %q, %v", got, ok)
	}
	rec, err := s.Get(context.Background(), "id")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Metadata.Hash() != "h" || rec.Size != 3 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "id", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put err = %v", err)
	}
	if _, err := s.Get(ctx, "id"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Get err = %v", err)
	}
	if s.Puts() != 0 {
		t.Fatalf("Puts = %d", s.Puts())
	}
}

func TestPublisherWithMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	p := publish.NewPublisher(s)

	ids := []string{"b", "a", "c"}
	for _, id := range ids {
		if res := p.Publish(context.Background(), id, rawBytes(id)); res.Status != publish.StatusUploaded {
			t.Fatalf("%s: %v", id, res.Status)
		}
	}
	for _, id := range ids {
		if res := p.Publish(context.Background(), id, rawBytes(id)); res.Status != publish.StatusSkipped {
			t.Fatalf("%s second run: %v", id, res.Status)
		}
	}
	if s.Puts() != 3 || s.Gets() != 6 {
		t.Fatalf("puts=%d gets=%d", s.Puts(), s.Gets())
	}
	if got := s.IDs(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("IDs = %v", got)
	}
}
