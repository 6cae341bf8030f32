// Package publish uploads rendered covers to an asset store at most once per
// distinct content.
//
// Before uploading, the encoded bytes are hashed and compared with the hash
// stored alongside the existing asset. Matching hashes skip the upload.
// Publisher does not retry and does not lock: concurrent publishes to the same
// identifier may both upload, and the last writer wins.
package publish

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"
)

// Metadata keys written by Publish.
const (
	MetaHash        = "hash"
	MetaContentType = "content_type"
)

var (
	// ErrNotFound is returned by a Store when no asset exists for an id.
	ErrNotFound = errors.New("asset not found")
	// ErrStoreRead marks a lookup that failed for a reason other than
	// ErrNotFound. Nothing is uploaded after such a failure.
	ErrStoreRead = errors.New("store read failed")
	// ErrStoreWrite marks a failed upload.
	ErrStoreWrite = errors.New("store write failed")
	// ErrEncode marks an image that could not be encoded.
	ErrEncode = errors.New("encode failed")
)

// Metadata is free-form string metadata stored with an asset.
type Metadata map[string]string

// Hash returns the content hash recorded in m, if any.
func (m Metadata) Hash() string {
	return m[MetaHash]
}

// Record describes an asset held by a Store.
type Record struct {
	ID        string
	Metadata  Metadata
	Size      int64
	UpdatedAt time.Time
}

// Store is the remote asset store. Get returns an error matching ErrNotFound
// when id has no asset. Put replaces any existing asset at id.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, id string, data []byte, meta Metadata) error
}

// Encoder is an image that can produce its canonical byte encoding.
type Encoder interface {
	Encode(w io.Writer) error
}

// ContentTyper is implemented by images that know their MIME type.
type ContentTyper interface {
	ContentType() string
}

// Status is the outcome of one publish.
type Status int

const (
	StatusFailed Status = iota
	StatusUploaded
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result reports what Publish did for one identifier. Err is set only when
// Status is StatusFailed.
type Result struct {
	ID     string
	Hash   string
	Size   int
	Status Status
	Err    error
}

// Hash returns the lowercase hex BLAKE3-256 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Publisher runs the compare-then-upload protocol against a Store.
type Publisher struct {
	store Store
}

// NewPublisher returns a Publisher backed by store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Publish encodes img, compares its hash with the stored one and uploads
// only when the asset is missing or differs.
func (p *Publisher) Publish(ctx context.Context, id string, img Encoder) Result {
	res := Result{ID: id}

	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrEncode, id, err)
		return res
	}
	data := buf.Bytes()
	res.Hash = Hash(data)
	res.Size = len(data)

	rec, err := p.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		res.Err = fmt.Errorf("%w: %s: %w", ErrStoreRead, id, err)
		return res
	case rec.Metadata.Hash() == res.Hash:
		res.Status = StatusSkipped
		return res
	}

	meta := Metadata{MetaHash: res.Hash}
	if ct, ok := img.(ContentTyper); ok {
		meta[MetaContentType] = ct.ContentType()
	}
	if err := p.store.Put(ctx, id, data, meta); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrStoreWrite, id, err)
		return res
	}
	res.Status = StatusUploaded
	return res
}
