package pubcover

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eringen/pubcover/ogimage"
	"github.com/eringen/pubcover/publish"
)

// preview is one rendered cover ready to serve.
type preview struct {
	data        []byte
	hash        string
	contentType string
	fontSize    int
}

// previewCache keeps recently rendered previews keyed by title with a TTL, so
// crawlers fetching the same /og/ page repeatedly do not re-render it. A
// renamed post has a new key and renders fresh.
type previewCache struct {
	renderer *ogimage.Renderer
	entries  *expirable.LRU[string, preview]
}

// newPreviewCache creates a previewCache holding up to size previews.
func newPreviewCache(r *ogimage.Renderer, size int, ttl time.Duration) *previewCache {
	return &previewCache{
		renderer: r,
		entries:  expirable.NewLRU[string, preview](size, nil, ttl),
	}
}

// get returns the preview for title, rendering it on a miss. Concurrent
// misses for one title may both render; the results are identical.
func (c *previewCache) get(title string) (preview, error) {
	if p, ok := c.entries.Get(title); ok {
		return p, nil
	}
	img, err := c.renderer.Render(title)
	if err != nil {
		return preview{}, err
	}
	data, err := img.Bytes()
	if err != nil {
		return preview{}, err
	}
	p := preview{
		data:        data,
		hash:        publish.Hash(data),
		contentType: img.ContentType(),
		fontSize:    img.FontSize(),
	}
	c.entries.Add(title, p)
	return p, nil
}
