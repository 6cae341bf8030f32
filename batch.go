package pubcover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/eringen/pubcover/internal/logging"
	"github.com/eringen/pubcover/ogimage"
	"github.com/eringen/pubcover/publish"
)

var (
	// ErrLocked is returned by Batch.Run when another run holds the lock file.
	ErrLocked = errors.New("another pubcover run holds the lock")
	// ErrInvalidID marks a title whose identifier cannot name a cover.
	ErrInvalidID = errors.New("invalid identifier")
)

// Title is one cover to produce. ID defaults to Slugify(Text).
type Title struct {
	Text string `yaml:"title"`
	ID   string `yaml:"id,omitempty"`
}

// UnmarshalYAML accepts either a bare string or a {title, id} mapping.
func (t *Title) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Text = value.Value
		t.ID = ""
		return nil
	}
	type plain Title
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Title(p)
	return nil
}

// Identifier returns the explicit ID or the slug of the text.
func (t Title) Identifier() string {
	if id := strings.TrimSpace(t.ID); id != "" {
		return id
	}
	return Slugify(t.Text)
}

// TitlesFromArgs turns command-line arguments into titles.
func TitlesFromArgs(args []string) []Title {
	vals := FilterEmpty(args)
	titles := make([]Title, 0, len(vals))
	for _, v := range vals {
		titles = append(titles, Title{Text: v})
	}
	return titles
}

// TitlesFromPosts returns one title per published post, keyed by slug.
func TitlesFromPosts(s *Store) ([]Title, error) {
	posts, err := s.ListPosts()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	titles := make([]Title, 0, len(posts))
	for _, p := range posts {
		titles = append(titles, Title{Text: p.Title, ID: p.Slug})
	}
	return titles, nil
}

// LoadTitlesFile reads a YAML titles file. The file is either a sequence of
// titles or a mapping with a "titles" key holding one.
func LoadTitlesFile(path string) ([]Title, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read titles file: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse titles file %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	node := root.Content[0]
	if node.Kind == yaml.MappingNode {
		var doc struct {
			Titles []Title `yaml:"titles"`
		}
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse titles file %s: %w", path, err)
		}
		return doc.Titles, nil
	}
	var titles []Title
	if err := node.Decode(&titles); err != nil {
		return nil, fmt.Errorf("parse titles file %s: %w", path, err)
	}
	return titles, nil
}

// ItemStatus is the outcome of one batch item.
type ItemStatus int

const (
	ItemFailed ItemStatus = iota
	ItemUploaded
	ItemSkipped
	ItemSaved
)

func (s ItemStatus) String() string {
	switch s {
	case ItemUploaded:
		return "uploaded"
	case ItemSkipped:
		return "skipped"
	case ItemSaved:
		return "saved"
	default:
		return "failed"
	}
}

// ItemResult reports what happened to one title.
type ItemResult struct {
	Title    Title
	ID       string
	Status   ItemStatus
	FontSize int
	Hash     string
	Size     int
	Path     string
	Duration time.Duration
	Err      error
}

// Report collects the results of a batch run in input order.
type Report struct {
	RunID    string
	Items    []ItemResult
	Started  time.Time
	Finished time.Time
}

// Count returns the number of items with status s.
func (r Report) Count(s ItemStatus) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any item failed.
func (r Report) Failed() bool {
	return r.Count(ItemFailed) > 0
}

// Mode selects where rendered covers go.
type Mode int

const (
	// ModePublish sends covers to a publish.Store.
	ModePublish Mode = iota
	// ModeLocal writes covers to OutputDir.
	ModeLocal
)

// BatchOptions configures a Batch.
type BatchOptions struct {
	Renderer  *ogimage.Renderer
	Store     publish.Store // required in ModePublish
	Mode      Mode
	OutputDir string // required in ModeLocal
	Workers   int
	LockFile  string // empty disables locking
	History   *Store // optional run history
	Logger    *slog.Logger
}

// Batch renders and publishes many titles. Failures are recorded per item
// and never stop the run.
type Batch struct {
	renderer  *ogimage.Renderer
	publisher *publish.Publisher
	mode      Mode
	outDir    string
	workers   int
	lockFile  string
	history   *Store
	logger    *slog.Logger
}

// NewBatch validates opts and returns a Batch.
func NewBatch(opts BatchOptions) (*Batch, error) {
	if opts.Renderer == nil {
		return nil, errors.New("batch: renderer is required")
	}
	b := &Batch{
		renderer: opts.Renderer,
		mode:     opts.Mode,
		outDir:   opts.OutputDir,
		workers:  opts.Workers,
		lockFile: opts.LockFile,
		history:  opts.History,
		logger:   opts.Logger,
	}
	switch opts.Mode {
	case ModePublish:
		if opts.Store == nil {
			return nil, errors.New("batch: store is required in publish mode")
		}
		b.publisher = publish.NewPublisher(opts.Store)
	case ModeLocal:
		if strings.TrimSpace(opts.OutputDir) == "" {
			return nil, errors.New("batch: output directory is required in local mode")
		}
	default:
		return nil, fmt.Errorf("batch: unknown mode %d", opts.Mode)
	}
	if b.workers < 1 {
		b.workers = 1
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	return b, nil
}

// Run processes titles. Items sharing an identifier run one after another in
// input order, so the last of them wins; distinct identifiers run in
// parallel on up to Workers goroutines. The returned error is non-nil only
// when the run could not start.
func (b *Batch) Run(ctx context.Context, titles []Title) (Report, error) {
	if b.lockFile != "" {
		unlock, err := acquireLock(b.lockFile)
		if err != nil {
			return Report{}, err
		}
		defer unlock()
	}

	report := Report{
		RunID:   uuid.NewString(),
		Items:   make([]ItemResult, len(titles)),
		Started: time.Now(),
	}
	logger := b.logger.With("run_id", report.RunID)
	logger.Info("batch started", "titles", len(titles), "workers", b.workers)

	groups := groupByID(titles)
	jobs := make(chan []int)
	var wg sync.WaitGroup
	for w := 0; w < min(b.workers, len(groups)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				for _, i := range group {
					report.Items[i] = b.runItem(ctx, logger, titles[i])
				}
			}
		}()
	}
	for _, g := range groups {
		jobs <- g
	}
	close(jobs)
	wg.Wait()

	report.Finished = time.Now()
	if b.history != nil {
		if err := b.history.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("record run history failed", "error", err)
		}
	}
	logger.Info("batch finished",
		"uploaded", report.Count(ItemUploaded),
		"skipped", report.Count(ItemSkipped),
		"saved", report.Count(ItemSaved),
		"failed", report.Count(ItemFailed),
		"elapsed", report.Finished.Sub(report.Started).Round(time.Millisecond),
	)
	return report, nil
}

func acquireLock(path string) (func(), error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// groupByID returns title indexes grouped by identifier, groups ordered by
// first appearance.
func groupByID(titles []Title) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, t := range titles {
		id := t.Identifier()
		g, ok := pos[id]
		if !ok {
			g = len(groups)
			pos[id] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (b *Batch) runItem(ctx context.Context, logger *slog.Logger, t Title) (res ItemResult) {
	start := time.Now()
	res = ItemResult{Title: t, ID: t.Identifier()}
	logger = logger.With("id", res.ID)
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			logger.Warn("cover failed", "error", res.Err)
			return
		}
		logger.Info("cover "+res.Status.String(), "font_size", res.FontSize, "bytes", res.Size)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if !ValidID(res.ID) {
		res.Err = fmt.Errorf("%w: %q", ErrInvalidID, res.ID)
		return res
	}

	img, err := b.renderer.Render(t.Text)
	if err != nil {
		res.Err = fmt.Errorf("render %s: %w", res.ID, err)
		return res
	}
	res.FontSize = img.FontSize()

	if b.mode == ModeLocal {
		b.save(img, &res)
		return res
	}

	out := b.publisher.Publish(ctx, res.ID, img)
	res.Hash, res.Size, res.Err = out.Hash, out.Size, out.Err
	switch out.Status {
	case publish.StatusUploaded:
		res.Status = ItemUploaded
	case publish.StatusSkipped:
		res.Status = ItemSkipped
	default:
		res.Status = ItemFailed
	}
	return res
}

// save writes img to the output directory unless an identical file is
// already there.
func (b *Batch) save(img *ogimage.Image, res *ItemResult) {
	data, err := img.Bytes()
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", publish.ErrEncode, res.ID, err)
		return
	}
	res.Hash = publish.Hash(data)
	res.Size = len(data)
	res.Path = filepath.Join(b.outDir, res.ID+img.Format().Ext())

	if existing, err := os.ReadFile(res.Path); err == nil && publish.Hash(existing) == res.Hash {
		res.Status = ItemSkipped
		return
	}
	if err := writeFileAtomic(res.Path, data); err != nil {
		res.Err = fmt.Errorf("save %s: %w", res.ID, err)
		return
	}
	res.Status = ItemSaved
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
