package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/cwygoda/papers/internal/domain"
)

// fakeReporter implements domain.ProgressReporter for testing.
type fakeReporter struct {
	mu       sync.Mutex
	states   []domain.TaskState
	messages []string
	steps    [][2]int
	resets   int
	finished string
	failed   error
	total    int64
	position int64
}

func (r *fakeReporter) SetTotal(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *fakeReporter) SetPosition(pos int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = pos
}

func (r *fakeReporter) SetMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *fakeReporter) SetStep(step, steps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, [2]int{step, steps})
}

func (r *fakeReporter) SetState(state domain.TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *fakeReporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.total, r.position = 0, 0
}

func (r *fakeReporter) Finish(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = msg
}

func (r *fakeReporter) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = err
}

// fakeDisplay implements domain.Display for testing.
type fakeDisplay struct {
	mu        sync.Mutex
	reporters map[string]*fakeReporter
	order     []string
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{reporters: make(map[string]*fakeReporter)}
}

func (d *fakeDisplay) Register(label string) domain.ProgressReporter {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &fakeReporter{}
	d.reporters[label] = r
	d.order = append(d.order, label)
	return r
}

func (d *fakeDisplay) get(label string) *fakeReporter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reporters[label]
}

// fakeDiscoverer returns canned links or errors per index URL.
type fakeDiscoverer struct {
	links map[string][]string
	errs  map[string]error
	// entered, when set, receives once per call before returning.
	entered chan<- string
	// release, when set, blocks every call until closed.
	release <-chan struct{}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, indexURL, prefix string) ([]string, error) {
	if f.entered != nil {
		f.entered <- indexURL
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[indexURL]; err != nil {
		return nil, err
	}
	return f.links[indexURL], nil
}

// fakeDownloader records downloads and fails for URLs in errs.
type fakeDownloader struct {
	mu   sync.Mutex
	size int64
	errs map[string]error
	got  []string
}

func (f *fakeDownloader) Download(ctx context.Context, url, dir string, progress domain.ProgressReporter) (int64, error) {
	f.mu.Lock()
	f.got = append(f.got, url)
	f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return 0, err
	}
	progress.SetTotal(f.size)
	progress.SetPosition(f.size)
	return f.size, nil
}

func (f *fakeDownloader) downloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

var errBoom = errors.New("boom")
