package overlay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"overlayvideos/internal/blobstore"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/mediaservices"
	"overlayvideos/internal/storage"
	"overlayvideos/internal/store"
)

const fakeBlobHost = "https://blob.test/"

type submittedJob struct {
	Transform   string
	Name        string
	Inputs      []jobs.Input
	OutputAsset string
	Correlation map[string]string
}

type fakeMedia struct {
	mu sync.Mutex

	transforms      map[string]jobs.Transform
	getTransformErr error
	transformCreate int

	assets      []string
	permissions map[string][]mediaservices.Permission

	// script is replayed by GetJob; the last entry repeats.
	script     []jobs.Job
	getJobErr  error
	getJobCall int
	submitted  []submittedJob
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		transforms:  map[string]jobs.Transform{},
		permissions: map[string][]mediaservices.Permission{},
	}
}

func (f *fakeMedia) GetTransform(_ context.Context, name string) (jobs.Transform, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getTransformErr != nil {
		return jobs.Transform{}, f.getTransformErr
	}
	t, ok := f.transforms[name]
	if !ok {
		return jobs.Transform{}, fmt.Errorf("%w: transform %s", mediaservices.ErrNotFound, name)
	}
	return t, nil
}

func (f *fakeMedia) CreateTransform(_ context.Context, name, _ string) (jobs.Transform, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transformCreate++
	t := jobs.Transform{Name: name, Description: mediaservices.TransformDescription}
	f.transforms[name] = t
	return t, nil
}

func (f *fakeMedia) CreateAsset(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, name)
	return nil
}

func (f *fakeMedia) ContainerURL(_ context.Context, asset string, perm mediaservices.Permission, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions[asset] = append(f.permissions[asset], perm)
	return fakeBlobHost + asset, nil
}

func (f *fakeMedia) CreateJob(_ context.Context, transform, name string, inputs []jobs.Input, outputAsset string, correlation map[string]string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, submittedJob{
		Transform:   transform,
		Name:        name,
		Inputs:      append([]jobs.Input(nil), inputs...),
		OutputAsset: outputAsset,
		Correlation: correlation,
	})
	return jobs.Job{Name: name, State: jobs.StateQueued, CorrelationData: correlation}, nil
}

func (f *fakeMedia) GetJob(_ context.Context, _, name string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getJobErr != nil {
		return jobs.Job{}, f.getJobErr
	}
	if len(f.script) == 0 {
		return jobs.Job{}, errors.New("no scripted job states")
	}
	i := f.getJobCall
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.getJobCall++
	job := f.script[i]
	job.Name = name
	return job, nil
}

func (f *fakeMedia) jobCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getJobCall
}

// fakeBlobs keeps containers in memory, keyed by container URL.
type fakeBlobs struct {
	mu sync.Mutex

	containers map[string]map[string][]byte
	pageSize   int
	listCalls  int
	// failOn makes Download of the named blob write a partial file and fail.
	failOn map[string]error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{containers: map[string]map[string][]byte{}, failOn: map[string]error{}}
}

func (b *fakeBlobs) put(containerURL, name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.containers[containerURL]
	if !ok {
		c = map[string][]byte{}
		b.containers[containerURL] = c
	}
	c[name] = data
}

func (b *fakeBlobs) get(containerURL, name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.containers[containerURL][name]
	return data, ok
}

func (b *fakeBlobs) Upload(_ context.Context, containerURL, blobName, localPath, _ string) (int64, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, err
	}
	b.put(containerURL, blobName, data)
	return int64(len(data)), nil
}

func (b *fakeBlobs) ListSegment(_ context.Context, containerURL, marker string) (blobstore.Segment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++

	names := make([]string, 0, len(b.containers[containerURL]))
	for name := range b.containers[containerURL] {
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if marker != "" {
		n, err := strconv.Atoi(marker)
		if err != nil {
			return blobstore.Segment{}, fmt.Errorf("bad marker %q", marker)
		}
		start = n
	}
	end := len(names)
	if b.pageSize > 0 && start+b.pageSize < end {
		end = start + b.pageSize
	}
	seg := blobstore.Segment{Names: names[start:end]}
	if end < len(names) {
		seg.NextMarker = strconv.Itoa(end)
	}
	return seg, nil
}

func (b *fakeBlobs) Download(ctx context.Context, containerURL, blobName, localPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	failErr := b.failOn[blobName]
	data, ok := b.containers[containerURL][blobName]
	b.mu.Unlock()

	if failErr != nil {
		_ = os.WriteFile(localPath, []byte("partial"), 0o644)
		return 0, failErr
	}
	if !ok {
		return 0, fmt.Errorf("blob %s not found", blobName)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type ledgerUpdate struct {
	ID    string
	State string
	Err   string
}

type fakeLedger struct {
	mu      sync.Mutex
	created []store.Run
	updates []ledgerUpdate
}

func (l *fakeLedger) CreateRun(_ context.Context, run store.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, run)
	return nil
}

func (l *fakeLedger) UpdateRunState(_ context.Context, id, state string, errMsg *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := ledgerUpdate{ID: id, State: state}
	if errMsg != nil {
		u.Err = *errMsg
	}
	l.updates = append(l.updates, u)
	return nil
}

type fakePublisher struct {
	dir    string
	prefix string
	calls  int
}

func (p *fakePublisher) PublishDir(_ context.Context, dir, prefix string) ([]storage.Published, error) {
	p.calls++
	p.dir = dir
	p.prefix = prefix
	return []storage.Published{{Key: prefix + "/ignite_1000000.mp4", URL: "https://cdn.test/" + prefix}}, nil
}
