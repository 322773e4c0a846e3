package overlay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"overlayvideos/internal/jobs"
	"overlayvideos/internal/logging"
	"overlayvideos/internal/mediaservices"
)

var quickWait = WaitOptions{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 1.5}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestEnsureTransformKeepsExisting(t *testing.T) {
	svc := newFakeMedia()
	svc.transforms["OverlayTransform"] = jobs.Transform{Name: "OverlayTransform", Description: "custom"}

	got, err := EnsureTransform(context.Background(), svc, "OverlayTransform", "logo", logging.NewNop())
	if err != nil {
		t.Fatalf("EnsureTransform: %v", err)
	}
	if got.Description != "custom" {
		t.Fatalf("existing transform was replaced: %+v", got)
	}
	if svc.transformCreate != 0 {
		t.Fatalf("create calls = %d, want 0", svc.transformCreate)
	}
}

func TestEnsureTransformCreatesOnce(t *testing.T) {
	svc := newFakeMedia()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := EnsureTransform(ctx, svc, "OverlayTransform", "logo", logging.NewNop())
		if err != nil {
			t.Fatalf("EnsureTransform #%d: %v", i, err)
		}
		if got.Name != "OverlayTransform" {
			t.Fatalf("name = %q", got.Name)
		}
	}
	if svc.transformCreate != 1 {
		t.Fatalf("create calls = %d, want 1", svc.transformCreate)
	}
}

func TestEnsureTransformPropagatesLookupFailure(t *testing.T) {
	svc := newFakeMedia()
	boom := &mediaservices.APIError{StatusCode: 500, Code: "InternalError", Message: "boom"}
	svc.getTransformErr = boom

	_, err := EnsureTransform(context.Background(), svc, "OverlayTransform", "logo", logging.NewNop())
	var apiErr *mediaservices.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "InternalError" {
		t.Fatalf("expected APIError, got %v", err)
	}
	if svc.transformCreate != 0 {
		t.Fatalf("create should not be attempted, calls = %d", svc.transformCreate)
	}
}

func TestNewNamesShareUniqueSuffix(t *testing.T) {
	a, b := NewNames(), NewNames()
	if a.Uniqueness == b.Uniqueness {
		t.Fatalf("suffix repeated: %q", a.Uniqueness)
	}
	if len(a.Uniqueness) != suffixLength {
		t.Fatalf("suffix length = %d", len(a.Uniqueness))
	}
	for _, name := range []string{a.Job, a.Input, a.Logo, a.Output} {
		if !strings.HasSuffix(name, a.Uniqueness) {
			t.Fatalf("%q does not end with %q", name, a.Uniqueness)
		}
	}
	if a.Job != "job-"+a.Uniqueness || a.Output != "output-"+a.Uniqueness {
		t.Fatalf("unexpected names: %+v", a)
	}
}

func TestCreateInputAssetChecksFileFirst(t *testing.T) {
	svc := newFakeMedia()
	blobs := newFakeBlobs()
	missing := filepath.Join(t.TempDir(), "nope.mp4")

	err := CreateInputAsset(context.Background(), svc, blobs, "input-x", missing, time.Hour, logging.NewNop())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(svc.assets) != 0 {
		t.Fatalf("assets created for missing file: %v", svc.assets)
	}
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	svc := newFakeMedia()
	blobs := newFakeBlobs()
	ctx := context.Background()
	src := writeFile(t, t.TempDir(), "ignite.mp4", "frame data")

	if err := CreateInputAsset(ctx, svc, blobs, "input-x", src, time.Hour, logging.NewNop()); err != nil {
		t.Fatalf("CreateInputAsset: %v", err)
	}
	if perms := svc.permissions["input-x"]; len(perms) != 1 || perms[0] != mediaservices.PermissionReadWrite {
		t.Fatalf("upload permissions = %v", perms)
	}

	dest := t.TempDir()
	files, err := DownloadResults(ctx, svc, blobs, "input-x", dest, time.Hour, 2, logging.NewNop())
	if err != nil {
		t.Fatalf("DownloadResults: %v", err)
	}
	want := filepath.Join(dest, "input-x", "ignite.mp4")
	if len(files) != 1 || files[0] != want {
		t.Fatalf("files = %v, want [%s]", files, want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "frame data" {
		t.Fatalf("content = %q", got)
	}
}

func TestWaitForJobStopsAtFirstTerminalState(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{
		{State: jobs.StateQueued},
		{State: jobs.StateScheduled},
		{State: jobs.StateProcessing, Outputs: []jobs.Output{{State: jobs.StateProcessing, Progress: 40}}},
		{State: jobs.StateFinished},
		{State: jobs.StateError},
	}

	job, err := WaitForJob(context.Background(), svc, "OverlayTransform", "job-1", quickWait, logging.NewNop())
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if job.State != jobs.StateFinished {
		t.Fatalf("state = %s, want Finished", job.State)
	}
	if calls := svc.jobCalls(); calls != 4 {
		t.Fatalf("GetJob calls = %d, want 4", calls)
	}
}

func TestWaitForJobReportsProgress(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{
		{Name: "job-1", State: jobs.StateQueued},
		{Name: "job-1", State: jobs.StateProcessing, Outputs: []jobs.Output{{State: jobs.StateProcessing, Progress: 40}}},
		{Name: "job-1", State: jobs.StateFinished},
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var seen []jobs.State
	opts := quickWait
	opts.Observe = func(j jobs.Job) { seen = append(seen, j.State) }

	if _, err := WaitForJob(context.Background(), svc, "OverlayTransform", "job-1", opts, logger); err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if len(seen) != 2 || seen[0] != jobs.StateQueued || seen[1] != jobs.StateProcessing {
		t.Fatalf("observed = %v", seen)
	}
	out := buf.String()
	for _, want := range []string{"state=Queued", "state=Processing", "progress=40"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "state=Finished") {
		t.Fatalf("terminal state logged as progress:\n%s", out)
	}
}

func TestRunnerWithProgressReceivesObservations(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{
		{State: jobs.StateScheduled},
		{State: jobs.StateFinished},
	}
	dir := t.TempDir()
	req := Request{
		InputFile:   writeFile(t, dir, "ignite.mp4", "video"),
		OverlayFile: writeFile(t, dir, "logo.png", "image"),
		OutputDir:   filepath.Join(dir, "Output"),
	}
	var seen []jobs.State
	r := newTestRunner(svc, newFakeBlobs()).WithProgress(func(j jobs.Job) { seen = append(seen, j.State) })

	if _, err := r.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 1 || seen[0] != jobs.StateScheduled {
		t.Fatalf("observed = %v", seen)
	}
}

func TestWaitForJobTimesOut(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{{State: jobs.StateProcessing}}
	opts := quickWait
	opts.Timeout = 20 * time.Millisecond

	job, err := WaitForJob(context.Background(), svc, "OverlayTransform", "job-1", opts, logging.NewNop())
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if job.State != jobs.StateProcessing {
		t.Fatalf("last observed state = %s", job.State)
	}
}

func TestWaitForJobHonorsCancellation(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{{State: jobs.StateQueued}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForJob(ctx, svc, "OverlayTransform", "job-1", WaitOptions{Interval: time.Hour}, logging.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("cancellation reported as timeout: %v", err)
	}
}

func TestWaitForJobReturnsLookupError(t *testing.T) {
	svc := newFakeMedia()
	svc.getJobErr = errors.New("connection reset")

	_, err := WaitForJob(context.Background(), svc, "OverlayTransform", "job-1", quickWait, logging.NewNop())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestWaitOptionsBackoffIsCapped(t *testing.T) {
	opts := WaitOptions{Interval: 10 * time.Second, MaxInterval: 60 * time.Second, Multiplier: 1.5}.normalized()
	d := opts.Interval
	var seen []time.Duration
	for i := 0; i < 6; i++ {
		seen = append(seen, d)
		d = opts.next(d)
	}
	want := []time.Duration{10 * time.Second, 15 * time.Second, 22500 * time.Millisecond, 33750 * time.Millisecond, 50625 * time.Millisecond, 60 * time.Second}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("delay[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestDownloadResultsFollowsMarkers(t *testing.T) {
	svc := newFakeMedia()
	blobs := newFakeBlobs()
	blobs.pageSize = 2
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4", "d.json", "e.json"} {
		blobs.put(fakeBlobHost+"output-x", name, []byte(name))
	}

	dest := t.TempDir()
	files, err := DownloadResults(context.Background(), svc, blobs, "output-x", dest, time.Hour, 0, logging.NewNop())
	if err != nil {
		t.Fatalf("DownloadResults: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("files = %d, want 5", len(files))
	}
	if blobs.listCalls != 3 {
		t.Fatalf("list calls = %d, want 3", blobs.listCalls)
	}
	if perms := svc.permissions["output-x"]; len(perms) != 1 || perms[0] != mediaservices.PermissionRead {
		t.Fatalf("download permissions = %v", perms)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if string(data) != filepath.Base(f) {
			t.Fatalf("%s content = %q", f, data)
		}
	}
}

func TestDownloadResultsEmptyContainer(t *testing.T) {
	dest := t.TempDir()
	files, err := DownloadResults(context.Background(), newFakeMedia(), newFakeBlobs(), "output-x", dest, time.Hour, 4, logging.NewNop())
	if err != nil {
		t.Fatalf("DownloadResults: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("files = %v", files)
	}
	info, err := os.Stat(filepath.Join(dest, "output-x"))
	if err != nil || !info.IsDir() {
		t.Fatalf("output directory missing: %v", err)
	}
}

func TestDownloadFailureKeepsCompletedFiles(t *testing.T) {
	blobs := newFakeBlobs()
	boom := errors.New("connection dropped")
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		blobs.put(fakeBlobHost+"output-x", name, []byte(name))
	}
	blobs.failOn["b.mp4"] = boom

	dest := t.TempDir()
	files, err := DownloadResults(context.Background(), newFakeMedia(), blobs, "output-x", dest, time.Hour, 1, logging.NewNop())
	if !errors.Is(err, boom) {
		t.Fatalf("expected download error, got %v", err)
	}
	dir := filepath.Join(dest, "output-x")
	if len(files) != 1 || files[0] != filepath.Join(dir, "a.mp4") {
		t.Fatalf("completed files = %v", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.mp4")); err != nil {
		t.Fatalf("completed file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestLocalPathRejectsEscapingNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"../secret", "a/../../b", ".."} {
		if _, err := localPath(dir, name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	got, err := localPath(dir, "thumbs/1.jpg")
	if err != nil {
		t.Fatalf("localPath: %v", err)
	}
	if got != filepath.Join(dir, "thumbs", "1.jpg") {
		t.Fatalf("localPath = %q", got)
	}
}

func TestResolveUnder(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		want string
	}{
		{"clip.mp4", filepath.Join(dir, "clip.mp4")},
		{"uploads/clip.mp4", filepath.Join(dir, "uploads", "clip.mp4")},
		{"/etc/passwd", filepath.Join(dir, "etc", "passwd")},
		{"a/../b.png", filepath.Join(dir, "b.png")},
	}
	for _, tc := range cases {
		got, err := ResolveUnder(dir, tc.name)
		if err != nil {
			t.Fatalf("ResolveUnder(%q): %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("ResolveUnder(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
	for _, name := range []string{"", ".", "..", "../x", "a/../../x", "/../x"} {
		if _, err := ResolveUnder(dir, name); !errors.Is(err, ErrOutsideDir) {
			t.Fatalf("ResolveUnder(%q) err = %v, want ErrOutsideDir", name, err)
		}
	}
}

func TestCreateInputAssetLogsMediaKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	src := writeFile(t, t.TempDir(), "ignite.mp4", "frame data")

	if err := CreateInputAsset(context.Background(), newFakeMedia(), newFakeBlobs(), "input-x", src, time.Hour, logger); err != nil {
		t.Fatalf("CreateInputAsset: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "kind=video") || !strings.Contains(out, "content_type=video/mp4") {
		t.Fatalf("upload log = %s", out)
	}
}

func newTestRunner(svc *fakeMedia, blobs *fakeBlobs) *Runner {
	r := NewRunner(svc, blobs, Options{
		TransformName:       "OverlayTransform",
		OverlayLabel:        "logo",
		UploadSASTTL:        time.Hour,
		DownloadSASTTL:      time.Hour,
		DownloadConcurrency: 2,
		Wait:                quickWait,
	}, logging.NewNop())
	r.newNames = func() Names { return NamesFromSuffix("fixed") }
	return r
}

func TestRunnerFinishedJob(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{{State: jobs.StateProcessing}, {State: jobs.StateFinished}}
	blobs := newFakeBlobs()
	blobs.put(fakeBlobHost+"output-fixed", "ignite_1000000.mp4", []byte("encoded"))
	ledger := &fakeLedger{}
	pub := &fakePublisher{}

	in := t.TempDir()
	out := t.TempDir()
	req := Request{
		InputFile:       writeFile(t, in, "ignite.mp4", "video"),
		OverlayFile:     writeFile(t, in, "cloud.png", "image"),
		OutputDir:       out,
		CorrelationData: DefaultCorrelationData(),
	}

	res, err := newTestRunner(svc, blobs).WithLedger(ledger).WithPublisher(pub).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Job.State != jobs.StateFinished {
		t.Fatalf("state = %s", res.Job.State)
	}
	if svc.transformCreate != 1 {
		t.Fatalf("transform create calls = %d", svc.transformCreate)
	}

	if data, ok := blobs.get(fakeBlobHost+"input-fixed", "ignite.mp4"); !ok || !bytes.Equal(data, []byte("video")) {
		t.Fatalf("input not uploaded: %q %v", data, ok)
	}
	if _, ok := blobs.get(fakeBlobHost+"logo-fixed", "cloud.png"); !ok {
		t.Fatal("overlay not uploaded")
	}

	if len(svc.submitted) != 1 {
		t.Fatalf("submitted jobs = %d", len(svc.submitted))
	}
	sub := svc.submitted[0]
	if sub.Name != "job-fixed" || sub.OutputAsset != "output-fixed" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if len(sub.Inputs) != 2 || sub.Inputs[0].AssetName != "input-fixed" || sub.Inputs[0].Label != "" ||
		sub.Inputs[1].AssetName != "logo-fixed" || sub.Inputs[1].Label != "logo" {
		t.Fatalf("unexpected inputs: %+v", sub.Inputs)
	}
	if sub.Correlation["customData1"] == "" {
		t.Fatalf("correlation data not passed: %v", sub.Correlation)
	}

	want := filepath.Join(out, "output-fixed", "ignite_1000000.mp4")
	if len(res.Downloaded) != 1 || res.Downloaded[0] != want {
		t.Fatalf("downloaded = %v", res.Downloaded)
	}
	if pub.calls != 1 || pub.dir != filepath.Join(out, "output-fixed") || pub.prefix != "output-fixed" {
		t.Fatalf("unexpected publish: %+v", pub)
	}
	if len(res.Published) != 1 {
		t.Fatalf("published = %v", res.Published)
	}

	if len(ledger.created) != 1 || ledger.created[0].JobName != "job-fixed" || ledger.created[0].State != "Queued" {
		t.Fatalf("ledger create = %+v", ledger.created)
	}
	if res.RunID != ledger.created[0].ID {
		t.Fatalf("run id = %q, ledger id = %q", res.RunID, ledger.created[0].ID)
	}
	if len(ledger.updates) != 1 || ledger.updates[0].State != "Finished" || ledger.updates[0].Err != "" {
		t.Fatalf("ledger updates = %+v", ledger.updates)
	}
}

func TestRunnerFailedJobSkipsDownload(t *testing.T) {
	svc := newFakeMedia()
	svc.script = []jobs.Job{{
		State: jobs.StateError,
		Outputs: []jobs.Output{{
			State: jobs.StateError,
			Error: &jobs.Error{
				Code:    "ServiceError",
				Message: "An error has occurred. Stage: ApplyEncodeCommand.",
				Details: []jobs.ErrorDetail{{Code: "ServiceError", Message: "Overlay input not found."}},
			},
		}},
	}}
	blobs := newFakeBlobs()
	ledger := &fakeLedger{}

	in := t.TempDir()
	out := t.TempDir()
	req := Request{
		InputFile:   writeFile(t, in, "ignite.mp4", "video"),
		OverlayFile: writeFile(t, in, "cloud.png", "image"),
		OutputDir:   out,
	}

	res, err := newTestRunner(svc, blobs).WithLedger(ledger).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Job.State != jobs.StateError {
		t.Fatalf("state = %s", res.Job.State)
	}
	if res.FailureMessage != "An error has occurred. Stage: ApplyEncodeCommand." || res.FailureDetail != "Overlay input not found." {
		t.Fatalf("failure = %q / %q", res.FailureMessage, res.FailureDetail)
	}
	if len(res.Downloaded) != 0 {
		t.Fatalf("downloaded = %v", res.Downloaded)
	}
	if _, err := os.Stat(filepath.Join(out, "output-fixed")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output directory created for failed job: %v", err)
	}
	if len(ledger.updates) != 1 || ledger.updates[0].State != "Error" || ledger.updates[0].Err != res.FailureMessage {
		t.Fatalf("ledger updates = %+v", ledger.updates)
	}
}

func TestRunnerStopsBeforeRemoteWorkWhenInputMissing(t *testing.T) {
	svc := newFakeMedia()
	req := Request{
		InputFile:   filepath.Join(t.TempDir(), "missing.mp4"),
		OverlayFile: filepath.Join(t.TempDir(), "missing.png"),
		OutputDir:   t.TempDir(),
	}

	_, err := newTestRunner(svc, newFakeBlobs()).Run(context.Background(), req)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(svc.assets) != 0 || len(svc.submitted) != 0 {
		t.Fatalf("remote work started: assets=%v jobs=%d", svc.assets, len(svc.submitted))
	}
}
