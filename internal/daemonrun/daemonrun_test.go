package daemonrun_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"docflow/internal/api"
	"docflow/internal/daemonrun"
	"docflow/internal/jobtypes"
	"docflow/internal/queue"
	"docflow/internal/testsupport"
	"docflow/internal/worker"
)

func startApp(t *testing.T) (*daemonrun.App, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2, 0, 1))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app, err := daemonrun.Build(ctx, cfg, nil, worker.WithIntervals(worker.Intervals{
		Poll:      10 * time.Millisecond,
		Heartbeat: 50 * time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	d, err := app.NewDaemon()
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return app, d.APIAddress()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, app *daemonrun.App, id string, want queue.Status) *queue.Job {
	t.Helper()
	var job *queue.Job
	waitFor(t, fmt.Sprintf("job %s to reach %s", id, want), func() bool {
		got, err := app.Store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status.IsTerminal() && got.Status != want {
			t.Fatalf("job %s ended %s (%s), want %s", id, got.Status, got.StatusMessage, want)
		}
		job = got
		return got.Status == want
	})
	return job
}

func TestTextDocumentFlowsIntoClassification(t *testing.T) {
	app, _ := startApp(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "invoice.txt")
	testsupport.WriteText(t, path, "Invoice 42\nTotal amount due: 10 EUR\nPayment within 30 days.\n")

	job, err := app.Jobs.Submit(ctx, jobtypes.TypePreprocess, jobtypes.PreprocessInput{ProjectID: 1, Path: path})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	finished := waitStatus(t, app, job.ID, queue.StatusFinished)

	var out jobtypes.PreprocessOutput
	if err := json.Unmarshal(finished.Output, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.DocType != "text" || out.SdocID <= 0 || !out.Indexed {
		t.Fatalf("unexpected output %+v", out)
	}

	rows, err := app.Tracker.ListEntity(ctx, "1/invoice.txt")
	if err != nil {
		t.Fatalf("ListEntity: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != queue.StatusFinished {
		t.Fatalf("expected one finished tracker row, got %+v", rows)
	}

	var children []*queue.Job
	waitFor(t, "classification job", func() bool {
		children, err = app.Store.Children(ctx, job.ID)
		if err != nil {
			t.Fatalf("Children: %v", err)
		}
		return len(children) == 1
	})
	if children[0].Type != jobtypes.TypeClassify || children[0].BranchIndex != nil {
		t.Fatalf("unexpected child %+v", children[0])
	}
	classified := waitStatus(t, app, children[0].ID, queue.StatusFinished)

	var labels jobtypes.ClassifyOutput
	if err := json.Unmarshal(classified.Output, &labels); err != nil {
		t.Fatalf("decode classify output: %v", err)
	}
	entity := jobtypes.SdocEntity(out.SdocID)
	if labels.Labels[entity] != "invoice" {
		t.Fatalf("expected invoice label, got %+v", labels.Labels)
	}
	rec, err := app.Tracker.Get(ctx, entity, jobtypes.TypeClassify)
	if err != nil {
		t.Fatalf("tracker Get: %v", err)
	}
	if rec.Status != queue.StatusFinished {
		t.Fatalf("unexpected classify status %q", rec.Status)
	}

	// A second classification of the same document is skipped.
	again, err := app.Jobs.Submit(ctx, jobtypes.TypeClassify, jobtypes.ClassifyInput{ProjectID: 1, SdocIDs: []int64{out.SdocID}})
	if err != nil {
		t.Fatalf("Submit rerun: %v", err)
	}
	if again.EntityID == entity {
		t.Fatalf("batch job should not share the document entity %q", entity)
	}
	rerun := waitStatus(t, app, again.ID, queue.StatusFinished)
	labels = jobtypes.ClassifyOutput{}
	if err := json.Unmarshal(rerun.Output, &labels); err != nil {
		t.Fatalf("decode rerun output: %v", err)
	}
	if labels.Skipped != 1 || len(labels.Labels) != 0 {
		t.Fatalf("expected the finished document to be skipped, got %+v", labels)
	}
	rec, err = app.Tracker.Get(ctx, entity, jobtypes.TypeClassify)
	if err != nil || rec.Status != queue.StatusFinished {
		t.Fatalf("document row should stay finished, got %+v (%v)", rec, err)
	}
}

func TestArchiveFansOutIndexedJobs(t *testing.T) {
	app, _ := startApp(t)
	ctx := context.Background()

	archive := filepath.Join(t.TempDir(), "bundle.zip")
	testsupport.WriteZip(t, archive,
		testsupport.ZipEntry{Name: "a.txt", Body: "first report summary"},
		testsupport.ZipEntry{Name: "b.txt", Body: "second report findings"},
		testsupport.ZipEntry{Name: "c.txt", Body: "third report analysis"},
	)

	job, err := app.Jobs.Submit(ctx, jobtypes.TypeExtractArchive, jobtypes.ArchiveInput{ProjectID: 7, Path: archive})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStatus(t, app, job.ID, queue.StatusFinished)

	var children []*queue.Job
	waitFor(t, "three preprocess jobs", func() bool {
		children, err = app.Store.Children(ctx, job.ID)
		if err != nil {
			t.Fatalf("Children: %v", err)
		}
		return len(children) == 3
	})
	for i, child := range children {
		if child.Type != jobtypes.TypePreprocess {
			t.Fatalf("child %d has type %s", i, child.Type)
		}
		if child.BranchIndex == nil || *child.BranchIndex != i {
			t.Fatalf("child %d has branch index %v", i, child.BranchIndex)
		}
		waitStatus(t, app, child.ID, queue.StatusFinished)
	}
	if children[0].EntityID != "7/a.txt" {
		t.Fatalf("unexpected entity id %q", children[0].EntityID)
	}
}

func TestSubmitOverHTTP(t *testing.T) {
	app, addr := startApp(t)
	if addr == "" {
		t.Fatal("expected api address")
	}

	path := filepath.Join(t.TempDir(), "note.md")
	testsupport.WriteText(t, path, "# Note\nplain text")
	body, _ := json.Marshal(jobtypes.PreprocessInput{ProjectID: 3, Path: path, MIMEType: "text/markdown"})
	resp, err := http.Post("http://"+addr+"/api/jobs/"+jobtypes.TypePreprocess, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var submitted api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	waitStatus(t, app, submitted.Job.ID, queue.StatusFinished)

	client, err := api.NewClient(addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || !status.Workers.Running {
		t.Fatalf("expected running daemon, got %+v", status)
	}
	history, err := client.Events(context.Background(), 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(history.Events) == 0 {
		t.Fatal("expected bus history")
	}
}
