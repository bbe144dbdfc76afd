package export_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pipeloom/pipeloom/pkg/export"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

func bundlePipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		ID:          "p1",
		Name:        "daily-report",
		Description: "Fetch sales data and publish a report.",
		Revision:    2,
		Steps: []pipeline.Step{
			{ID: "fetch", Name: "Fetch Sales", Type: pipeline.TypeSource},
			{ID: "store", Name: "Store Report", DependsOn: []string{"fetch"}, Type: pipeline.TypeSink},
		},
		Image: pipeline.ImageSpec{
			Base:    "python:3.11",
			Workdir: "/srv/job",
			Env:     map[string]string{"TZ": "UTC", "APP_MODE": "batch"},
		},
		Requirements: []string{"pandas", "sqlalchemy"},
		UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func readEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", name, err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		return string(body)
	}
	t.Fatalf("archive has no entry %q", name)
	return ""
}

// ─── archive layout ───

func TestBundle_Contents(t *testing.T) {
	data, err := export.Bundle(bundlePipeline())
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}

	want := []string{"pipeline.json", "pipeline.dot", "pipeline.hcl", "Dockerfile", "requirements.txt"}
	if len(zr.File) != len(want) {
		t.Fatalf("archive has %d entries, want %d", len(zr.File), len(want))
	}
	for i, name := range want {
		if zr.File[i].Name != name {
			t.Errorf("entry[%d] = %q, want %q", i, zr.File[i].Name, name)
		}
	}

	var decoded pipeline.Pipeline
	if err := json.Unmarshal([]byte(readEntry(t, zr, "pipeline.json")), &decoded); err != nil {
		t.Fatalf("pipeline.json does not decode: %v", err)
	}
	if decoded.ID != "p1" || len(decoded.Steps) != 2 {
		t.Errorf("decoded pipeline = %q with %d steps", decoded.ID, len(decoded.Steps))
	}

	dot := readEntry(t, zr, "pipeline.dot")
	if !strings.Contains(dot, `"fetch" -> "store";`) {
		t.Errorf("pipeline.dot missing edge:\n%s", dot)
	}
	hcl := readEntry(t, zr, "pipeline.hcl")
	if !strings.Contains(hcl, `pipeline "daily-report"`) {
		t.Errorf("pipeline.hcl missing block:\n%s", hcl)
	}
}

func TestBundle_Deterministic(t *testing.T) {
	a, err := export.Bundle(bundlePipeline())
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	b, err := export.Bundle(bundlePipeline())
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical pipelines produced different archives")
	}
}

func TestWriteBundle_NilPipeline(t *testing.T) {
	if err := export.WriteBundle(io.Discard, nil); err == nil {
		t.Fatal("WriteBundle(nil) expected error")
	}
}

// ─── rendered files ───

func TestDockerfile(t *testing.T) {
	got := string(export.Dockerfile(bundlePipeline()))

	for _, want := range []string{
		"FROM python:3.11\n",
		"WORKDIR /srv/job\n",
		"ENV APP_MODE=\"batch\"\n",
		"ENV TZ=\"UTC\"\n",
		"COPY requirements.txt .\n",
		"RUN pip install --no-cache-dir -r requirements.txt\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Dockerfile missing %q:\n%s", want, got)
		}
	}
	// Env lines are sorted, not map-ordered.
	if strings.Index(got, "APP_MODE") > strings.Index(got, "TZ") {
		t.Error("env lines not sorted")
	}
}

func TestDockerfile_Defaults(t *testing.T) {
	got := string(export.Dockerfile(&pipeline.Pipeline{}))
	if !strings.HasPrefix(got, "FROM python:3.12-slim\n") {
		t.Errorf("Dockerfile = %q, want default base", got)
	}
	if !strings.Contains(got, "WORKDIR /app\n") {
		t.Error("Dockerfile missing default workdir")
	}
	if strings.Contains(got, "ENV ") {
		t.Error("Dockerfile has env lines for empty spec")
	}
}

func TestRequirements(t *testing.T) {
	if got := string(export.Requirements(bundlePipeline())); got != "pandas\nsqlalchemy\n" {
		t.Errorf("Requirements = %q", got)
	}
	if got := export.Requirements(&pipeline.Pipeline{}); len(got) != 0 {
		t.Errorf("Requirements for empty list = %q", got)
	}
}
