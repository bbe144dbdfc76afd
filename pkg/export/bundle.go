// Package export packages a pipeline definition into a runnable bundle: the
// definition itself in three formats, a Dockerfile built from the image spec,
// and the requirements list.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

const (
	defaultImageBase = "python:3.12-slim"
	defaultWorkdir   = "/app"
)

// WriteBundle writes a ZIP archive for p to w. Archive entries carry the
// pipeline's update time so identical definitions produce identical bytes.
func WriteBundle(w io.Writer, p *pipeline.Pipeline) error {
	if p == nil {
		return fmt.Errorf("export: no pipeline")
	}
	ts := p.UpdatedAt
	if ts.IsZero() {
		ts = time.Unix(0, 0).UTC()
	}

	def, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pipeline: %w", err)
	}

	files := []struct {
		name string
		body []byte
	}{
		{"pipeline.json", append(def, '\n')},
		{"pipeline.dot", []byte(pipeline.ExportDOT(p))},
		{"pipeline.hcl", pipeline.ExportHCL(p)},
		{"Dockerfile", Dockerfile(p)},
		{"requirements.txt", Requirements(p)},
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.name,
			Method:   zip.Deflate,
			Modified: ts,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.body); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

// Bundle returns the ZIP archive for p as a byte slice.
func Bundle(p *pipeline.Pipeline) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dockerfile renders the container recipe for p's image spec. Missing fields
// fall back to a slim Python base.
func Dockerfile(p *pipeline.Pipeline) []byte {
	base := p.Image.Base
	if base == "" {
		base = defaultImageBase
	}
	workdir := p.Image.Workdir
	if workdir == "" {
		workdir = defaultWorkdir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", base)
	fmt.Fprintf(&b, "WORKDIR %s\n", workdir)

	if len(p.Image.Env) > 0 {
		keys := make([]string, 0, len(p.Image.Env))
		for k := range p.Image.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('\n')
		for _, k := range keys {
			fmt.Fprintf(&b, "ENV %s=%q\n", k, p.Image.Env[k])
		}
	}

	b.WriteString("\nCOPY requirements.txt .\n")
	b.WriteString("RUN pip install --no-cache-dir -r requirements.txt\n")
	b.WriteString("\nCOPY . .\n")
	b.WriteString("\nCMD [\"python\", \"main.py\"]\n")
	return []byte(b.String())
}

// Requirements renders the dependency list, one package per line.
func Requirements(p *pipeline.Pipeline) []byte {
	if len(p.Requirements) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(p.Requirements, "\n") + "\n")
}
