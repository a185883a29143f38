package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-py/replenish/internal/storage"
)

// Result locates a written export.
type Result struct {
	Path      string
	ObjectKey string // set when the file was uploaded
}

// Exporter writes tables to <dir>/<prefix>_<branch>_<timestamp><ext> and
// optionally uploads them to object storage.
type Exporter struct {
	dir          string
	prefix       string
	store        storage.ObjectStorage
	uploadPrefix string
	now          func() time.Time

	// serializes writes so two exports never pick the same file name
	mu sync.Mutex
}

// NewExporter creates an exporter. A nil store disables uploads.
func NewExporter(dir, prefix string, store storage.ObjectStorage, uploadPrefix string) *Exporter {
	if prefix == "" {
		prefix = "recommendations"
	}
	return &Exporter{dir: dir, prefix: prefix, store: store, uploadPrefix: uploadPrefix, now: time.Now}
}

// FileName returns the export file name for name at t.
func (e *Exporter) FileName(name string, enc Encoder, t time.Time) string {
	name = strings.NewReplacer("/", "-", `\`, "-", " ", "-").Replace(name)
	return fmt.Sprintf("%s_%s%s", name, t.Format("20060102_150405"), enc.Extension())
}

// Export encodes the table of a branch selector and writes it to the output
// directory as <prefix>_<branch>_<timestamp>.
func (e *Exporter) Export(ctx context.Context, branch string, format Format, table *pipeline.Table) (Result, error) {
	return e.ExportAs(ctx, e.prefix+"_"+branch, format, table)
}

// ExportAs writes the table under a caller chosen base name.
func (e *Exporter) ExportAs(ctx context.Context, name string, format Format, table *pipeline.Table) (Result, error) {
	if table == nil {
		return Result{}, fmt.Errorf("nothing to export for %s", name)
	}
	enc := EncoderFor(format)

	var buf bytes.Buffer
	if err := enc.Encode(&buf, table); err != nil {
		return Result{}, fmt.Errorf("failed to encode export: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	name = e.FileName(name, enc, e.now())
	p := filepath.Join(e.dir, name)
	for i := 1; fileExists(p); i++ {
		p = filepath.Join(e.dir, strings.TrimSuffix(name, enc.Extension())+fmt.Sprintf("_%d", i)+enc.Extension())
	}
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		return Result{}, fmt.Errorf("failed to write export: %w", err)
	}
	res := Result{Path: p}

	if e.store != nil {
		key := path.Join(e.uploadPrefix, filepath.Base(p))
		if err := e.store.UploadObject(ctx, key, buf.Bytes(), enc.ContentType()); err != nil {
			return res, fmt.Errorf("failed to upload export: %w", err)
		}
		res.ObjectKey = key
	}

	log.Info().
		Str("path", res.Path).
		Str("object", res.ObjectKey).
		Int("rows", len(table.Rows)).
		Msg("export written")
	return res, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
