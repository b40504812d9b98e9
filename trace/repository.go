package trace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultPageSize is the page size List uses when none is given.
const DefaultPageSize = 20

// Repository is the interface for persisting trace data.
type Repository interface {
	Save(ctx context.Context, trace *Trace) error
}

// FileRepository persists trace data as JSON files.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a new FileRepository that writes to the given directory.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Save writes the trace as JSON to {dir}/{trace_id}.json.
func (r *FileRepository) Save(_ context.Context, trace *Trace) error {
	if trace.TraceID == "" {
		return goerr.New("trace ID is required")
	}

	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return goerr.Wrap(err, "failed to create trace directory", goerr.V("dir", r.dir))
	}

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal trace")
	}

	filePath := filepath.Join(r.dir, trace.TraceID+".json")
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write trace file", goerr.V("path", filePath))
	}

	return nil
}

// Load reads the trace saved under id.
func (r *FileRepository) Load(_ context.Context, id string) (*Trace, error) {
	filePath := filepath.Join(r.dir, filepath.Base(id)+".json")
	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read trace file", goerr.V("path", filePath))
	}

	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal trace", goerr.V("path", filePath))
	}
	return &t, nil
}

// Summary is a lightweight view of a stored trace, built from file metadata without reading the file.
type Summary struct {
	TraceID   string    `json:"trace_id"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is one page of List.
type Page struct {
	Traces        []Summary `json:"traces"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// List returns stored traces ordered by ID. pageToken is the NextPageToken of the previous page, or empty.
func (r *FileRepository) List(_ context.Context, pageSize int, pageToken string) (*Page, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read trace directory", goerr.V("dir", r.dir))
	}

	type fileEntry struct {
		name string
		info os.FileInfo
	}
	var files []fileEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{name: e.Name(), info: info})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})

	startIdx := 0
	if pageToken != "" {
		b, err := base64.URLEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid page token")
		}
		last := string(b)
		startIdx = sort.Search(len(files), func(i int) bool {
			return files[i].name > last
		})
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	endIdx := min(startIdx+pageSize, len(files))

	page := &Page{Traces: []Summary{}}
	for _, f := range files[startIdx:endIdx] {
		page.Traces = append(page.Traces, Summary{
			TraceID:   strings.TrimSuffix(f.name, ".json"),
			Size:      f.info.Size(),
			UpdatedAt: f.info.ModTime(),
		})
	}
	if endIdx < len(files) {
		page.NextPageToken = base64.URLEncoding.EncodeToString([]byte(files[endIdx-1].name))
	}

	return page, nil
}
