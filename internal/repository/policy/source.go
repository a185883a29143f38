package policy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresuchdata/autopo-py/replenish/internal/drive"
	"github.com/andresuchdata/autopo-py/replenish/internal/storage"
)

// Source fetches the raw policy workbook.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads the workbook from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy workbook: %w", err)
	}
	return f, nil
}

func (s FileSource) String() string { return "file:" + s.Path }

// ObjectSource reads the workbook from object storage.
type ObjectSource struct {
	Storage storage.ObjectStorage
	Key     string
}

func (s ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Storage.ReadObject(ctx, s.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy object %s: %w", s.Key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s ObjectSource) String() string { return "object:" + s.Key }

// driveFiles is the part of the Drive service used to fetch the workbook.
type driveFiles interface {
	FindFile(ctx context.Context, folderID, name string) (*drive.File, error)
	DownloadFile(ctx context.Context, file *drive.File, w io.Writer) error
}

// DriveSource reads the newest file called FileName in a Drive folder.
type DriveSource struct {
	Drive    driveFiles
	FolderID string
	FileName string
}

func (s DriveSource) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := s.Drive.FindFile(ctx, s.FolderID, s.FileName)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.Drive.DownloadFile(ctx, file, &buf); err != nil {
		return nil, fmt.Errorf("failed to download policy workbook: %w", err)
	}
	return io.NopCloser(&buf), nil
}

func (s DriveSource) String() string { return "drive:" + s.FolderID + "/" + s.FileName }
