package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// fileSource is the part of Service the downloader needs.
type fileSource interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	DownloadFile(ctx context.Context, file *File, w io.Writer) error
}

// DownloadOptions controls how branch exports are pulled from Google Drive.
type DownloadOptions struct {
	// FolderID holds one sub folder per branch, named after the branch.
	FolderID    string
	DownloadDir string
	Branches    []string
}

// Downloader mirrors branch folders of Drive into the layout read by the
// csv data provider: <DownloadDir>/<branch>/<file>.csv.
type Downloader struct {
	service fileSource
}

// NewDownloader creates a new Downloader.
func NewDownloader(s *Service) *Downloader {
	return &Downloader{service: s}
}

// DownloadBranches downloads the CSV and XLSX files of every requested branch
// folder and returns the local CSV paths per branch. XLSX files and Google
// Sheets are converted to CSV from their first sheet.
func (d *Downloader) DownloadBranches(ctx context.Context, opts DownloadOptions) (map[string][]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}

	folders, err := d.service.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*File)
	for _, f := range folders {
		if f.IsFolder() {
			byName[f.Name] = f
		}
	}

	out := make(map[string][]string, len(opts.Branches))
	for _, branch := range opts.Branches {
		folder, ok := byName[branch]
		if !ok {
			return nil, fmt.Errorf("branch folder %s not found", branch)
		}
		paths, err := d.downloadFolder(ctx, folder.ID, filepath.Join(opts.DownloadDir, branch))
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", branch, err)
		}
		log.Info().Str("branch", branch).Int("files", len(paths)).Msg("branch files downloaded")
		out[branch] = paths
	}
	return out, nil
}

func (d *Downloader) downloadFolder(ctx context.Context, folderID, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.service.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		base := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		switch {
		case ext == ".csv":
			localPath := filepath.Join(dir, filepath.Base(f.Name))
			if err := d.downloadTo(ctx, f, localPath); err != nil {
				return nil, err
			}
			localPaths = append(localPaths, localPath)

		case ext == ".xlsx" || f.MimeType == MimeGoogleSheet:
			// Download then convert first sheet to CSV
			tmpXLSXPath := filepath.Join(dir, filepath.Base(base)+".xlsx")
			if err := d.downloadTo(ctx, f, tmpXLSXPath); err != nil {
				return nil, err
			}
			csvPath := filepath.Join(dir, filepath.Base(base)+".csv")
			if err := convertXLSXToCSV(tmpXLSXPath, csvPath); err != nil {
				return nil, fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
			}
			_ = os.Remove(tmpXLSXPath)
			localPaths = append(localPaths, csvPath)

		default:
			log.Debug().Str("file", f.Name).Str("mime", f.MimeType).Msg("skipping unsupported drive file")
		}
	}

	return localPaths, nil
}

func (d *Downloader) downloadTo(ctx context.Context, f *File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", path, err)
	}
	if err := d.service.DownloadFile(ctx, f, out); err != nil {
		out.Close()
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}
