package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Mime types handled when pulling spreadsheets.
const (
	MimeFolder      = "application/vnd.google-apps.folder"
	MimeGoogleSheet = "application/vnd.google-apps.spreadsheet"
	MimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Service struct {
	srv *drive.Service
}

func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	// Parse credentials from JSON
	config, err := google.JWTConfigFromJSON(
		[]byte(credentialsJSON),
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	// Create the JWT client
	client := config.Client(ctx)

	// Create the Drive service
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

// NewServiceFromFile reads the service account credentials from path.
func NewServiceFromFile(ctx context.Context, path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file %s: %w", path, err)
	}
	return NewService(ctx, string(data))
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

// IsFolder reports whether f is a Drive folder.
func (f *File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	var files []*File

	// If no folder ID is provided, use "root"
	if folderID == "" {
		folderID = "root"
	}

	err := s.srv.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
		Pages(ctx, func(result *drive.FileList) error {
			for _, f := range result.Files {
				files = append(files, &File{
					ID:           f.Id,
					Name:         f.Name,
					MimeType:     f.MimeType,
					ModifiedTime: f.ModifiedTime,
					Size:         f.Size,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}

	return files, nil
}

// FindFile returns the newest non-trashed file called name in a folder.
func (s *Service) FindFile(ctx context.Context, folderID, name string) (*File, error) {
	if folderID == "" {
		folderID = "root"
	}
	result, err := s.srv.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", escapeQuery(folderID), escapeQuery(name))).
		OrderBy("modifiedTime desc").
		Fields("files(id, name, mimeType, modifiedTime, size)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("error finding file %s: %w", name, err)
	}
	if len(result.Files) == 0 {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	f := result.Files[0]
	return &File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, ModifiedTime: f.ModifiedTime, Size: f.Size}, nil
}

// DownloadFile copies the content of a file into w. Google Sheets are
// exported as xlsx.
func (s *Service) DownloadFile(ctx context.Context, file *File, w io.Writer) error {
	var body io.ReadCloser
	if file.MimeType == MimeGoogleSheet {
		resp, err := s.srv.Files.Export(file.ID, MimeXLSX).Context(ctx).Download()
		if err != nil {
			return fmt.Errorf("unable to export file: %w", err)
		}
		body = resp.Body
	} else {
		resp, err := s.srv.Files.Get(file.ID).Context(ctx).Download()
		if err != nil {
			return fmt.Errorf("unable to download file: %w", err)
		}
		body = resp.Body
	}
	defer body.Close()

	_, err := io.Copy(w, body)
	return err
}

func (s *Service) FindFolderByPath(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "root", nil
	}

	folders := strings.Split(path, "/")
	currentID := "root"

	for _, folder := range folders {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Context(ctx).
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
				currentID, escapeQuery(folder), MimeFolder)).
			Fields("files(id, name)").
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}

		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", folder)
		}

		currentID = result.Files[0].Id
	}

	return currentID, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
