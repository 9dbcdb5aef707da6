package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/wpfleet/internal/config"
)

// GDriveStorage keeps one subfolder per site under the configured folder.
// Drive allows duplicate names, so writes delete any existing file with the
// target name first.
type GDriveStorage struct {
	service  *drive.Service
	folderID string

	mu      sync.Mutex
	folders map[string]string
}

func NewGDrive(ctx context.Context, cfg *config.RemoteConfig) (*GDriveStorage, error) {
	opt, err := driveAuth(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
		folders:  make(map[string]string),
	}, nil
}

// driveAuth prefers a service account file. Otherwise it builds a token
// source from an OAuth client secret and a refresh token minted with the
// gdrive-auth command.
func driveAuth(ctx context.Context, cfg *config.RemoteConfig) (option.ClientOption, error) {
	if cfg.CredentialsFile != "" {
		return option.WithCredentialsFile(cfg.CredentialsFile), nil
	}

	b, err := os.ReadFile(cfg.ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return option.WithTokenSource(ts), nil
}

func (g *GDriveStorage) Type() string {
	return "gdrive"
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// folder returns the id of the site folder, creating it when create is set.
// An empty id with a nil error means the folder does not exist.
func (g *GDriveStorage) folder(ctx context.Context, prefix string, create bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.folders[prefix]; ok {
		return id, nil
	}

	query := fmt.Sprintf("'%s' in parents and name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		g.folderID, escapeQuery(prefix))
	list, err := g.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to find folder: %w", err)
	}
	if len(list.Files) > 0 {
		g.folders[prefix] = list.Files[0].Id
		return list.Files[0].Id, nil
	}
	if !create {
		return "", nil
	}

	created, err := g.service.Files.Create(&drive.File{
		Name:     prefix,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{g.folderID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	g.folders[prefix] = created.Id
	return created.Id, nil
}

// find returns the ids of every file called name in the folder.
func (g *GDriveStorage) find(ctx context.Context, folderID, name string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", folderID, escapeQuery(name))
	list, err := g.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}

	ids := make([]string, 0, len(list.Files))
	for _, f := range list.Files {
		ids = append(ids, f.Id)
	}
	return ids, nil
}

func (g *GDriveStorage) removeAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath, prefix, name string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	folderID, err := g.folder(ctx, prefix, true)
	if err != nil {
		return err
	}

	existing, err := g.find(ctx, folderID, name)
	if err != nil {
		return err
	}

	_, err = g.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).Media(file).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	// Older copies go only once the new one is stored.
	return g.removeAll(ctx, existing)
}

func (g *GDriveStorage) Download(ctx context.Context, prefix, name, destPath string) error {
	folderID, err := g.folder(ctx, prefix, false)
	if err != nil {
		return err
	}
	if folderID == "" {
		return fmt.Errorf("file not found: %s", name)
	}

	ids, err := g.find(ctx, folderID, name)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("file not found: %s", name)
	}

	resp, err := g.service.Files.Get(ids[0]).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download from gdrive: %w", err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download from gdrive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write download: %w", err)
	}

	return os.Rename(tmp.Name(), destPath)
}

func (g *GDriveStorage) List(ctx context.Context, prefix string) ([]string, error) {
	folderID, err := g.folder(ctx, prefix, false)
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		return nil, nil
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false and mimeType!='application/vnd.google-apps.folder'", folderID)

	var files []string
	err = g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name)").
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, f.Name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(files)

	return files, nil
}

func (g *GDriveStorage) Copy(ctx context.Context, prefix, src, dst string) error {
	folderID, err := g.folder(ctx, prefix, false)
	if err != nil {
		return err
	}
	if folderID == "" {
		return fmt.Errorf("file not found: %s", src)
	}

	ids, err := g.find(ctx, folderID, src)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("file not found: %s", src)
	}

	existing, err := g.find(ctx, folderID, dst)
	if err != nil {
		return err
	}

	_, err = g.service.Files.Copy(ids[0], &drive.File{
		Name:    dst,
		Parents: []string{folderID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return g.removeAll(ctx, existing)
}

func (g *GDriveStorage) Delete(ctx context.Context, prefix, name string) error {
	folderID, err := g.folder(ctx, prefix, false)
	if err != nil {
		return err
	}
	if folderID == "" {
		return fmt.Errorf("file not found: %s", name)
	}

	ids, err := g.find(ctx, folderID, name)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("file not found: %s", name)
	}

	return g.removeAll(ctx, ids)
}
