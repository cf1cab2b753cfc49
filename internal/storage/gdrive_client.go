package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// DriveClient mirrors transcript artifacts to a Google Drive folder. The
// mirror is optional: the caller constructs it only when OAuth credentials
// exist, and upload failures never fail the pipeline.
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveClient creates a Drive client from an OAuth credentials file and
// a cached token file, ensuring the mirror folder exists.
func NewDriveClient(credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	client, err := getClient(config, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
	}
	if err := dc.ensureFolder(); err != nil {
		return nil, err
	}
	return dc, nil
}

// getClient builds an HTTP client from a cached token.
func getClient(config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		// Headless service: there is no interactive consent flow, the
		// token must be provisioned ahead of time.
		return nil, fmt.Errorf("drive token not available (%s): %w", tokenFile, err)
	}
	return config.Client(context.Background(), tok), nil
}

// tokenFromFile retrieves a cached OAuth token.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ensureFolder finds or creates the mirror root folder.
func (dc *DriveClient) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		dc.folderName)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %w", err)
	}
	if len(r.Files) > 0 {
		dc.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{
		Name:     dc.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}
	file, err := dc.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %w", err)
	}
	dc.folderID = file.Id
	return nil
}

// Upload mirrors one transcript as {videoID}.json in the mirror folder and
// returns a shareable link. An existing file for the same video is trashed
// first so reprocessing replaces the mirror wholesale.
func (dc *DriveClient) Upload(t *types.Transcript, meta *types.VideoMeta) (string, error) {
	doc := map[string]any{
		"video_id":       t.VideoID,
		"text":           t.Text,
		"segments":       t.Segments,
		"confidence":     t.Confidence,
		"audio_duration": t.AudioDuration,
	}
	if meta != nil {
		doc["title"] = meta.Title
		doc["author"] = meta.Author
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}

	name := t.VideoID + ".json"
	if err := dc.removeExisting(name); err != nil {
		return "", err
	}

	file := &drive.File{
		Name:    name,
		Parents: []string{dc.folderID},
	}
	created, err := dc.service.Files.Create(file).Media(bytes.NewReader(payload)).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// removeExisting trashes any previous mirror of the same artifact.
func (dc *DriveClient) removeExisting(name string) error {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", name, dc.folderID)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for existing mirror: %w", err)
	}
	for _, f := range r.Files {
		if _, err := dc.service.Files.Update(f.Id, &drive.File{Trashed: true}).Do(); err != nil {
			return fmt.Errorf("unable to replace existing mirror: %w", err)
		}
	}
	return nil
}
