package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
)

type fakeDrive struct {
	mu      sync.Mutex
	queries []string
	folders []string
	uploads int
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"files":[]}`)
	case strings.Contains(r.URL.Path, "upload"):
		f.uploads++
		fmt.Fprintf(w, `{"id":"file-%d","webViewLink":"https://drive.example/file-%d"}`, f.uploads, f.uploads)
	default:
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.folders = append(f.folders, body.Name)
		fmt.Fprintf(w, `{"id":"folder-%d"}`, len(f.folders))
	}
}

func TestDriveClient_Upload(t *testing.T) {
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	dc, err := newDriveClient(ctx, "Lecture Transcripts",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	dc.now = func() time.Time { return time.Date(2025, 1, 23, 9, 0, 0, 0, time.UTC) }

	dir := t.TempDir()
	transcript := filepath.Join(dir, "talk_transcript.txt")
	meta := MetaPath(transcript)
	os.WriteFile(transcript, []byte("PART 0\n00:00:01 hi\n"), 0644)
	os.WriteFile(meta, []byte(`{}`), 0644)

	link, err := dc.Upload(ctx, transcript, meta)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if link != "https://drive.example/file-1" {
		t.Errorf("unexpected link %s", link)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if want := []string{"Lecture Transcripts", "2025", "01", "23"}; strings.Join(fake.folders, "/") != strings.Join(want, "/") {
		t.Errorf("unexpected folders %v", fake.folders)
	}
	if fake.uploads != 2 {
		t.Errorf("expected transcript and metadata uploads, got %d", fake.uploads)
	}
	if len(fake.queries) != 4 || !strings.Contains(fake.queries[1], "'folder-1' in parents") {
		t.Errorf("unexpected queries %v", fake.queries)
	}
}

func TestNewDriveClient_MissingToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	os.WriteFile(creds, []byte(`{"installed":{"client_id":"id","client_secret":"secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`), 0600)

	_, err := NewDriveClient(context.Background(), creds, filepath.Join(dir, "token.json"), "x")
	if !errors.Is(err, ErrNoDriveToken) {
		t.Fatalf("expected ErrNoDriveToken, got %v", err)
	}

	if _, err := NewDriveClient(context.Background(), filepath.Join(dir, "none.json"), "t", "x"); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestFolderQuery(t *testing.T) {
	got := folderQuery("Bob's notes", "p1")
	want := `name='Bob\'s notes' and mimeType='application/vnd.google-apps.folder' and trashed=false and 'p1' in parents`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
	if strings.Contains(folderQuery("root", ""), "in parents") {
		t.Errorf("root query must not filter by parent")
	}
}
