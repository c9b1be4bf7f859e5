package gitsource

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https", "https://github.com/owner/deck.git", filepath.Join("repos", "github.com", "owner", "deck"), false},
		{"https without suffix", "https://gitlab.com/group/sub/deck", filepath.Join("repos", "gitlab.com", "group", "sub", "deck"), false},
		{"scp", "git@github.com:owner/deck.git", filepath.Join("repos", "github.com", "owner", "deck"), false},
		{"local path", "./notes", "", true},
		{"ftp", "ftp://example.com/deck", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalPath("repos", tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalPath: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://github.com/owner/deck.git": true,
		"git@github.com:owner/deck.git":     true,
		"notes":                             false,
		"/home/me/notes":                    false,
		"C:/notes":                          false,
	}
	for source, want := range tests {
		if got := IsRemote(source); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", source, got, want)
		}
	}
}

func TestResolveLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := Resolve(context.Background(), dir, filepath.Join(dir, "repos"), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != dir {
		t.Errorf("got %q, want %q", got, dir)
	}
}
