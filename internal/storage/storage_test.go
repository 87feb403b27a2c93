package storage_test

import (
	"context"
	"errors"
	"fmt"
	"image-diff/internal/storage"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeFilename(t *testing.T) {
	type in struct {
		first string
	}

	type want struct {
		first string
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"My cool movie.mov"},
			want{"My_cool_movie.mov"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"../../../etc/passwd"},
			want{"etc_passwd"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"i contain cool \xfcml\xe4uts.txt"},
			want{"i_contain_cool_mluts.txt"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"i contain cool ümläuts.txt"},
			want{"i_contain_cool_umlauts.txt"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"CON.png"},
			want{"_CON.png"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"..."},
			want{""},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{`C:\Users\me\shot 1.PNG`},
			want{"C_Users_me_shot_1.PNG"},
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := storage.SanitizeFilename(in.first)
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	directory := t.TempDir()

	s, err := storage.New(ctx, storage.Config{
		Backend: "file",
		File: storage.FileConfig{
			Directory: directory,
		},
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Run("PutGet", func(t *testing.T) {
		url, err := s.Put(ctx, "uploads/a.png", []byte("data"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if url != filepath.Join(directory, "uploads", "a.png") {
			t.Errorf("unexpected url: %s", url)
		}
		if url != s.URL("uploads/a.png") {
			t.Errorf("Expected URL to match Put, got %s", s.URL("uploads/a.png"))
		}

		got, err := s.Get(ctx, url)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]byte("data"), got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.Get(ctx, filepath.Join(directory, "missing.png"))
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Escape", func(t *testing.T) {
		if _, err := s.Put(ctx, "../outside.png", []byte("data")); err == nil {
			t.Errorf("Expected an error when escaping the directory")
		}
		if _, err := s.Get(ctx, filepath.Join(directory, "..", "outside.png")); err == nil {
			t.Errorf("Expected an error when escaping the directory")
		}
	})
}

func TestNew(t *testing.T) {
	if _, err := storage.New(context.Background(), storage.Config{Backend: "gcs"}); err == nil {
		t.Errorf("Expected an error for an unknown backend")
	}
	if _, err := storage.New(context.Background(), storage.Config{Backend: "s3"}); err == nil {
		t.Errorf("Expected an error when the bucket is missing")
	}
}
