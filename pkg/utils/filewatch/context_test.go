package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opst/vitrain/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", cause)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("context is not canceled")
	}
}

func TestUntilModifyContext(t *testing.T) {
	for name, testcase := range map[string]struct {
		watchDir bool
		modify   func(t *testing.T, dir string, file string)
	}{
		"a file is created in a watched directory": {
			watchDir: true,
			modify: func(t *testing.T, dir string, _ string) {
				if err := os.WriteFile(filepath.Join(dir, "new"), nil, 0644); err != nil {
					t.Fatal(err)
				}
			},
		},
		"a watched file is written": {
			modify: func(t *testing.T, _ string, file string) {
				if err := os.WriteFile(file, []byte("port: 9090"), 0644); err != nil {
					t.Fatal(err)
				}
			},
		},
		"a file in a watched directory is removed": {
			watchDir: true,
			modify: func(t *testing.T, _ string, file string) {
				if err := os.Remove(file); err != nil {
					t.Fatal(err)
				}
			},
		},
		"a watched file is renamed": {
			modify: func(t *testing.T, dir string, file string) {
				if err := os.Rename(file, filepath.Join(dir, "renamed")); err != nil {
					t.Fatal(err)
				}
			},
		},
		"a watched file is chmod-ed": {
			modify: func(t *testing.T, _ string, file string) {
				// surely change mode despite of umask.
				if err := os.Chmod(file, 0o700); err != nil {
					t.Fatal(err)
				}
				if err := os.Chmod(file, 0o644); err != nil {
					t.Fatal(err)
				}
			},
		},
	} {
		t.Run("it cancels context when "+name, func(t *testing.T) {
			dir := t.TempDir()
			file := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(file, []byte("port: 8080"), 0644); err != nil {
				t.Fatal(err)
			}
			target := file
			if testcase.watchDir {
				target = dir
			}

			ctx, stop, err := filewatch.UntilModifyContext(context.Background(), []string{target})
			if err != nil {
				t.Fatal(err)
			}
			defer stop()
			if err := ctx.Err(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			testcase.modify(t, dir, file)
			waitDone(t, ctx)
		})
	}

	t.Run("ignored ops do not cancel context", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(file, []byte("port: 8080"), 0644); err != nil {
			t.Fatal(err)
		}
		ctx, stop, err := filewatch.UntilModifyContext(
			context.Background(), []string{file}, filewatch.Ignoring(fsnotify.Chmod),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer stop()

		if err := os.Chmod(file, 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case <-ctx.Done():
			t.Fatalf("canceled: %v", context.Cause(ctx))
		case <-time.After(200 * time.Millisecond):
		}

		if err := os.WriteFile(file, []byte("port: 9090"), 0644); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("it fails for missing targets", func(t *testing.T) {
		_, _, err := filewatch.UntilModifyContext(
			context.Background(), []string{filepath.Join(t.TempDir(), "missing")},
		)
		if err == nil {
			t.Error("no error")
		}
	})

	t.Run("stop cancels context without ErrModified", func(t *testing.T) {
		ctx, stop, err := filewatch.UntilModifyContext(context.Background(), []string{t.TempDir()})
		if err != nil {
			t.Fatal(err)
		}
		stop()
		<-ctx.Done()
		if errors.Is(context.Cause(ctx), filewatch.ErrModified) {
			t.Error("stop should not be ErrModified")
		}
	})
}
