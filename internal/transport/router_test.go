package transport_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tubego/internal/services"
	"tubego/internal/testsupport"
	"tubego/internal/transport"
)

const mib = 1 << 20

type fakeSender struct {
	name  string
	max   int64
	err   error
	paths []string
}

func (f *fakeSender) Send(_ context.Context, path, _ string) error {
	f.paths = append(f.paths, path)
	return f.err
}

func (f *fakeSender) Name() string   { return f.name }
func (f *fakeSender) MaxSize() int64 { return f.max }

func TestRouterSelectsBySize(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		size int64
		want string
	}{
		{"below threshold", 49 * mib, "primary"},
		{"one byte below", 50*mib - 1, "primary"},
		{"at threshold", 50 * mib, "secondary"},
		{"above threshold", 51 * mib, "secondary"},
		{"scenario 80 MiB", 80 * mib, "secondary"},
		{"scenario 10 MiB", 10 * mib, "primary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeSender{name: "primary", max: 50 * mib}
			secondary := &fakeSender{name: "secondary", max: 2000 * mib}
			router := transport.NewRouter(primary, secondary, 50*mib, nil)

			path := filepath.Join(dir, tt.name+".mp4")
			testsupport.WriteSparseFile(t, path, tt.size)

			used, err := router.Send(context.Background(), path, "clip.mp4")
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if used != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, used)
			}
			if tt.want == "primary" && (len(primary.paths) != 1 || len(secondary.paths) != 0) {
				t.Fatalf("unexpected calls primary=%v secondary=%v", primary.paths, secondary.paths)
			}
			if tt.want == "secondary" && (len(secondary.paths) != 1 || len(primary.paths) != 0) {
				t.Fatalf("unexpected calls primary=%v secondary=%v", primary.paths, secondary.paths)
			}
		})
	}
}

func TestRouterWithoutSecondaryRejectsLargeFiles(t *testing.T) {
	router := transport.NewRouter(&fakeSender{name: "primary"}, nil, 50*mib, nil)
	if router.HasSecondary() {
		t.Fatal("expected no secondary")
	}
	if _, err := router.Select(50 * mib); !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s, err := router.Select(1); err != nil || s.Name() != "primary" {
		t.Fatalf("expected primary for small files, got %v %v", s, err)
	}
}

func TestRouterMissingFile(t *testing.T) {
	router := transport.NewRouter(&fakeSender{name: "primary"}, nil, 50*mib, nil)
	_, err := router.Send(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), "")
	if !errors.Is(err, services.ErrArtifactMissing) {
		t.Fatalf("expected artifact missing, got %v", err)
	}
}

func TestNewRouterFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	router, err := transport.NewRouterFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewRouterFromConfig: %v", err)
	}
	if router.HasSecondary() || router.Threshold() != 50*mib {
		t.Fatalf("unexpected router threshold=%d secondary=%v", router.Threshold(), router.HasSecondary())
	}

	cfg = testsupport.NewConfig(t, testsupport.WithTelegramServer("http://127.0.0.1:8081"))
	router, err = transport.NewRouterFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewRouterFromConfig: %v", err)
	}
	if !router.HasSecondary() {
		t.Fatal("expected secondary to be configured")
	}
}
