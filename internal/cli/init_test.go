package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level   string
		debugOn bool
		infoOn  bool
	}{
		{level: "debug", debugOn: true, infoOn: true},
		{level: "info", debugOn: false, infoOn: true},
		{level: "error", debugOn: false, infoOn: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(tt.level)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOn)
			}
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cli.db")

	repo, err := OpenSQLite(ctx, path, 3)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
