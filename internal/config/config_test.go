package config_test

import (
	"testing"

	"github.com/nullexa/nullexa/internal/config"
)

// TestNormalize verifies scheme coercion and upload-URL derivation.
func TestNormalize(t *testing.T) {
	testCases := []struct {
		name       string
		cfg        config.Config
		wantServer string
		wantUpload string
		wantErr    bool
	}{
		{
			name:       "ws passes through",
			cfg:        config.Config{ServerURL: "ws://localhost:3000/ws"},
			wantServer: "ws://localhost:3000/ws",
			wantUpload: "http://localhost:3000",
		},
		{
			name:       "http coerced to ws",
			cfg:        config.Config{ServerURL: "http://localhost:3000/ws"},
			wantServer: "ws://localhost:3000/ws",
			wantUpload: "http://localhost:3000",
		},
		{
			name:       "https coerced to wss",
			cfg:        config.Config{ServerURL: "https://chat.example.com/ws"},
			wantServer: "wss://chat.example.com/ws",
			wantUpload: "https://chat.example.com",
		},
		{
			name:       "explicit upload URL kept",
			cfg:        config.Config{ServerURL: "ws://localhost:3000/ws", UploadURL: "http://uploads:8080"},
			wantServer: "ws://localhost:3000/ws",
			wantUpload: "http://uploads:8080",
		},
		{
			name:    "empty URL rejected",
			cfg:     config.Config{},
			wantErr: true,
		},
		{
			name:    "unsupported scheme rejected",
			cfg:     config.Config{ServerURL: "ftp://localhost/ws"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Normalize()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if tc.cfg.ServerURL != tc.wantServer {
				t.Errorf("ServerURL mismatch: got %q, want %q", tc.cfg.ServerURL, tc.wantServer)
			}
			if tc.cfg.UploadURL != tc.wantUpload {
				t.Errorf("UploadURL mismatch: got %q, want %q", tc.cfg.UploadURL, tc.wantUpload)
			}
		})
	}
}
