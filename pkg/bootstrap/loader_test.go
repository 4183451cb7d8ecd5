package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/device-capabilities/pkg/capability"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("bootstrap:loader_test - write failed: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	good := writeFile(t, "caps.json", `{"device":"cam","capabilities":{"mqtt-client":{"version":"1.4"}}}`)
	badJSON := writeFile(t, "bad.json", `{`)
	badVersion := writeFile(t, "ver.json", `{"capabilities":{"mqtt-client":{"version":"latest"}}}`)
	empty := writeFile(t, "empty.json", `{"capabilities":{}}`)

	tests := []struct {
		name    string
		paths   []string
		wantErr bool
		noFile  bool
	}{
		{name: "first readable path wins", paths: []string{"", "/nonexistent.json", good}},
		{name: "no paths", noFile: true, wantErr: true},
		{name: "missing files", paths: []string{"/nonexistent.json"}, noFile: true, wantErr: true},
		{name: "invalid json", paths: []string{badJSON, good}, wantErr: true},
		{name: "invalid version", paths: []string{badVersion}, wantErr: true},
		{name: "no capabilities", paths: []string{empty}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load(tt.paths...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("bootstrap:loader_test - expected error")
				}
				if errors.Is(err, ErrNoFile) != tt.noFile {
					t.Errorf("bootstrap:loader_test - ErrNoFile = %v, want %v (%v)", errors.Is(err, ErrNoFile), tt.noFile, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("bootstrap:loader_test - Load failed: %v", err)
			}
			if f.Device != "cam" || f.Capabilities["mqtt-client"].Version != "1.4" {
				t.Errorf("bootstrap:loader_test - file = %+v", f)
			}
		})
	}
}

func TestAdvertised_ResolvesAliases(t *testing.T) {
	f := &File{
		Capabilities: map[string]Entry{
			"mqtt":                         {Version: "1.0"},
			"audio":                        {Version: "1.0"},
			"audio-streaming-capabilities": {Version: "1.1", Name: "Audio"},
		},
		Aliases: map[string]string{
			"mqtt":  "mqtt-client",
			"audio": "audio-streaming-capabilities",
		},
	}

	got := f.Advertised()
	if len(got) != 2 {
		t.Fatalf("bootstrap:loader_test - got %d entries, want 2: %+v", len(got), got)
	}
	if got[0].ID != capability.AudioStreaming || got[0].Version != "1.1" {
		t.Errorf("bootstrap:loader_test - canonical entry should win, got %+v", got[0])
	}
	if got[1].ID != capability.MQTTClient || got[1].Version != "1.0" {
		t.Errorf("bootstrap:loader_test - alias should resolve, got %+v", got[1])
	}
}

func TestAdvertised_AliasConflictIsDeterministic(t *testing.T) {
	f := &File{
		Capabilities: map[string]Entry{
			"mqtt-v2": {Version: "1.4"},
			"mqtt":    {Version: "1.0"},
			"mqttc":   {Version: "1.2"},
		},
		Aliases: map[string]string{
			"mqtt":    "mqtt-client",
			"mqttc":   "mqtt-client",
			"mqtt-v2": "mqtt-client",
		},
	}

	for i := 0; i < 50; i++ {
		got := f.Advertised()
		if len(got) != 1 || got[0].ID != capability.MQTTClient || got[0].Version != "1.0" {
			t.Fatalf("bootstrap:loader_test - run %d: first alias in key order should win, got %+v", i, got)
		}
	}
}

func TestMerge(t *testing.T) {
	base := &File{
		Device:       "cam",
		Capabilities: map[string]Entry{"mqtt-client": {Version: "1.0"}},
	}
	override := &File{
		Capabilities: map[string]Entry{"mqtt-client": {Version: "1.4"}, "audio-streaming-capabilities": {Version: "1.0"}},
		Aliases:      map[string]string{"mqtt": "mqtt-client"},
	}

	merged := Merge(base, override)
	if merged.Device != "cam" {
		t.Errorf("bootstrap:loader_test - device = %q, want cam", merged.Device)
	}
	if len(merged.Capabilities) != 2 || merged.Capabilities["mqtt-client"].Version != "1.4" {
		t.Errorf("bootstrap:loader_test - capabilities = %+v", merged.Capabilities)
	}
	if merged.Aliases["mqtt"] != "mqtt-client" {
		t.Errorf("bootstrap:loader_test - aliases = %+v", merged.Aliases)
	}
	if base.Capabilities["mqtt-client"].Version != "1.0" {
		t.Error("bootstrap:loader_test - Merge must not modify base")
	}
}

func TestQuery_ReturnsCopy(t *testing.T) {
	q := NewQuery(&File{Capabilities: map[string]Entry{"mqtt-client": {Version: "1.4"}}})

	first, err := q.FetchAdvertisedCapabilities(context.Background())
	if err != nil || len(first) != 1 {
		t.Fatalf("bootstrap:loader_test - first = %+v, %v", first, err)
	}
	first[0].Version = "9.9"

	second, _ := q.FetchAdvertisedCapabilities(context.Background())
	if second[0].Version != "1.4" {
		t.Errorf("bootstrap:loader_test - version = %q, want 1.4", second[0].Version)
	}
}
