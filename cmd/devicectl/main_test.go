package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/devicectl:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "bridge", "discover", "transmit", "mqtt-status", "migrate", "snapshots", "DEVICE_HOST"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestUsage_NoMissingReferences(t *testing.T) {
	if strings.Contains(usage, "README") {
		t.Errorf("%s - usage points at a README the repository does not ship", mainTestPrefix)
	}
}

func TestDeviceCommand(t *testing.T) {
	tests := []struct {
		cmd    string
		args   []string
		wantOK bool
	}{
		{cmd: "discover", wantOK: true},
		{cmd: "resolve", args: []string{"mqtt-client@^1"}, wantOK: true},
		{cmd: "resolve", args: []string{"Not Valid"}},
		{cmd: "resolve"},
		{cmd: "legacy", wantOK: true},
		{cmd: "audio-params", wantOK: true},
		{cmd: "transmit", args: []string{"clip.au"}, wantOK: true},
		{cmd: "transmit"},
		{cmd: "mqtt-status", wantOK: true},
		{cmd: "mqtt-configure", args: []string{"broker", "1883"}, wantOK: true},
		{cmd: "mqtt-configure", args: []string{"broker", "port"}},
		{cmd: "mqtt-configure"},
		{cmd: "mqtt-activate", wantOK: true},
		{cmd: "mqtt-deactivate", wantOK: true},
		{cmd: "mqtt-event-config", wantOK: true},
		{cmd: "mqtt-configure-events", args: []string{"tns1:Device//."}, wantOK: true},
		{cmd: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd+strings.Join(tt.args, "_"), func(t *testing.T) {
			op, ok := deviceCommand(tt.cmd, tt.args)
			if ok != tt.wantOK {
				t.Fatalf("%s - deviceCommand(%q, %v) ok = %v, want %v", mainTestPrefix, tt.cmd, tt.args, ok, tt.wantOK)
			}
			if ok && op == nil {
				t.Errorf("%s - deviceCommand(%q) returned nil op", mainTestPrefix, tt.cmd)
			}
		})
	}
}
