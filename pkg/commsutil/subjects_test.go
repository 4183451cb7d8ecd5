package commsutil

import "testing"

func TestSafeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.0.90", "192_168_0_90"},
		{"camera-1", "camera-1"},
		{" a b ", "a_b"},
		{"x*>y", "x__y"},
		{"", "_"},
	}
	for _, tt := range tests {
		if got := SafeToken(tt.in); got != tt.want {
			t.Errorf("commsutil:subjects_test - SafeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildInvokeSubject(t *testing.T) {
	if got := BuildInvokeSubject("192.168.0.90"); got != "device.192_168_0_90.invoke" {
		t.Errorf("commsutil:subjects_test - got %q", got)
	}
}

func TestBuildChangedSubject(t *testing.T) {
	if got := BuildChangedSubject("cam"); got != "device.cam.capabilities.changed" {
		t.Errorf("commsutil:subjects_test - got %q", got)
	}
}

func TestBuildEventSubject(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"namespaced", "tns1:Device/tnsaxis:IO/Port", "device.cam.events.tns1_Device.tnsaxis_IO.Port"},
		{"leading slash", "/tns1:VideoSource/MotionAlarm", "device.cam.events.tns1_VideoSource.MotionAlarm"},
		{"empty", "", "device.cam.events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildEventSubject("cam", tt.topic); got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildEventSubject(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}
