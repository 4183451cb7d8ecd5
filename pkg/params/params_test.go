package params

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/device-capabilities/pkg/transport"
)

const paramsTestPrefix = "params:params_test"

const audioListing = `root.Audio.A0.Name=Internal microphone
root.Audio.A0.Enabled=yes
root.Audio.A1.Name=Line in
root.Audio.DuplexMode=full
`

func TestListPath(t *testing.T) {
	got := ListPath(GroupAudio)
	want := "/axis-cgi/param.cgi?action=list&group=root.Audio"
	if got != want {
		t.Errorf("%s - ListPath = %q, want %q", paramsTestPrefix, got, want)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", body: "", want: map[string]string{}},
		{name: "crlf and blanks", body: "root.A=1\r\n\r\nroot.B=x=y\n", want: map[string]string{"root.A": "1", "root.B": "x=y"}},
		{name: "device error", body: "# Error: Error -1 getting param in group 'root.Nope'\n", wantErr: true},
		{name: "malformed", body: "no equals here\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - expected error", paramsTestPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", paramsTestPrefix, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("%s - got %v, want %v", paramsTestPrefix, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s - %s = %q, want %q", paramsTestPrefix, k, got[k], v)
				}
			}
		})
	}
}

func TestCache_AudioParams(t *testing.T) {
	c := NewCache()
	if err := c.Apply(GroupAudio, []byte(audioListing)); err != nil {
		t.Fatalf("%s - Apply: %v", paramsTestPrefix, err)
	}

	got := c.AudioParams()
	if len(got) != 2 {
		t.Fatalf("%s - expected 2 channels, got %d: %v", paramsTestPrefix, len(got), got)
	}
	if got["0"].Name != "Internal microphone" || got["0"].Fields["Enabled"] != "yes" {
		t.Errorf("%s - channel 0 = %+v", paramsTestPrefix, got["0"])
	}
	if got["1"].Name != "Line in" {
		t.Errorf("%s - channel 1 = %+v", paramsTestPrefix, got["1"])
	}
}

func TestCache_ApplyReplacesGroup(t *testing.T) {
	c := NewCache()
	if err := c.Apply(GroupAudio, []byte(audioListing)); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(GroupProperties, []byte("root.Properties.Audio.Audio=yes\n")); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(GroupAudio, []byte("root.Audio.A0.Name=Renamed\n")); err != nil {
		t.Fatal(err)
	}

	got := c.AudioParams()
	if len(got) != 1 || got["0"].Name != "Renamed" {
		t.Errorf("%s - stale audio entries kept: %v", paramsTestPrefix, got)
	}
	if v, ok := c.Get("root.Properties.Audio.Audio"); !ok || v != "yes" {
		t.Errorf("%s - other group touched by Apply", paramsTestPrefix)
	}
}

func TestCache_ApplyErrorKeepsValues(t *testing.T) {
	c := NewCache()
	if err := c.Apply(GroupAudio, []byte(audioListing)); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(GroupAudio, []byte("# Error: nope\n")); err == nil {
		t.Fatalf("%s - expected error", paramsTestPrefix)
	}
	if len(c.AudioParams()) != 2 {
		t.Errorf("%s - failed Apply dropped values", paramsTestPrefix)
	}
}

func TestCache_PropertyBlock(t *testing.T) {
	c := NewCache()
	if _, ok := c.PropertyBlock("0"); ok {
		t.Errorf("%s - expected no block before load", paramsTestPrefix)
	}
	if err := c.Apply(GroupProperties, []byte("root.Properties.Audio.Audio=yes\nroot.Properties.Firmware.Version=11.9.60\n")); err != nil {
		t.Fatal(err)
	}
	block, ok := c.PropertyBlock("0")
	if !ok {
		t.Fatalf("%s - expected block 0", paramsTestPrefix)
	}
	if block["Audio.Audio"] != "yes" {
		t.Errorf("%s - Audio.Audio = %q", paramsTestPrefix, block["Audio.Audio"])
	}
	if _, ok := c.PropertyBlock("1"); ok {
		t.Errorf("%s - only block 0 exists", paramsTestPrefix)
	}
}

type cannedTransport struct {
	body []byte
	err  error
	path string
}

func (c *cannedTransport) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	c.path = req.Path
	if c.err != nil {
		return nil, c.err
	}
	return &transport.Response{Status: 200, Body: c.body}, nil
}

func TestLoader_Refresh(t *testing.T) {
	ct := &cannedTransport{body: []byte("root.Properties.Audio.Audio=yes\n")}
	cache := NewCache()
	l := NewLoader(ct, cache)

	if err := l.Refresh(context.Background(), GroupProperties); err != nil {
		t.Fatalf("%s - Refresh: %v", paramsTestPrefix, err)
	}
	if ct.path != ListPath(GroupProperties) {
		t.Errorf("%s - path = %q", paramsTestPrefix, ct.path)
	}
	if _, ok := cache.PropertyBlock("0"); !ok {
		t.Errorf("%s - cache not filled", paramsTestPrefix)
	}
}

func TestLoader_RefreshTransportError(t *testing.T) {
	terr := &transport.Error{Kind: transport.KindConnect, Err: errors.New("refused")}
	l := NewLoader(&cannedTransport{err: terr}, NewCache())
	err := l.Refresh(context.Background(), GroupProperties)
	if kind, ok := transport.KindOf(err); !ok || kind != transport.KindConnect {
		t.Errorf("%s - expected wrapped connect failure, got %v", paramsTestPrefix, err)
	}
}
