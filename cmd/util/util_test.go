package util

import (
	"github.com/spf13/viper"
	"strings"
	"testing"
	"time"
)

func TestWrapString(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"empty":  {"", ""},
		"short":  {"hello world", "hello world"},
		"spaces": {"  hello   world  ", "hello world"},
		"wrapped": {
			"The address of the rconn server (host:port for tcp, socket path for unix)",
			"The address of the rconn server (host:port for\ntcp, socket path for unix)",
		},
		"long word": {strings.Repeat("x", 60), strings.Repeat("x", 60)},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := WrapString(tc.in)
			if got != tc.want {
				t.Errorf("WrapString(%q) = %q, want %q", tc.in, got, tc.want)
			}
			for _, line := range strings.Split(got, "\n") {
				if len(line) > Wrap && strings.Contains(line, " ") {
					t.Errorf("line %q exceeds %d characters", line, Wrap)
				}
			}
		})
	}
}

func TestGetClientConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("endpoint", "127.0.0.1:9000")
	viper.Set("request-timeout", 2*time.Second)
	viper.Set("reconnect", true)
	viper.Set("reconnect-max-attempts", 4)
	viper.Set("socket-write-buffer", 8)

	conf := GetClientConfig()
	if conf.Endpoint != "127.0.0.1:9000" {
		t.Errorf("unexpected endpoint %s", conf.Endpoint)
	}
	if conf.RequestTimeout != 2*time.Second {
		t.Errorf("unexpected request timeout %s", conf.RequestTimeout)
	}
	if !conf.Reconnect.Enabled || conf.Reconnect.MaxAttempts != 4 {
		t.Errorf("unexpected reconnect config %+v", conf.Reconnect)
	}
	if conf.Socket.WriteBufferSize != 8*1024 {
		t.Errorf("unexpected write buffer %d", conf.Socket.WriteBufferSize)
	}
	// unset values fall back to the defaults
	if conf.MaxFrameSize == 0 || conf.ConnectWait == 0 {
		t.Errorf("defaults not applied: %+v", conf)
	}
}

func TestSelection(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("serializer", "gob")
	viper.Set("transport", "unix")
	if s, err := GetSerializer(); err != nil || s.Name() != "gob" {
		t.Errorf("expected gob serializer, got %v %v", s, err)
	}
	if c, err := GetClientConnector(); err != nil || c.GetName() != "unix" {
		t.Errorf("expected unix connector, got %v %v", c, err)
	}

	viper.Set("serializer", "binary")
	viper.Set("transport", "http")
	if _, err := GetSerializer(); err == nil {
		t.Error("expected an error for an unknown serializer")
	}
	if _, err := GetServerConnector(); err == nil {
		t.Error("expected an error for an unknown transport")
	}
}
