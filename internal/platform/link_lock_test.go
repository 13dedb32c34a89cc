package platform

import "testing"

func TestLockName(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "serial drops baud", target: "/dev/ttyUSB0@9600", want: "dev_ttyUSB0"},
		{name: "same port other baud", target: "/dev/ttyUSB0@115200", want: "dev_ttyUSB0"},
		{name: "windows com port", target: "COM3@9600", want: "COM3"},
		{name: "tcp bridge", target: "bridge.local:9750", want: "bridge.local_9750"},
		{name: "empty uses fallback", target: "   ", want: "link"},
		{name: "only separators", target: "@9600", want: "9600"},
		{name: "all unsupported", target: "//", want: "link"},
	}

	for _, tc := range tests {
		if got := lockName(tc.target); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestSameLink(t *testing.T) {
	if !SameLink("/dev/ttyUSB0@9600", "/dev/ttyUSB0@115200") {
		t.Fatalf("expected baud change to keep the same link")
	}
	if SameLink("/dev/ttyUSB0@9600", "/dev/ttyUSB1@9600") {
		t.Fatalf("expected different ports to be different links")
	}
}
