package rfcomm

import "testing"

func TestFormatAddr(t *testing.T) {
	got := formatAddr([6]uint8{0x66, 0x55, 0x44, 0x33, 0x22, 0x11})
	if want := "11:22:33:44:55:66"; got != want {
		t.Errorf("formatAddr = %q, want %q", got, want)
	}
	if got := formatAddr([6]uint8{}); got != "00:00:00:00:00:00" {
		t.Errorf("formatAddr(any) = %q", got)
	}
}
