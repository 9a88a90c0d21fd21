package canbus

import (
	"errors"
	"testing"
)

func TestParseFrame_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		payload string
	}{
		{"both empty", "", ""},
		{"no id", "", "FFFFFFFFFFFFFFFF"},
		{"no id short payload", "", "00"},
		{"odd id", "000", "00"},
		{"odd payload", "00", "000"},
		{"empty payload", "0080", ""},
		{"not hex", "zz", "00"},
		{"id too wide", "000000000000000001", "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.id, tt.payload)
			if !errors.Is(err, ErrInvalidHex) {
				t.Fatalf("ParseFrame(%q, %q) error = %v, want ErrInvalidHex", tt.id, tt.payload, err)
			}
		})
	}
}

func TestParseFrame_Short(t *testing.T) {
	f, err := ParseFrame("0080", "00")
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if f.ArbitrationID != 0x80 {
		t.Errorf("ArbitrationID = %#x, want 0x80", f.ArbitrationID)
	}
	if len(f.Payload) != 1 {
		t.Errorf("len(Payload) = %d, want 1", len(f.Payload))
	}
	if got := f.String(); got != "080#00" {
		t.Errorf("String() = %q", got)
	}
}

func TestFrame_FieldPadsAndTruncates(t *testing.T) {
	short := MustParseFrame("00", "FF")
	if got := short.Field(); got != 0xFF00000000000000 {
		t.Errorf("short Field() = %#x", got)
	}

	long := MustParseFrame("00", "0102030405060708FFFF")
	if got := long.Field(); got != 0x0102030405060708 {
		t.Errorf("long Field() = %#x", got)
	}
}

func TestFrameFromBytes_Copies(t *testing.T) {
	data := []byte{1, 2, 3}
	f := FrameFromBytes(0x10, data)
	data[0] = 9
	if f.Payload[0] != 1 {
		t.Error("FrameFromBytes must copy the payload")
	}
}
