package wasm

import (
	"bytes"
	"testing"
)

func TestLEB128u_RoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 63, 64, 127, 128, 300, 16384, 65535, 65536, 0xFFFFFFFF}
	for _, v := range cases {
		enc := AppendLEB128u(nil, v)
		got, err := ReadLEB128u(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
	}
}

func TestLEB128u_KnownEncodings(t *testing.T) {
	cases := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, c := range cases {
		if got := AppendLEB128u(nil, c.v); !bytes.Equal(got, c.want) {
			t.Fatalf("encode %d: got % x, want % x", c.v, got, c.want)
		}
	}
}

func TestLEB128u_Overflow(t *testing.T) {
	// Six continuation bytes exceed 32 bits.
	enc := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, err := ReadLEB128u(bytes.NewReader(enc)); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestLEB128s_KnownEncodings(t *testing.T) {
	cases := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
	}
	for _, c := range cases {
		if got := AppendLEB128s(nil, c.v); !bytes.Equal(got, c.want) {
			t.Fatalf("encode %d: got % x, want % x", c.v, got, c.want)
		}
	}
}
