package imagecodec

import (
	"errors"
	"testing"
)

// mustJPEGTable builds a table from per-length counts and symbols,
// failing the test on a malformed definition.
func mustJPEGTable(t *testing.T, counts [jpegMaxCodeBits]int, symbols []byte) *jpegHuffmanTable {
	t.Helper()
	table, err := buildJPEGHuffmanTable(&counts, symbols)
	if err != nil {
		t.Fatalf("buildJPEGHuffmanTable: %v", err)
	}
	return table
}

func TestBuildJPEGHuffmanTable_CanonicalOrder(t *testing.T) {
	// Two codes of length 2 and two of length 3 yield 00, 01, 100, 101
	// assigned to the symbols in table order.
	table := mustJPEGTable(t, [jpegMaxCodeBits]int{0, 2, 2}, []byte{'A', 'B', 'C', 'D'})

	// 00 01 100 101, packed MSB first: 0001100101 -> 0x19 0x40.
	r := newJPEGBitReader([]byte{0x19, 0x40}, 0)
	for _, want := range []int{'A', 'B', 'C', 'D'} {
		got, err := table.DecodeSymbol(r)
		if err != nil {
			t.Fatalf("DecodeSymbol: %v", err)
		}
		if got != want {
			t.Errorf("decoded symbol %q, want %q", got, want)
		}
	}
}

func TestBuildJPEGHuffmanTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		counts  [jpegMaxCodeBits]int
		symbols []byte
	}{
		{name: "no codes"},
		{name: "count symbol mismatch", counts: [jpegMaxCodeBits]int{2}, symbols: []byte{1}},
		{name: "overfull length", counts: [jpegMaxCodeBits]int{3}, symbols: []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := tt.counts
			if _, err := buildJPEGHuffmanTable(&counts, tt.symbols); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("got %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestJPEGBitReader_ByteStuffing(t *testing.T) {
	// 0xFF followed by 0x00 is a literal 0xFF data byte.
	r := newJPEGBitReader([]byte{0xFF, 0x00, 0x80}, 0)
	if got := r.ReadBits(8); got != 0xFF {
		t.Errorf("first byte = %#02x, want 0xFF", got)
	}
	if got := r.ReadBits(8); got != 0x80 {
		t.Errorf("second byte = %#02x, want 0x80", got)
	}
}

func TestJPEGBitReader_StopsAtMarker(t *testing.T) {
	r := newJPEGBitReader([]byte{0xAB, 0xFF, markerEOI}, 0)
	if got := r.ReadBits(8); got != 0xAB {
		t.Fatalf("data byte = %#02x, want 0xAB", got)
	}
	err := readFault(func() { r.ReadBit() })
	if !errors.Is(err, ErrTruncatedData) {
		t.Errorf("read past marker: got %v, want ErrTruncatedData", err)
	}
}

func TestJPEGBitReader_ConsumeMarker(t *testing.T) {
	// Three data bits, pad bits, then a restart marker.
	r := newJPEGBitReader([]byte{0xE0, 0xFF, markerRST0 + 2}, 0)
	r.ReadBits(3)
	m, err := r.ConsumeMarker()
	if err != nil {
		t.Fatalf("ConsumeMarker: %v", err)
	}
	if m != markerRST0+2 {
		t.Errorf("marker = %#02x, want %#02x", m, markerRST0+2)
	}
}

func TestExtend(t *testing.T) {
	tests := []struct {
		magnitude uint32
		category  int
		want      int32
	}{
		{0, 0, 0},
		{0, 1, -1},
		{1, 1, 1},
		{0, 3, -7},
		{3, 3, -4},
		{4, 3, 4},
		{7, 3, 7},
		{0, 11, -2047},
		{2047, 11, 2047},
	}
	for _, tt := range tests {
		if got := extend(tt.magnitude, tt.category); got != tt.want {
			t.Errorf("extend(%d, %d) = %d, want %d", tt.magnitude, tt.category, got, tt.want)
		}
	}
}

func TestDecodeDC_DifferentialPrediction(t *testing.T) {
	// One code, '0', for category 1: each unit is one code bit plus one
	// magnitude bit.
	table := mustJPEGTable(t, [jpegMaxCodeBits]int{1}, []byte{1})

	// Two units of diff +1: bits 01 01, padded.
	r := newJPEGBitReader([]byte{0x50}, 0)
	var pred int32

	got, err := decodeDC(r, table, &pred)
	if err != nil {
		t.Fatalf("decodeDC: %v", err)
	}
	if got != 1 {
		t.Errorf("first dc = %d, want 1", got)
	}
	got, err = decodeDC(r, table, &pred)
	if err != nil {
		t.Fatalf("decodeDC: %v", err)
	}
	if got != 2 {
		t.Errorf("second dc = %d, want 2", got)
	}

	// A predictor reset makes the next unit absolute again.
	pred = 0
	r = newJPEGBitReader([]byte{0x40}, 0)
	got, err = decodeDC(r, table, &pred)
	if err != nil {
		t.Fatalf("decodeDC after reset: %v", err)
	}
	if got != 1 {
		t.Errorf("dc after reset = %d, want 1", got)
	}
}

func TestDecodeAC_RunAndEOB(t *testing.T) {
	// Codes: '0' -> EOB, '1' -> run 2, category 1.
	table := mustJPEGTable(t, [jpegMaxCodeBits]int{2}, []byte{0x00, 0x21})

	// Bits: 1 (run/size), magnitude 1, then 0 (EOB). 110 padded -> 0xC0.
	r := newJPEGBitReader([]byte{0xC0}, 0)
	var block [64]int32
	if err := decodeAC(r, table, &block); err != nil {
		t.Fatalf("decodeAC: %v", err)
	}

	for i, v := range block {
		want := int32(0)
		if i == 3 {
			want = 1
		}
		if v != want {
			t.Errorf("block[%d] = %d, want %d", i, v, want)
		}
	}
}

func TestDecodeAC_ZeroRunLength(t *testing.T) {
	// Codes: '0' -> ZRL, '1' -> run 0, category 1.
	table := mustJPEGTable(t, [jpegMaxCodeBits]int{2}, []byte{0xF0, 0x01})

	// Bits: 0 (ZRL), 1 1 (coeff at 17), 0 0 (ZRL ZRL), 1 1 (coeff at 50),
	// 0 (ZRL, run leaves position 63 behind and the block ends).
	r := newJPEGBitReader([]byte{0x66}, 0)
	var block [64]int32
	if err := decodeAC(r, table, &block); err != nil {
		t.Fatalf("decodeAC: %v", err)
	}
	if block[17] != 1 {
		t.Errorf("block[17] = %d, want 1", block[17])
	}
	if block[50] != 1 {
		t.Errorf("block[50] = %d, want 1", block[50])
	}
}

func TestDecodeAC_RunPastEnd(t *testing.T) {
	// Single code '0' -> run 15, category 1. Four of them run past 63.
	table := mustJPEGTable(t, [jpegMaxCodeBits]int{1}, []byte{0xF1})

	// Bits: (0,1) x3 then 0: 0101 0100 -> 0x54.
	r := newJPEGBitReader([]byte{0x54}, 0)
	var block [64]int32
	if err := decodeAC(r, table, &block); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}
