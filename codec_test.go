package smbfs

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeUTF16LE_RoundTrip(t *testing.T) {
	tests := []string{"", "hello", "CORP\\alice", "日本語"}
	for _, s := range tests {
		encoded := EncodeStringToUTF16LE(s)
		got := DecodeUTF16LEToString(encoded)
		if got != s {
			t.Errorf("round trip %q -> %x -> %q", s, encoded, got)
		}
	}
}

func TestDecodeUTF16LEToString_StripsNullTerminatorAndOddByte(t *testing.T) {
	withNull := append(EncodeStringToUTF16LE("abc"), 0x00, 0x00)
	if got := DecodeUTF16LEToString(withNull); got != "abc" {
		t.Errorf("DecodeUTF16LEToString with trailing null = %q, want %q", got, "abc")
	}

	odd := append(EncodeStringToUTF16LE("ab"), 0x41) // dangling odd byte
	if got := DecodeUTF16LEToString(odd); got != "ab" {
		t.Errorf("DecodeUTF16LEToString with odd trailing byte = %q, want %q", got, "ab")
	}
}

func TestPadTo8ByteBoundaryAndAlignTo8(t *testing.T) {
	tests := []struct {
		offset  int
		wantPad int
	}{
		{0, 0},
		{1, 7},
		{7, 1},
		{8, 0},
		{9, 7},
	}
	for _, tt := range tests {
		if got := PadTo8ByteBoundary(tt.offset); got != tt.wantPad {
			t.Errorf("PadTo8ByteBoundary(%d) = %d, want %d", tt.offset, got, tt.wantPad)
		}
		if got := AlignTo8(tt.offset); got != tt.offset+tt.wantPad {
			t.Errorf("AlignTo8(%d) = %d, want %d", tt.offset, got, tt.offset+tt.wantPad)
		}
	}
}

func TestByteWriterByteReader_RoundTrip(t *testing.T) {
	w := NewByteWriter(64)
	w.WriteOneByte(0x42)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0123456789ABCDEF)
	guid := NewGUID()
	w.WriteGUID(guid)
	w.WriteUTF16String("test")
	w.WritePadTo8()

	r := NewByteReader(w.Bytes())
	if got := r.ReadOneByte(); got != 0x42 {
		t.Errorf("ReadOneByte() = %#x, want %#x", got, 0x42)
	}
	if got := r.ReadUint16(); got != 0x1234 {
		t.Errorf("ReadUint16() = %#x, want %#x", got, 0x1234)
	}
	if got := r.ReadUint32(); got != 0xDEADBEEF {
		t.Errorf("ReadUint32() = %#x, want %#x", got, 0xDEADBEEF)
	}
	if got := r.ReadUint64(); got != 0x0123456789ABCDEF {
		t.Errorf("ReadUint64() = %#x, want %#x", got, uint64(0x0123456789ABCDEF))
	}
	if got := r.ReadGUID(); got != guid {
		t.Errorf("ReadGUID() = %x, want %x", got, guid)
	}
	if got := r.ReadUTF16String(8); got != "test" {
		t.Errorf("ReadUTF16String() = %q, want %q", got, "test")
	}
	if r.Err() != nil {
		t.Errorf("unexpected read error: %v", r.Err())
	}
}

func TestByteReader_ShortReadRecordsError(t *testing.T) {
	r := NewByteReader([]byte{0x01, 0x02})
	if got := r.ReadUint32(); got != 0 {
		t.Errorf("ReadUint32() on short buffer = %d, want 0", got)
	}
	if r.Err() != ErrInvalidSizeField {
		t.Errorf("Err() = %v, want %v", r.Err(), ErrInvalidSizeField)
	}
}

func TestByteWriter_SetUint16AtAndSetUint32At_Backpatch(t *testing.T) {
	w := NewByteWriter(16)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteBytes([]byte("padding"))

	w.SetUint16At(0, 0xBEEF)
	w.SetUint32At(2, 0xCAFEF00D)

	r := NewByteReader(w.Bytes())
	if got := r.ReadUint16(); got != 0xBEEF {
		t.Errorf("backpatched uint16 = %#x, want %#x", got, 0xBEEF)
	}
	if got := r.ReadUint32(); got != 0xCAFEF00D {
		t.Errorf("backpatched uint32 = %#x, want %#x", got, 0xCAFEF00D)
	}
}

func TestFileIDRoundTrip(t *testing.T) {
	w := NewByteWriter(16)
	id := FileID{Persistent: 0x1111222233334444, Volatile: 0x5555666677778888}
	w.WriteFileID(id)

	r := NewByteReader(w.Bytes())
	got := r.ReadFileID()
	if got != id {
		t.Errorf("ReadFileID() = %+v, want %+v", got, id)
	}
}

func TestGUIDToString_Format(t *testing.T) {
	var guid [16]byte
	for i := range guid {
		guid[i] = byte(i)
	}
	s := GUIDToString(guid)
	if len(s) != 36 {
		t.Fatalf("GUIDToString length = %d, want 36", len(s))
	}
	wantDashes := []int{8, 13, 18, 23}
	for _, i := range wantDashes {
		if s[i] != '-' {
			t.Errorf("GUIDToString()[%d] = %q, want '-'", i, s[i])
		}
	}
}

func TestNewGUID_SetsVersionAndVariantBits(t *testing.T) {
	guid := NewGUID()
	if guid[6]&0xf0 != 0x40 {
		t.Errorf("GUID version nibble = %#x, want 0x4", guid[6]&0xf0)
	}
	if guid[8]&0xc0 != 0x80 {
		t.Errorf("GUID variant bits = %#x, want 0x80..", guid[8]&0xc0)
	}
}

func TestNewGUID_Uniqueness(t *testing.T) {
	a := NewGUID()
	b := NewGUID()
	if bytes.Equal(a[:], b[:]) {
		t.Error("NewGUID produced identical GUIDs twice in a row")
	}
}
