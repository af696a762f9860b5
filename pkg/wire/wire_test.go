package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ops := []Op{
		Copy(7),
		Delete(3),
		Insert([]byte("Robert")),
		Copy(2),
	}

	encoded := Encode(ops)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// decoded carries a trailing End() the input ops slice doesn't.
	if len(decoded) != len(ops)+1 {
		t.Fatalf("Decode() returned %d ops, want %d", len(decoded), len(ops)+1)
	}
	for i, op := range ops {
		if decoded[i].Code != op.Code || decoded[i].Len != op.Len {
			t.Errorf("op[%d] = %+v, want %+v", i, decoded[i], op)
		}
	}
	if decoded[len(ops)].Code != OpEnd {
		t.Errorf("final op = %v, want END", decoded[len(ops)].Code)
	}
}

func TestWireFormatCompliance(t *testing.T) {
	encoded := Encode([]Op{Insert([]byte("test"))})

	want := []byte{
		0x02, 0x00, 0x00, 0x04, 't', 'e', 's', 't',
		0x04, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encode() = %x, want %x", encoded, want)
	}
}

func TestApplyCopy(t *testing.T) {
	base := []byte("Hello, World!")
	patch := Encode([]Op{Copy(5)})

	got, err := Apply(base[:5], patch) // base accounting: cursor must reach len(base)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if string(got) != "Hello" {
		t.Errorf("Apply() = %q, want %q", got, "Hello")
	}
}

func TestApplyInsertAndDelete(t *testing.T) {
	base := []byte("Hello, cruel World!")
	patch := Encode([]Op{
		Copy(7),        // "Hello, "
		Delete(6),      // skip "cruel "
		Copy(6),        // "World!"
	})

	got, err := Apply(base, patch)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if string(got) != "Hello, World!" {
		t.Errorf("Apply() = %q, want %q", got, "Hello, World!")
	}
}

func TestApplyJSONNameChange(t *testing.T) {
	base := []byte(`{"name":"Bob"}`)
	patch := Encode([]Op{
		Copy(9),                    // `{"name":"`
		Delete(3),                  // "Bob"
		Insert([]byte("Robert")),   // "Robert"
		Copy(2),                    // `"}`
	})

	got, err := Apply(base, patch)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := `{"name":"Robert"}`
	if string(got) != want {
		t.Errorf("Apply() = %q, want %q", got, want)
	}
}

func TestIdentityIsSingleCopyPlusEnd(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)
	patch := Encode([]Op{Copy(uint32(len(data)))})

	ops, err := Decode(patch)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(ops) != 2 || ops[0].Code != OpCopy || ops[0].Len != uint32(len(data)) || ops[1].Code != OpEnd {
		t.Fatalf("identity patch ops = %+v, want [COPY(%d) END]", ops, len(data))
	}

	got, err := Apply(data, patch)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Apply(identity patch) did not reproduce input")
	}
}

func TestEmptyOperations(t *testing.T) {
	encoded := Encode(nil)
	if len(encoded) != 4 {
		t.Fatalf("Encode(nil) length = %d, want 4", len(encoded))
	}
	if Opcode(encoded[0]) != OpEnd {
		t.Errorf("Encode(nil)[0] = 0x%02x, want END", encoded[0])
	}

	got, err := Apply(nil, encoded)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Apply(nil, END-only) = %q, want empty", got)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x00, 0x00, 0x00})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("Decode() error = %v, want ErrUnknownOpcode", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{byte(OpCopy), 0x00})
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode() error = %v, want ErrTruncated", err)
	}
}

func TestDecodeMissingEnd(t *testing.T) {
	_, err := Decode([]byte{byte(OpCopy), 0x00, 0x00, 0x05})
	if !errors.Is(err, ErrMissingEnd) {
		t.Errorf("Decode() error = %v, want ErrMissingEnd", err)
	}
}

func TestDecodeNonZeroEndLength(t *testing.T) {
	_, err := Decode([]byte{byte(OpEnd), 0x00, 0x00, 0x01})
	if !errors.Is(err, ErrNonZeroEndLen) {
		t.Errorf("Decode() error = %v, want ErrNonZeroEndLen", err)
	}
}

func TestDecodeTrailingDataAfterEnd(t *testing.T) {
	patch := append(Encode(nil), byte(OpCopy), 0, 0, 1)
	_, err := Decode(patch)
	if !errors.Is(err, ErrTrailingData) {
		t.Errorf("Decode() error = %v, want ErrTrailingData", err)
	}
}

func TestApplyCopyBeyondBase(t *testing.T) {
	patch := Encode([]Op{Copy(100)})
	_, err := Apply([]byte("short"), patch)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("Apply() error = %v, want ErrOverflow", err)
	}
}

func TestApplyDeleteBeyondBase(t *testing.T) {
	patch := Encode([]Op{Delete(100)})
	_, err := Apply([]byte("short"), patch)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("Apply() error = %v, want ErrOverflow", err)
	}
}

func TestApplyBaseAccountingMismatch(t *testing.T) {
	// COPY only covers half of base; END requires cursor == len(base).
	patch := Encode([]Op{Copy(2)})
	_, err := Apply([]byte("abcd"), patch)
	if !errors.Is(err, ErrBaseAccounting) {
		t.Errorf("Apply() error = %v, want ErrBaseAccounting", err)
	}
}

func TestEncodeSplitsOversizedRun(t *testing.T) {
	const n = maxLen + 10
	patch := Encode([]Op{Copy(n)})
	ops, err := Decode(patch)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(ops) != 3 { // two COPY frames + END
		t.Fatalf("split COPY produced %d ops, want 3", len(ops))
	}
	if ops[0].Len != maxLen || ops[1].Len != 10 {
		t.Errorf("split lengths = %d, %d, want %d, %d", ops[0].Len, ops[1].Len, maxLen, 10)
	}

	base := make([]byte, n)
	if _, err := Apply(base, patch); err != nil {
		t.Fatalf("Apply(split patch) error = %v", err)
	}
}

func TestMax24BitValue(t *testing.T) {
	patch := Encode([]Op{Copy(maxLen), Delete(0)})
	ops, err := Decode(patch)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ops[0].Len != maxLen {
		t.Errorf("Len = %d, want %d", ops[0].Len, maxLen)
	}
}
