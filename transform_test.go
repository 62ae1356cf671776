package smbfs

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptTransformMessage_RoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i * 7)
	}
	sessionID := uint64(0x0102030405060708)
	plaintext := make([]byte, SMB2HeaderSize+64)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	envelope, err := encryptTransformMessage(key, sessionID, plaintext)
	if err != nil {
		t.Fatalf("encryptTransformMessage: %v", err)
	}
	if len(envelope) != transformHeaderSize+len(plaintext) {
		t.Fatalf("envelope length = %d, want %d", len(envelope), transformHeaderSize+len(plaintext))
	}
	if string(envelope[0:4]) != TransformProtocolID {
		t.Errorf("envelope protocol ID = %q, want %q", envelope[0:4], TransformProtocolID)
	}
	if !isTransformHeader(envelope) {
		t.Error("encrypted envelope not recognized by isTransformHeader")
	}

	gotPlaintext, gotSessionID, err := decryptTransformMessage(key, envelope)
	if err != nil {
		t.Fatalf("decryptTransformMessage: %v", err)
	}
	if gotSessionID != sessionID {
		t.Errorf("decrypted session ID = %#x, want %#x", gotSessionID, sessionID)
	}
	if !bytes.Equal(gotPlaintext, plaintext) {
		t.Error("decrypted plaintext does not match original")
	}
}

func TestEncryptTransformMessage_FreshNoncePerCall(t *testing.T) {
	key := make([]byte, 16)
	plaintext := []byte("identical payload")

	a, err := encryptTransformMessage(key, 1, plaintext)
	if err != nil {
		t.Fatalf("encryptTransformMessage: %v", err)
	}
	b, err := encryptTransformMessage(key, 1, plaintext)
	if err != nil {
		t.Fatalf("encryptTransformMessage: %v", err)
	}

	nonceA := a[20:36]
	nonceB := b[20:36]
	if bytes.Equal(nonceA, nonceB) {
		t.Error("encryptTransformMessage reused a nonce across calls")
	}
	// Ciphertext must differ too, since the nonce differs.
	if bytes.Equal(a[transformHeaderSize:], b[transformHeaderSize:]) {
		t.Error("ciphertext identical across calls with different nonces")
	}
}

func TestDecryptTransformMessage_RejectsShortFrame(t *testing.T) {
	if _, _, err := decryptTransformMessage(make([]byte, 16), []byte("too short")); err != ErrInvalidMessage {
		t.Errorf("error = %v, want %v", err, ErrInvalidMessage)
	}
}

func TestDecryptTransformMessage_RejectsWrongMagic(t *testing.T) {
	frame := make([]byte, transformHeaderSize+8)
	copy(frame[0:4], "XXXX")
	if _, _, err := decryptTransformMessage(make([]byte, 16), frame); err != ErrInvalidMessage {
		t.Errorf("error = %v, want %v", err, ErrInvalidMessage)
	}
}

func TestDecryptTransformMessage_RejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 16)
	plaintext := []byte("tamper me if you can")
	envelope, err := encryptTransformMessage(key, 42, plaintext)
	if err != nil {
		t.Fatalf("encryptTransformMessage: %v", err)
	}

	envelope[len(envelope)-1] ^= 0xFF

	if _, _, err := decryptTransformMessage(key, envelope); err != ErrDecryptionFailed {
		t.Errorf("error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestDecryptTransformMessage_RejectsWrongKey(t *testing.T) {
	key := make([]byte, 16)
	wrongKey := make([]byte, 16)
	wrongKey[0] = 1

	envelope, err := encryptTransformMessage(key, 7, []byte("secret payload"))
	if err != nil {
		t.Fatalf("encryptTransformMessage: %v", err)
	}

	if _, _, err := decryptTransformMessage(wrongKey, envelope); err != ErrDecryptionFailed {
		t.Errorf("error = %v, want %v", err, ErrDecryptionFailed)
	}
}
