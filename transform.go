package smbfs

import "encoding/binary"

// Transform Header layout (MS-SMB2 2.2.41), fixed at 52 bytes:
//
//	0..4    ProtocolId       = 0xFD 'S' 'M' 'B'
//	4..20   Signature        AES-CCM authentication tag
//	20..36  Nonce            16 bytes; only the first 11 feed the CCM nonce
//	36..40  OriginalMessageSize
//	40..42  Reserved         = 0
//	42..44  Flags            = 0x0001 (encrypted)
//	44..52  SessionId
//
// AAD for the AEAD is bytes 20..52 (nonce through session ID); the
// encrypted payload follows immediately after byte 52.
const (
	transformHeaderSize = 52
	transformFlagEncrypted uint16 = 0x0001
	ccmNonceSize           = 11
)

// encryptTransformMessage wraps plaintext (a full SMB2 message: header +
// payload) in a Transform envelope encrypted under key, addressed to
// sessionID. A fresh random nonce is drawn for every call.
func encryptTransformMessage(key []byte, sessionID uint64, plaintext []byte) ([]byte, error) {
	nonce16 := randomBytes(16)
	for i := ccmNonceSize; i < 16; i++ {
		nonce16[i] = 0
	}

	envelope := make([]byte, transformHeaderSize)
	copy(envelope[0:4], TransformProtocolID)
	copy(envelope[20:36], nonce16)
	binary.LittleEndian.PutUint32(envelope[36:40], uint32(len(plaintext)))
	binary.LittleEndian.PutUint16(envelope[40:42], 0) // Reserved
	binary.LittleEndian.PutUint16(envelope[42:44], transformFlagEncrypted)
	binary.LittleEndian.PutUint64(envelope[44:52], sessionID)

	aad := envelope[20:52]
	ciphertext, tag, err := ccmEncrypt(key, nonce16[:ccmNonceSize], aad, plaintext)
	if err != nil {
		return nil, err
	}
	copy(envelope[4:20], tag)

	out := make([]byte, transformHeaderSize+len(ciphertext))
	copy(out, envelope)
	copy(out[transformHeaderSize:], ciphertext)
	return out, nil
}

// decryptTransformMessage unwraps and decrypts a Transform-enveloped
// message received from the server, verifying the AES-CCM tag as the
// envelope's signature. It returns the plaintext SMB2 message and the
// session ID the envelope is addressed to.
func decryptTransformMessage(key []byte, frame []byte) (plaintext []byte, sessionID uint64, err error) {
	if len(frame) < transformHeaderSize {
		return nil, 0, ErrInvalidMessage
	}
	if string(frame[0:4]) != TransformProtocolID {
		return nil, 0, ErrInvalidMessage
	}

	tag := frame[4:20]
	nonce16 := frame[20:36]
	originalSize := binary.LittleEndian.Uint32(frame[36:40])
	flags := binary.LittleEndian.Uint16(frame[42:44])
	sid := binary.LittleEndian.Uint64(frame[44:52])

	if flags&transformFlagEncrypted == 0 {
		return nil, 0, ErrInvalidMessage
	}

	ciphertext := frame[transformHeaderSize:]
	if uint32(len(ciphertext)) != originalSize {
		return nil, 0, ErrInvalidMessage
	}

	aad := frame[20:52]
	pt, err := ccmDecrypt(key, nonce16[:ccmNonceSize], aad, ciphertext, tag)
	if err != nil {
		return nil, 0, ErrDecryptionFailed
	}

	return pt, sid, nil
}
