package smbfs

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/md4"
)

// ntowfv1 computes NTOWFv1, the NT hash: MD4 of the UTF-16LE password.
// golang.org/x/crypto/md4 is used because MD4 was deliberately dropped from
// the standard library; it is kept only in the extended crypto module for
// legacy interop such as this.
func ntowfv1(password string) []byte {
	h := md4.New()
	h.Write(EncodeStringToUTF16LE(password))
	return h.Sum(nil)
}

// ntowfv2 computes HMAC_MD5(NTOWFv1, UTF16LE(uppercase(username) || domain)).
// Domain casing is preserved verbatim as provided by the caller; only the
// username is uppercased (§4.2, §4.3, invariant 7 in §8).
func ntowfv2(password, username, domain string) []byte {
	ntowf1 := ntowfv1(password)
	h := hmac.New(md5.New, ntowf1)
	h.Write(EncodeStringToUTF16LE(strings.ToUpper(username) + domain))
	return h.Sum(nil)
}

// lmHash computes the legacy LM hash of a password for the NTLMv1 path.
func lmHash(password string) []byte {
	const magic = "KGS!@#$%"

	upper := strings.ToUpper(password)
	padded := make([]byte, 14)
	copy(padded, upper)

	out := make([]byte, 16)
	copy(out[0:8], desEncryptBlock(expandDESKey(padded[0:7]), []byte(magic)))
	copy(out[8:16], desEncryptBlock(expandDESKey(padded[7:14]), []byte(magic)))
	return out
}

// expandDESKey expands a 7-byte key into an 8-byte DES key by inserting an
// odd-parity bit after every 7 data bits (§4.2).
func expandDESKey(key7 []byte) []byte {
	var bits [56]byte
	for i, b := range key7 {
		for j := 0; j < 7; j++ {
			bits[i*7+j] = (b >> (6 - j)) & 1
		}
	}

	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		var b byte
		ones := 0
		for j := 0; j < 7; j++ {
			bit := bits[i*7+j]
			b = (b << 1) | bit
			ones += int(bit)
		}
		// parity bit: odd parity across the 8 bits
		parity := byte(0)
		if ones%2 == 0 {
			parity = 1
		}
		out[i] = (b << 1) | parity
	}
	return out
}

func desEncryptBlock(key, block []byte) []byte {
	b, err := des.NewCipher(key)
	if err != nil {
		return make([]byte, 8)
	}
	out := make([]byte, 8)
	b.Encrypt(out, block)
	return out
}

// desLongResponse implements the 21-byte-padded-hash -> 24-byte response
// construction shared by the NTLMv1 NT and LM responses: split into three
// 7-byte DES keys, each encrypting the first 8 bytes of the challenge.
func desLongResponse(hash21 []byte, challenge []byte) []byte {
	out := make([]byte, 24)
	copy(out[0:8], desEncryptBlock(expandDESKey(hash21[0:7]), challenge))
	copy(out[8:16], desEncryptBlock(expandDESKey(hash21[7:14]), challenge))
	copy(out[16:24], desEncryptBlock(expandDESKey(hash21[14:21]), challenge))
	return out
}

// ntlmv1Response computes the 24-byte NTLMv1 NT/LM response from a 16-byte
// hash (NT hash or LM hash) and the 8-byte server challenge.
func ntlmv1Response(hash []byte, challenge []byte) []byte {
	padded := make([]byte, 21)
	copy(padded, hash)
	return desLongResponse(padded, challenge)
}

// hmacMD5 computes HMAC-MD5(key, data).
func hmacMD5(key, data []byte) []byte {
	h := hmac.New(md5.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// kdfSP800108 implements the NIST SP800-108 KDF in counter mode with
// HMAC-SHA256 (§4.2): K(1) = HMAC(KI, BE32(1) || label || 0x00 || context ||
// BE32(L)); only a single 32-byte HMAC output is ever needed since every
// caller in this protocol requests L=128 bits, well under one block.
func kdfSP800108(ki, label, context []byte, lengthBytes int) []byte {
	lengthBits := uint32(lengthBytes * 8)
	result := make([]byte, 0, lengthBytes)
	counter := uint32(1)

	for len(result) < lengthBytes {
		h := hmac.New(sha256.New, ki)

		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])

		h.Write(label)
		h.Write([]byte{0x00})
		h.Write(context)

		var lengthBitsBytes [4]byte
		binary.BigEndian.PutUint32(lengthBitsBytes[:], lengthBits)
		h.Write(lengthBitsBytes[:])

		result = append(result, h.Sum(nil)...)
		counter++
	}

	return result[:lengthBytes]
}

// computeAESCMAC computes AES-128-CMAC per RFC 4493.
func computeAESCMAC(message []byte, key []byte) []byte {
	signingKey := make([]byte, 16)
	copy(signingKey, key)

	block, err := aes.NewCipher(signingKey)
	if err != nil {
		return nil
	}

	k1, k2 := generateCMACSubkeys(block)

	n := (len(message) + 15) / 16
	if n == 0 {
		n = 1
	}

	lastBlockComplete := len(message) > 0 && len(message)%16 == 0
	lastBlock := make([]byte, 16)

	if lastBlockComplete {
		copy(lastBlock, message[(n-1)*16:])
		xorBytes(lastBlock, k1)
	} else {
		remaining := len(message) % 16
		if len(message) > 0 {
			copy(lastBlock, message[(n-1)*16:])
		}
		lastBlock[remaining] = 0x80
		xorBytes(lastBlock, k2)
	}

	x := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		xorBytes(x, message[i*16:(i+1)*16])
		block.Encrypt(x, x)
	}
	xorBytes(x, lastBlock)
	block.Encrypt(x, x)

	return x
}

// generateCMACSubkeys generates K1 and K2 per RFC 4493 §2.3.
func generateCMACSubkeys(block cipher.Block) (k1, k2 []byte) {
	const rb = 0x87

	l := make([]byte, 16)
	block.Encrypt(l, l)

	k1 = make([]byte, 16)
	shiftLeft(k1, l)
	if l[0]&0x80 != 0 {
		k1[15] ^= rb
	}

	k2 = make([]byte, 16)
	shiftLeft(k2, k1)
	if k1[0]&0x80 != 0 {
		k2[15] ^= rb
	}

	return k1, k2
}

func shiftLeft(dst, src []byte) {
	overflow := byte(0)
	for i := len(src) - 1; i >= 0; i-- {
		newOverflow := src[i] >> 7
		dst[i] = (src[i] << 1) | overflow
		overflow = newOverflow
	}
}

func xorBytes(dst, src []byte) {
	for i := 0; i < len(dst) && i < len(src); i++ {
		dst[i] ^= src[i]
	}
}

// ccmEncrypt implements AES-128-CCM (NIST SP 800-38C) as used by the
// Transform engine: counter-mode encryption plus a CBC-MAC authentication
// tag, both built directly on crypto/aes. Neither the standard library nor
// any corpus dependency exposes a ready-made CCM AEAD (crypto/cipher only
// ships NewGCM); this mirrors the same "hand-roll the mode atop the raw
// block cipher" idiom already used for AES-CMAC above, rather than
// importing an unrelated dependency with no home elsewhere in this module.
//
// key is 16 bytes, nonce is 11 bytes (the low-order 4 bytes of the 16-byte
// formatted nonce/counter blocks are the message-length counter, per the
// CCM construction with L=4, M=16, n+L=15).
func ccmEncrypt(key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	t := ccmComputeTag(block, nonce, aad, plaintext)

	// Counter 0 is reserved for masking the tag; message encryption starts
	// at counter 1, so the two keystream blocks never collide.
	ciphertext = ccmCTRCrypt(block, nonce, 1, plaintext)
	tagMask := ccmCTRCrypt(block, nonce, 0, t)
	return ciphertext, tagMask, nil
}

// ccmDecrypt reverses ccmEncrypt and verifies the tag in constant time.
func ccmDecrypt(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := ccmCTRCrypt(block, nonce, 1, ciphertext)
	rawMAC := ccmCTRCrypt(block, nonce, 0, tag)

	expected := ccmComputeTag(block, nonce, aad, plaintext)
	if subtle.ConstantTimeCompare(rawMAC, expected) != 1 {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ccmNonceBlock builds the 16-byte CCM counter block for block index i.
// The nonce is 11 bytes, so n+L=15 requires L=4 (a 4-byte length field);
// flag byte bits 0-2 encode L-1=3. Bytes 1..12 are the nonce; bytes 12..16
// are the big-endian block counter.
func ccmNonceBlock(nonce []byte, counter uint32) []byte {
	block := make([]byte, 16)
	block[0] = 3 // L - 1, with L=4
	copy(block[1:1+len(nonce)], nonce)
	binary.BigEndian.PutUint32(block[12:16], counter)
	return block
}

// ccmCTRCrypt runs CTR mode starting at the given counter value. Callers
// must use counter 0 only for masking the tag and counter 1 onward for
// message data, per SP 800-38C §A.3 — reusing counter 0 for both would
// leak the first keystream block between the two.
func ccmCTRCrypt(block cipher.Block, nonce []byte, startCounter uint32, in []byte) []byte {
	iv := ccmNonceBlock(nonce, startCounter)
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out
}

// ccmComputeTag computes the raw (unencrypted) CBC-MAC over the formatted
// B0 block, encoded AAD, and padded plaintext, per SP 800-38C §A.2.
func ccmComputeTag(block cipher.Block, nonce, aad, plaintext []byte) []byte {
	b0 := make([]byte, 16)
	b0[0] = ccmFlagsByte(len(aad) > 0)
	copy(b0[1:1+len(nonce)], nonce)
	binary.BigEndian.PutUint32(b0[12:16], uint32(len(plaintext)))

	mac := cbcMAC(block, b0)

	if len(aad) > 0 {
		aadLenField := ccmEncodeAADLength(len(aad))
		aadBlock := append(aadLenField, aad...)
		mac = cbcMACContinue(block, mac, aadBlock)
	}

	if len(plaintext) > 0 {
		mac = cbcMACContinue(block, mac, plaintext)
	}

	return mac
}

// ccmFlagsByte encodes the CCM B0 flags octet for M=16 (tag length), L=4
// (message-length field width, matching the 11-byte nonce): bit 6 = Adata
// present, bits 3-5 = (M-2)/2, bits 0-2 = L-1.
func ccmFlagsByte(hasAAD bool) byte {
	var flags byte
	if hasAAD {
		flags |= 0x40
	}
	mField := byte((16 - 2) / 2) // = 7
	flags |= mField << 3
	flags |= 3 // L-1, L=4
	return flags
}

// ccmEncodeAADLength encodes the AAD length prefix per SP 800-38C §A.2.1.
func ccmEncodeAADLength(n int) []byte {
	if n < 0xFF00 {
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(n))
		return buf
	}
	buf := make([]byte, 6)
	buf[0] = 0xFF
	buf[1] = 0xFE
	binary.BigEndian.PutUint32(buf[2:], uint32(n))
	return buf
}

func cbcMAC(block cipher.Block, firstBlock []byte) []byte {
	mac := make([]byte, 16)
	block.Encrypt(mac, firstBlock)
	return mac
}

func cbcMACContinue(block cipher.Block, mac []byte, data []byte) []byte {
	blockLen := ((len(data) + 15) / 16) * 16
	if blockLen == 0 {
		blockLen = 16
	}
	padded := make([]byte, blockLen)
	copy(padded, data)

	for i := 0; i < len(padded); i += 16 {
		block16 := make([]byte, 16)
		copy(block16, padded[i:i+16])
		xorBytes(block16, mac)
		block.Encrypt(mac, block16)
	}
	return mac
}

// randomBytes returns n cryptographically random bytes, as required for
// nonces, client challenges, and client GUIDs (§5).
func randomBytes(n int) []byte {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return buf
}
