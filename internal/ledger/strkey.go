package ledger

import (
	"encoding/base32"
	"errors"
	"fmt"
)

// Native address syntax: a 56-character base32 token over a one-byte version
// tag, the 32-byte ed25519 key and a CRC16 checksum. Addresses start with
// 'G', signing seeds with 'S'. The resolver relies on IsAddress as the
// deterministic classification rule: anything that decodes as an address is
// treated as one, never as a handle.

const (
	versionAddress byte = 6 << 3  // 'G'
	versionSeed    byte = 18 << 3 // 'S'

	// EncodedLen is the length of every encoded address and seed.
	EncodedLen = 56
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	errBadLength   = errors.New("strkey: wrong length")
	errBadChecksum = errors.New("strkey: checksum mismatch")
	errBadVersion  = errors.New("strkey: wrong version byte")
)

// EncodeAddress encodes a 32-byte public key as a G-prefixed address.
func EncodeAddress(pub []byte) (string, error) {
	return encode(versionAddress, pub)
}

// EncodeSeed encodes 32 bytes of seed material as an S-prefixed signing
// secret.
func EncodeSeed(raw []byte) (string, error) {
	return encode(versionSeed, raw)
}

// DecodeAddress returns the public key bytes of a G-prefixed address.
func DecodeAddress(s string) ([]byte, error) {
	return decode(versionAddress, s)
}

// DecodeSeed returns the seed bytes of an S-prefixed signing secret.
func DecodeSeed(s string) ([]byte, error) {
	return decode(versionSeed, s)
}

// IsAddress reports whether s is a syntactically valid native address,
// checksum included.
func IsAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

func encode(version byte, payload []byte) (string, error) {
	if len(payload) != 32 {
		return "", fmt.Errorf("strkey: payload must be 32 bytes, got %d", len(payload))
	}
	raw := make([]byte, 0, 35)
	raw = append(raw, version)
	raw = append(raw, payload...)
	crc := checksum(raw)
	raw = append(raw, byte(crc&0xff), byte(crc>>8))
	return b32.EncodeToString(raw), nil
}

func decode(version byte, s string) ([]byte, error) {
	if len(s) != EncodedLen {
		return nil, errBadLength
	}
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("strkey: %w", err)
	}
	if len(raw) != 35 {
		return nil, errBadLength
	}
	body, tail := raw[:33], raw[33:]
	if crc := checksum(body); tail[0] != byte(crc&0xff) || tail[1] != byte(crc>>8) {
		return nil, errBadChecksum
	}
	if body[0] != version {
		return nil, errBadVersion
	}
	out := make([]byte, 32)
	copy(out, body[1:])
	return out, nil
}

// checksum is CRC16-XMODEM (poly 0x1021, zero init), the checksum the network
// uses for its address encoding.
func checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
