// Package crypto is the narrow collaborator the inner handshake and
// relay treat as a black box: given a connection's IV and the
// listener's pre-shared key it derives a 64-byte key, and from that key
// it builds the two independent per-direction RC4 keystreams that run
// for the connection's entire lifetime, never re-initialized once the
// tunnel is established.
package crypto

import (
	"crypto/md5"
	"crypto/rc4"
	"fmt"
)

// MaxPSKLen truncates an over-long pre-shared key before it enters the
// MD5 chain: every PSK byte past the 256th is never hashed.
const MaxPSKLen = 256

// IVSize is the length of the per-connection IV carried in cleartext at
// the tail of the inner request frame.
const IVSize = 236

// KeySize is the length of the derived key: four chained 16-byte MD5
// digests.
const KeySize = md5.Size * 4

// DeriveKey runs the 4-level chained MD5 derivation:
//
//	k[0:16]  = MD5(iv || psk)
//	k[16:32] = MD5(k[0:16])
//	k[32:48] = MD5(k[0:32])
//	k[48:64] = MD5(k[0:48])
//
// psk is truncated to MaxPSKLen bytes before hashing.
func DeriveKey(iv [IVSize]byte, psk []byte) [KeySize]byte {
	if len(psk) > MaxPSKLen {
		psk = psk[:MaxPSKLen]
	}

	var key [KeySize]byte

	seed := make([]byte, 0, IVSize+len(psk))
	seed = append(seed, iv[:]...)
	seed = append(seed, psk...)
	k0 := md5.Sum(seed)
	copy(key[0:16], k0[:])

	k1 := md5.Sum(key[0:16])
	copy(key[16:32], k1[:])

	k2 := md5.Sum(key[0:32])
	copy(key[32:48], k2[:])

	k3 := md5.Sum(key[0:48])
	copy(key[48:64], k3[:])

	return key
}

// DirectionCiphers splits the derived key into two independent RC4
// keystreams: the first half keys the client-to-server stream, the
// second half the server-to-client stream.
// Each returned cipher.Stream runs continuously across every byte sent
// in that direction, handshake and relay alike — callers must construct
// it once per connection and never replace it.
func DirectionCiphers(key [KeySize]byte) (clientToServer, serverToClient *rc4.Cipher, err error) {
	const half = KeySize / 2

	clientToServer, err = rc4.NewCipher(key[:half])
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: client-to-server rc4 key: %w", err)
	}
	serverToClient, err = rc4.NewCipher(key[half:])
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: server-to-client rc4 key: %w", err)
	}
	return clientToServer, serverToClient, nil
}
