package crypto

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"testing"
)

func randomIV(t *testing.T) [IVSize]byte {
	t.Helper()
	var iv [IVSize]byte
	if _, err := rand.Read(iv[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return iv
}

func TestDeriveKeyDeterministic(t *testing.T) {
	iv := randomIV(t)
	psk := []byte("correct horse battery staple")

	k1 := DeriveKey(iv, psk)
	k2 := DeriveKey(iv, psk)
	if k1 != k2 {
		t.Fatalf("DeriveKey not deterministic for identical inputs")
	}
}

func TestDeriveKeyChaining(t *testing.T) {
	iv := randomIV(t)
	psk := []byte("psk")
	key := DeriveKey(iv, psk)

	// Each 16-byte segment after the first should be MD5 of the
	// concatenation of all prior segments.
	seed := append(append([]byte{}, iv[:]...), psk...)
	k0 := md5.Sum(seed)
	if !bytes.Equal(key[0:16], k0[:]) {
		t.Fatalf("k[0:16] mismatch")
	}
	k1 := md5.Sum(key[0:16])
	if !bytes.Equal(key[16:32], k1[:]) {
		t.Fatalf("k[16:32] mismatch")
	}
	k2 := md5.Sum(key[0:32])
	if !bytes.Equal(key[32:48], k2[:]) {
		t.Fatalf("k[32:48] mismatch")
	}
	k3 := md5.Sum(key[0:48])
	if !bytes.Equal(key[48:64], k3[:]) {
		t.Fatalf("k[48:64] mismatch")
	}
}

func TestDeriveKeyTruncatesLongPSK(t *testing.T) {
	iv := randomIV(t)

	exact := bytes.Repeat([]byte{0x41}, MaxPSKLen)
	over := append(append([]byte{}, exact...), 0x42, 0x43, 0x44)

	if DeriveKey(iv, exact) != DeriveKey(iv, over) {
		t.Fatalf("PSK bytes beyond %d should not affect the derived key", MaxPSKLen)
	}
}

func TestDirectionCiphersRoundTrip(t *testing.T) {
	iv := randomIV(t)
	key := DeriveKey(iv, []byte("shared-secret"))

	encC2S, _, err := DirectionCiphers(key)
	if err != nil {
		t.Fatalf("DirectionCiphers: %v", err)
	}
	decC2S, decS2C, err := DirectionCiphers(key)
	if err != nil {
		t.Fatalf("DirectionCiphers: %v", err)
	}

	plain := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to fill more than one rc4 block")
	cipherText := make([]byte, len(plain))
	encC2S.XORKeyStream(cipherText, plain)

	recovered := make([]byte, len(cipherText))
	decC2S.XORKeyStream(recovered, cipherText)
	if !bytes.Equal(plain, recovered) {
		t.Fatalf("client-to-server round trip mismatch")
	}

	// The two directions must be independent: encrypting with one and
	// decrypting with the other's stream must not recover the plaintext.
	wrong := make([]byte, len(cipherText))
	decS2C.XORKeyStream(wrong, cipherText)
	if bytes.Equal(plain, wrong) {
		t.Fatalf("server-to-client stream should not decrypt client-to-server ciphertext")
	}
}

func TestDirectionCiphersContinuous(t *testing.T) {
	// cipher_state must never be re-initialized mid-connection: feeding
	// a stream in two calls must equal feeding it in one.
	iv := randomIV(t)
	key := DeriveKey(iv, []byte("psk"))

	whole, _, err := DirectionCiphers(key)
	if err != nil {
		t.Fatalf("DirectionCiphers: %v", err)
	}
	split, _, err := DirectionCiphers(key)
	if err != nil {
		t.Fatalf("DirectionCiphers: %v", err)
	}

	plain := bytes.Repeat([]byte{0xAB}, 300)
	wantCipher := make([]byte, len(plain))
	whole.XORKeyStream(wantCipher, plain)

	gotCipher := make([]byte, len(plain))
	split.XORKeyStream(gotCipher[:100], plain[:100])
	split.XORKeyStream(gotCipher[100:], plain[100:])

	if !bytes.Equal(wantCipher, gotCipher) {
		t.Fatalf("keystream position not preserved across separate XORKeyStream calls")
	}
}
