package gsa

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"testing"
)

func TestPreparePassword(t *testing.T) {
	digest, err := preparePassword("hunter2", "s2k")
	if err != nil {
		t.Fatalf("s2k: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("s2k: expected 32-byte digest, got %d", len(digest))
	}

	digestFO, err := preparePassword("hunter2", "s2k_fo")
	if err != nil {
		t.Fatalf("s2k_fo: %v", err)
	}
	if len(digestFO) != 64 {
		t.Fatalf("s2k_fo: expected 64-char hex digest, got %d bytes", len(digestFO))
	}
	if _, err := hex.DecodeString(string(digestFO)); err != nil {
		t.Fatalf("s2k_fo digest is not valid hex: %v", err)
	}

	if _, err := preparePassword("hunter2", "unknown"); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestNumToHexEvenLength(t *testing.T) {
	// A value whose natural hex representation has an odd digit count must
	// come back zero-padded to an even length.
	n := big.NewInt(0xABC)
	got := numToHex(n)
	if len(got)%2 != 0 {
		t.Fatalf("numToHex(%x) = %q, expected even-length hex", n, got)
	}
	if got != "0abc" {
		t.Fatalf("numToHex(%x) = %q, want %q", n, got, "0abc")
	}
}

func TestHashWithPaddingRejectsOversizedValue(t *testing.T) {
	n := big.NewInt(0xFF) // 1-byte modulus, 2 hex chars
	_, err := hashWithPadding(n, "aabbccdd")
	if err == nil {
		t.Fatal("expected bit-width mismatch error for an oversized value")
	}
}

func TestHashWithPaddingSkipsEmptyValues(t *testing.T) {
	n := big.NewInt(0xFFFF)
	withEmpty, err := hashWithPadding(n, "ab", "", "cd")
	if err != nil {
		t.Fatalf("hashWithPadding with empty value: %v", err)
	}
	withoutEmpty, err := hashWithPadding(n, "ab", "cd")
	if err != nil {
		t.Fatalf("hashWithPadding without empty value: %v", err)
	}
	if withEmpty.Cmp(withoutEmpty) != 0 {
		t.Fatal("empty string arguments should not affect the padded hash input")
	}
}

// TestSRPSessionDerivesServerConsistentSharedKey plays the server side of
// SRP-6a by hand (verifier v, random b, public B) and checks that the
// client session's derived premaster secret S matches the one the server
// would independently compute, the same cross-check a real SRP test suite
// performs without a live server.
func TestSRPSessionDerivesServerConsistentSharedKey(t *testing.T) {
	session, err := newSRPSession()
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}

	const username = "user@example.com"
	derivedPassword, err := preparePassword("correct horse battery staple", "s2k")
	if err != nil {
		t.Fatalf("preparePassword: %v", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	session.salt = salt

	saltHex := hex.EncodeToString(salt)
	derivedPasswordHex := hex.EncodeToString(derivedPassword)
	x, err := calcXHex(derivedPasswordHex, saltHex)
	if err != nil {
		t.Fatalf("calcXHex: %v", err)
	}

	// Server: verifier v = g^x mod n, ephemeral b, public B = (k*v + g^b) mod n.
	k, err := calcK(session.n, session.g)
	if err != nil {
		t.Fatalf("calcK: %v", err)
	}
	v := new(big.Int).Exp(session.g, x, session.n)

	bBytes := make([]byte, 64)
	if _, err := rand.Read(bBytes); err != nil {
		t.Fatalf("generate b: %v", err)
	}
	b := new(big.Int).SetBytes(bBytes)

	gb := new(big.Int).Exp(session.g, b, session.n)
	kv := new(big.Int).Mul(k, v)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, session.n)
	session.serverB = B.Bytes()

	m1Hex, m2Hex, err := session.proof(username, derivedPassword)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if m1Hex == "" || m2Hex == "" {
		t.Fatal("expected non-empty M1/M2")
	}

	clientK, err := session.sharedKey()
	if err != nil {
		t.Fatalf("sharedKey: %v", err)
	}

	// Server independently computes S = (A * v^u)^b mod n.
	aHex := numToHex(session.A)
	bHex := numToHex(B)
	u, err := calcU(session.n, aHex, bHex)
	if err != nil {
		t.Fatalf("calcU: %v", err)
	}
	vu := new(big.Int).Exp(v, u, session.n)
	avu := new(big.Int).Mul(session.A, vu)
	avu.Mod(avu, session.n)
	serverS := new(big.Int).Exp(avu, b, session.n)
	serverKHex, err := shaHex(numToHex(serverS))
	if err != nil {
		t.Fatalf("shaHex(serverS): %v", err)
	}

	if hex.EncodeToString(clientK) != serverKHex {
		t.Fatalf("client/server shared key mismatch:\nclient=%s\nserver=%s", hex.EncodeToString(clientK), serverKHex)
	}
}
