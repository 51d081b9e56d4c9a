package gsa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/1Password/srp"
)

const (
	// srpClientSecretBytes is the ephemeral private value a_priv's length;
	// 32 random bytes per the protocol (not the teacher's 256-byte idmsa
	// value, which was sized for a different SRP variant).
	srpClientSecretBytes  = 32
	srpDerivedPasswordLen = 32
)

// srpSession is the transient per-login SRP-6a state: ephemeral keypair,
// group parameters, and the shared key once derived. Discarded when login
// completes or fails.
type srpSession struct {
	group srp.Group
	n, g  *big.Int
	a     *big.Int
	A     *big.Int

	serverB []byte
	salt    []byte
	k       string // shared key K, hex
}

func newSRPSession() (*srpSession, error) {
	group := srp.KnownGroups[srp.RFC5054Group2048]
	n := group.N()
	g := group.Generator()

	aBytes := make([]byte, srpClientSecretBytes)
	if _, err := rand.Read(aBytes); err != nil {
		return nil, fmt.Errorf("gsa: generate ephemeral key: %w", err)
	}
	a := new(big.Int).SetBytes(aBytes)
	A := new(big.Int).Exp(g, a, n)

	return &srpSession{group: group, n: n, g: g, a: a, A: A}, nil
}

// preparePassword implements the s2k/s2k_fo pre-hash: SHA-256(password), or
// for s2k_fo the lowercase hex encoding of that digest, taken as bytes.
func preparePassword(password, protocol string) ([]byte, error) {
	digest := sha256.Sum256([]byte(password))
	switch protocol {
	case "s2k":
		return digest[:], nil
	case "s2k_fo":
		return []byte(hex.EncodeToString(digest[:])), nil
	default:
		return nil, fmt.Errorf("gsa: unsupported SRP protocol %q", protocol)
	}
}

// proof computes M1 (sent to the server) and M2 (the expected server proof)
// given the INIT response's salt/iterations/serverB and the derived
// password, following the same padded-hash construction GSA expects.
func (s *srpSession) proof(username string, derivedPassword []byte) (m1Hex, m2Hex string, err error) {
	bHex := hex.EncodeToString(s.serverB)
	saltHex := hex.EncodeToString(s.salt)
	aHex := numToHex(s.A)
	derivedPasswordHex := hex.EncodeToString(derivedPassword)

	x, err := calcXHex(derivedPasswordHex, saltHex)
	if err != nil {
		return "", "", err
	}
	k, err := calcK(s.n, s.g)
	if err != nil {
		return "", "", err
	}
	u, err := calcU(s.n, aHex, bHex)
	if err != nil {
		return "", "", err
	}
	if u.Sign() == 0 {
		return "", "", fmt.Errorf("gsa: invalid SRP scrambling parameter")
	}

	B := new(big.Int).SetBytes(s.serverB)
	gx := new(big.Int).Exp(s.g, x, s.n)
	kgx := new(big.Int).Mul(k, gx)
	kgx.Mod(kgx, s.n)
	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, s.n)
	if base.Sign() < 0 {
		base.Add(base, s.n)
	}
	exp := new(big.Int).Add(s.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, s.n)

	kHex, err := shaHex(numToHex(S))
	if err != nil {
		return "", "", err
	}
	s.k = kHex

	m1, err := calcM(s.n, s.g, username, saltHex, aHex, bHex, kHex)
	if err != nil {
		return "", "", err
	}
	m2, err := calcHAMK(aHex, m1, kHex)
	if err != nil {
		return "", "", err
	}
	return m1, m2, nil
}

// sharedKey returns the raw bytes of K, used to derive the SPD AES key/iv.
func (s *srpSession) sharedKey() ([]byte, error) {
	return hex.DecodeString(s.k)
}

func calcXHex(derivedPasswordHex, saltHex string) (*big.Int, error) {
	if _, err := hex.DecodeString(derivedPasswordHex); err != nil {
		return nil, fmt.Errorf("gsa: invalid derived password hex: %w", err)
	}
	if _, err := hex.DecodeString(saltHex); err != nil {
		return nil, fmt.Errorf("gsa: invalid salt hex: %w", err)
	}

	inner, err := shaHex("3a" + derivedPasswordHex)
	if err != nil {
		return nil, err
	}
	outer, err := shaHex(saltHex + inner)
	if err != nil {
		return nil, err
	}

	x := new(big.Int)
	if _, ok := x.SetString(outer, 16); !ok {
		return nil, fmt.Errorf("gsa: failed to parse x value")
	}
	return x, nil
}

func calcK(n, g *big.Int) (*big.Int, error) {
	return hashWithPadding(n, numToHex(n), numToHex(g))
}

func calcU(n *big.Int, aHex, bHex string) (*big.Int, error) {
	return hashWithPadding(n, aHex, bHex)
}

func calcM(n, g *big.Int, username, saltHex, aHex, bHex, kHex string) (string, error) {
	hn, err := hashWithPadding(n, numToHex(n))
	if err != nil {
		return "", err
	}
	hg, err := hashWithPadding(n, numToHex(g))
	if err != nil {
		return "", err
	}
	hxor := new(big.Int).Xor(hn, hg)

	input := numToHex(hxor) + shaStringHex(username) + saltHex + aHex + bHex + kHex
	raw, err := hex.DecodeString(input)
	if err != nil {
		return "", fmt.Errorf("gsa: failed to decode M input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func calcHAMK(aHex, mHex, kHex string) (string, error) {
	raw, err := hex.DecodeString(aHex + mHex + kHex)
	if err != nil {
		return "", fmt.Errorf("gsa: failed to decode H_AMK input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return numToHex(new(big.Int).SetBytes(sum[:])), nil
}

func hashWithPadding(n *big.Int, values ...string) (*big.Int, error) {
	nHexLen := len(fmt.Sprintf("%x", n))
	nLen := 2 * (((nHexLen * 4) + 7) >> 3)

	var input strings.Builder
	for _, value := range values {
		if value == "" {
			continue
		}
		hexValue := strings.ToLower(value)
		if len(hexValue) > nLen {
			return nil, fmt.Errorf("gsa: bit width mismatch for value")
		}
		input.WriteString(strings.Repeat("0", nLen-len(hexValue)))
		input.WriteString(hexValue)
	}

	digestHex, err := shaHex(input.String())
	if err != nil {
		return nil, err
	}

	result := new(big.Int)
	if _, ok := result.SetString(digestHex, 16); !ok {
		return nil, fmt.Errorf("gsa: failed to parse hash result")
	}
	result.Mod(result, n)
	return result, nil
}

func shaHex(hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil {
		return "", fmt.Errorf("gsa: invalid hex input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func shaStringHex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func numToHex(number *big.Int) string {
	hexValue := strings.ToLower(number.Text(16))
	if len(hexValue)%2 == 1 {
		hexValue = "0" + hexValue
	}
	return hexValue
}
