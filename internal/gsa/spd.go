package gsa

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/shaw-baobao/go-anisette/internal/plist"
)

// deriveSPDKeys derives the AES-256-CBC key/iv pair from the SRP shared key
// K, following the documented HMAC-SHA256 construction.
func deriveSPDKeys(k []byte) (key, iv []byte) {
	keyMAC := hmac.New(sha256.New, k)
	keyMAC.Write([]byte("extra data key:"))
	key = keyMAC.Sum(nil)

	ivMAC := hmac.New(sha256.New, k)
	ivMAC.Write([]byte("extra data iv:"))
	iv = ivMAC.Sum(nil)[:16]
	return key, iv
}

// decryptSPD decrypts the base64-decoded `spd` blob into a plist
// dictionary, using AES-256-CBC with PKCS#7 padding.
func decryptSPD(blob, k []byte) (plist.Dict, error) {
	key, iv := deriveSPDKeys(k)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("gsa: spd cipher: %w", err)
	}
	if len(blob) == 0 || len(blob)%aes.BlockSize != 0 {
		return nil, &ErrParse{Reason: "spd blob is not a multiple of the AES block size"}
	}

	plaintext := make([]byte, len(blob))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, blob)

	plaintext, err = unpadPKCS7(plaintext)
	if err != nil {
		return nil, err
	}

	dict, err := plist.Decode(plaintext)
	if err != nil {
		return nil, fmt.Errorf("gsa: decode spd plist: %w", err)
	}
	return dict, nil
}

// encryptSPD is the inverse of decryptSPD, used only by round-trip tests.
func encryptSPD(plaintext, k []byte) ([]byte, error) {
	key, iv := deriveSPDKeys(k)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := padPKCS7(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &ErrParse{Reason: "empty plaintext"}
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, &ErrParse{Reason: "invalid pkcs7 padding"}
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, &ErrParse{Reason: "invalid pkcs7 padding"}
		}
	}
	return data[:len(data)-padLen], nil
}
