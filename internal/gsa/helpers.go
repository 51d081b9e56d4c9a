package gsa

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"net/http"

	"golang.org/x/crypto/pbkdf2"
)

func newBodyReader(b []byte) io.Reader { return bytes.NewReader(b) }

// pbkdf2Key derives the SRP "derived password" per Apple's s2k/s2k_fo
// protocols: PBKDF2-HMAC-SHA256 over the pre-hashed password.
func pbkdf2Key(preparedPassword, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(preparedPassword, salt, iterations, keyLen, sha256.New)
}

func newPlistRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, newBodyReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/x-xml-plist")
	req.ContentLength = int64(len(body))
	return req, nil
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
