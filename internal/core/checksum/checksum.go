// Package checksum fingerprints merge inputs and the generated archive.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// Algorithm names a hash function
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256" // recorded in run history
)

var constructors = map[Algorithm]func() hash.Hash{
	MD5:    md5.New,
	SHA256: sha256.New,
}

// IsSupported reports whether algo can be computed
func IsSupported(algo Algorithm) bool {
	_, ok := constructors[algo]
	return ok
}

// Calculator hashes streams with an optional size ceiling
type Calculator struct {
	// MaxSize rejects larger inputs; zero means unlimited
	MaxSize int64
}

// New returns a calculator that refuses inputs over 256MB
func New() *Calculator {
	return &Calculator{MaxSize: 256 << 20}
}

func hasher(algo Algorithm) (hash.Hash, error) {
	ctor, ok := constructors[algo]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
	return ctor(), nil
}

// Calculate returns the hex digest of everything read from r
func (c *Calculator) Calculate(ctx context.Context, r io.Reader, algo Algorithm) (string, error) {
	h, err := hasher(algo)
	if err != nil {
		return "", err
	}

	src := &ctxReader{ctx: ctx, r: r}
	var n int64
	if c.MaxSize > 0 {
		n, err = io.Copy(h, io.LimitReader(src, c.MaxSize+1))
	} else {
		n, err = io.Copy(h, src)
	}
	if err != nil {
		return "", err
	}
	if c.MaxSize > 0 && n > c.MaxSize {
		return "", fmt.Errorf("input exceeds maximum (%d bytes)", c.MaxSize)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateFile hashes the file at path, typically the output archive
func (c *Calculator) CalculateFile(ctx context.Context, path string, algo Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.Calculate(ctx, f, algo)
}

// Fingerprint hashes the identity and content of every extracted document in
// order. Two runs over unchanged packages yield the same fingerprint.
func (c *Calculator) Fingerprint(ctx context.Context, docs []domain.ExtractedDocument, algo Algorithm) (string, error) {
	h, err := hasher(algo)
	if err != nil {
		return "", err
	}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// 長度前綴避免欄位邊界混淆
		for _, field := range []string{d.ModID, strconv.Itoa(d.Priority), d.Entry, d.Content} {
			fmt.Fprintf(h, "%d:%s", len(field), field)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader fails reads once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := cr.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("read error: %w", err)
	}
	return n, err
}
