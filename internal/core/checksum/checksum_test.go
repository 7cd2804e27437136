package checksum

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/testutil"
)

func TestCalculate_KnownVectors(t *testing.T) {
	calc := New()
	ctx := context.Background()

	tests := []struct {
		input string
		algo  Algorithm
		want  string
	}{
		{"hello world", MD5, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{"hello world", SHA256, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"", MD5, "d41d8cd98f00b204e9800998ecf8427e"},
		{"", SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}

	for _, tt := range tests {
		got, err := calc.Calculate(ctx, strings.NewReader(tt.input), tt.algo)
		if err != nil {
			t.Fatalf("Calculate(%q, %s) failed: %v", tt.input, tt.algo, err)
		}
		if got != tt.want {
			t.Errorf("Calculate(%q, %s) = %s, want %s", tt.input, tt.algo, got, tt.want)
		}
	}
}

func TestCalculate_MaxSize(t *testing.T) {
	calc := &Calculator{MaxSize: 10}

	_, err := calc.Calculate(context.Background(), strings.NewReader("this is longer than ten bytes"), SHA256)
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("Expected 'exceeds maximum' error, got: %v", err)
	}
}

func TestCalculate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Calculate(ctx, strings.NewReader("data"), SHA256)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestCalculate_UnsupportedAlgorithm(t *testing.T) {
	_, err := New().Calculate(context.Background(), strings.NewReader("x"), Algorithm("sha1"))
	if err == nil || !strings.Contains(err.Error(), "unsupported algorithm") {
		t.Errorf("Expected 'unsupported algorithm' error, got: %v", err)
	}
	if IsSupported(Algorithm("sha1")) || !IsSupported(SHA256) || !IsSupported(MD5) {
		t.Error("IsSupported disagrees with Calculate")
	}
}

func TestCalculate_Unlimited(t *testing.T) {
	calc := &Calculator{}
	got, err := calc.Calculate(context.Background(), strings.NewReader(strings.Repeat("x", 1<<16)), SHA256)
	if err != nil || len(got) != 64 {
		t.Errorf("Calculate without a ceiling = %q, %v", got, err)
	}
}

func TestCalculateFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	path := testutil.CreateTestFile(t, dir, "out.pak", []byte("hello world"))

	got, err := New().CalculateFile(context.Background(), path, MD5)
	if err != nil {
		t.Fatalf("CalculateFile failed: %v", err)
	}
	if got != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("Unexpected checksum %s", got)
	}

	if _, err := New().CalculateFile(context.Background(), filepath.Join(dir, "missing"), MD5); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFingerprint(t *testing.T) {
	calc := New()
	ctx := context.Background()

	docs := []domain.ExtractedDocument{
		{ModID: "mod_a", Priority: 2, Entry: "a.xml", Content: "<database/>"},
		{ModID: "mod_b", Priority: 1, Entry: "b.xml", Content: "<database/>"},
	}

	first, err := calc.Fingerprint(ctx, docs, SHA256)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	again, _ := calc.Fingerprint(ctx, docs, SHA256)
	if first != again {
		t.Errorf("Fingerprint not stable: %s != %s", first, again)
	}

	reprioritized := append([]domain.ExtractedDocument(nil), docs...)
	reprioritized[1].Priority = 3
	changed, _ := calc.Fingerprint(ctx, reprioritized, SHA256)
	if changed == first {
		t.Error("Expected priority change to alter the fingerprint")
	}

	// field boundaries must not collide
	x, _ := calc.Fingerprint(ctx, []domain.ExtractedDocument{{ModID: "ab", Entry: "c"}}, SHA256)
	y, _ := calc.Fingerprint(ctx, []domain.ExtractedDocument{{ModID: "a", Entry: "bc"}}, SHA256)
	if x == y {
		t.Error("Expected distinct fingerprints for shifted field boundaries")
	}
}
