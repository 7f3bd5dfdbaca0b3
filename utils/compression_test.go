package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressTextSmallStaysUncompressed(t *testing.T) {
	payload, algorithm, err := CompressText("short chunk")
	if err != nil {
		t.Fatalf("CompressText: %v", err)
	}
	if algorithm != CompressionNone {
		t.Errorf("algorithm = %s, want none", algorithm)
	}
	if string(payload) != "short chunk" {
		t.Errorf("payload = %q", payload)
	}
}

func TestCompressTextLargeRoundTrip(t *testing.T) {
	text := strings.Repeat("retrieval augmented generation ", 100)

	payload, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText: %v", err)
	}
	if algorithm != CompressionGzip {
		t.Errorf("algorithm = %s, want gzip", algorithm)
	}
	if len(payload) >= len(text) {
		t.Errorf("compressed size %d not smaller than %d", len(payload), len(text))
	}

	restored, err := DecompressText(payload, algorithm)
	if err != nil {
		t.Fatalf("DecompressText: %v", err)
	}
	if restored != text {
		t.Error("round trip mismatch")
	}
}

func TestCompressDataAlgorithms(t *testing.T) {
	data := bytes.Repeat([]byte("abcdef"), 200)

	for _, algorithm := range []CompressionAlgorithm{CompressionNone, CompressionGzip, CompressionZlib} {
		t.Run(string(algorithm), func(t *testing.T) {
			compressed, err := CompressData(data, algorithm)
			if err != nil {
				t.Fatalf("CompressData: %v", err)
			}
			restored, err := DecompressData(compressed, algorithm)
			if err != nil {
				t.Fatalf("DecompressData: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	if _, err := CompressData([]byte("data"), "brotli"); err == nil {
		t.Error("CompressData accepted unknown algorithm")
	}
	if _, err := DecompressData([]byte("data"), "brotli"); err == nil {
		t.Error("DecompressData accepted unknown algorithm")
	}
}
