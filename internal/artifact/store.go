package artifact

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// DefaultFileName is the name sealed documents are saved under.
const DefaultFileName = "signed_document.jsonld"

// CompressedExt is appended to the file name of compressed artifacts.
const CompressedExt = ".zst"

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// IsCompressed reports whether data starts with a zstd frame header.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Save writes data to path, zstd compressed when compress is set. The file is
// written to a temporary name first so a failed write never leaves a partial artifact.
func Save(path string, data []byte, compress bool) (string, error) {
	if compress && !strings.HasSuffix(path, CompressedExt) {
		path += CompressedExt
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".credseal-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	var dst io.WriteCloser = tmp
	if compress {
		// level 3 = SpeedDefault
		enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to create encoder: %w", err)
		}
		dst = enc
	}

	if _, err := dst.Write(data); err != nil {
		dst.Close()
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	// closing the encoder flushes the final frame
	if compress {
		if err := dst.Close(); err != nil {
			tmp.Close()
			return "", fmt.Errorf("failed to close encoder: %w", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("original_bytes", len(data)).
		Bool("compressed", compress).
		Msg("Artifact saved")

	return path, nil
}

// Load reads an artifact from path, decompressing zstd content transparently.
func Load(path string) ([]byte, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return Decompress(data)
}

// Decompress returns data unchanged unless it is a zstd stream.
func Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}

	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}
