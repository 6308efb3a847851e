package seal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// ErrArchive is returned when an archive is unreadable or does not hold
// exactly one entry.
var ErrArchive = errors.New("seal: archive must hold exactly one entry")

// Pack stores data as the only entry of a deflated zip archive.
func Pack(entryName string, data []byte, modified time.Time) ([]byte, error) {
	if entryName == "" {
		return nil, fmt.Errorf("seal: pack: empty entry name")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return nil, fmt.Errorf("seal: pack: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("seal: pack: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("seal: pack: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack returns the name and contents of the single entry of an archive.
func Unpack(archive []byte) (string, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if len(zr.File) != 1 {
		return "", nil, fmt.Errorf("%w: found %d", ErrArchive, len(zr.File))
	}

	f := zr.File[0]
	rc, err := f.Open()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return f.Name, data, nil
}

// Digest returns the lowercase hex SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
