package filewarden

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// EncryptedFS wraps a FileSystem with AES-256-GCM so payloads are never
// at rest in plaintext. The quarantine vault uses this when
// FILEWARDEN_ENCRYPT_QUARANTINE is set: isolated malware stays sealed on
// disk and only decrypts through this wrapper.
//
// Each file is sealed as one GCM message (nonce || ciphertext), which
// authenticates the whole payload: a tampered quarantine copy fails to
// open instead of decrypting to garbage. Payload size is bounded by the
// validation size limit, so whole-message sealing is acceptable here.
type EncryptedFS struct {
	fs  FileSystem
	key []byte
}

// NewEncryptedFS creates an encrypting wrapper. The key must be 32 bytes
// (AES-256).
func NewEncryptedFS(fs FileSystem, key []byte) (*EncryptedFS, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (got %d)", len(key))
	}
	k := make([]byte, 32)
	copy(k, key)
	return &EncryptedFS{fs: fs, key: k}, nil
}

// Unwrap returns the underlying FileSystem.
func (e *EncryptedFS) Unwrap() FileSystem {
	return e.fs
}

func (e *EncryptedFS) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Write seals the content and writes nonce||ciphertext to the backend.
func (e *EncryptedFS) Write(ctx context.Context, path string, content io.Reader, opts ...Option) error {
	plaintext, err := io.ReadAll(content)
	if err != nil {
		return &PathError{Op: "write", Path: path, Err: err}
	}

	gcm, err := e.gcm()
	if err != nil {
		return &PathError{Op: "write", Path: path, Err: err}
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return &PathError{Op: "write", Path: path, Err: err}
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return e.fs.Write(ctx, path, bytes.NewReader(sealed), opts...)
}

// ReadAll reads and opens a sealed file. Authentication failure surfaces
// as an error, never as corrupted plaintext.
func (e *EncryptedFS) ReadAll(ctx context.Context, path string) ([]byte, error) {
	sealed, err := e.fs.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, &PathError{Op: "read", Path: path, Err: err}
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, &PathError{Op: "read", Path: path, Err: fmt.Errorf("sealed payload too short")}
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &PathError{Op: "read", Path: path, Err: fmt.Errorf("decrypt: %w", err)}
	}
	return plaintext, nil
}

// Read returns a stream over the decrypted content.
func (e *EncryptedFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	plaintext, err := e.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

// Delete delegates to the underlying filesystem
func (e *EncryptedFS) Delete(ctx context.Context, path string) error {
	return e.fs.Delete(ctx, path)
}

// FileExists delegates to the underlying filesystem
func (e *EncryptedFS) FileExists(ctx context.Context, path string) (bool, error) {
	return e.fs.FileExists(ctx, path)
}

// DirExists delegates to the underlying filesystem
func (e *EncryptedFS) DirExists(ctx context.Context, path string) (bool, error) {
	return e.fs.DirExists(ctx, path)
}

// Stat delegates to the underlying filesystem. Sizes reflect the sealed
// payload, nonce and tag included.
func (e *EncryptedFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return e.fs.Stat(ctx, path)
}

// ListContents delegates to the underlying filesystem
func (e *EncryptedFS) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	return e.fs.ListContents(ctx, path, recursive)
}

// CreateDir delegates to the underlying filesystem
func (e *EncryptedFS) CreateDir(ctx context.Context, path string) error {
	return e.fs.CreateDir(ctx, path)
}

// DeleteDir delegates to the underlying filesystem
func (e *EncryptedFS) DeleteDir(ctx context.Context, path string) error {
	return e.fs.DeleteDir(ctx, path)
}

var (
	_ FileSystem = (*EncryptedFS)(nil)
	_ FileReader = (*EncryptedFS)(nil)
	_ FileWriter = (*EncryptedFS)(nil)
)
