// Package persist provides codec-based atomic file persistence for
// arbitrary state types.
package persist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// jsonExtension is the file extension for the JSON codec.
const jsonExtension = ".json"

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec.
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact
	// JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// SaveState atomically saves the given state to a file in the specified
// directory: the state is written to a temporary file first and renamed
// into place, so a crash mid-write leaves either the previous file or the
// new one, never a torn mix.
func SaveState(dir, basename string, codec Codec, state any) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(dir, basename+codec.Extension())
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	err = codec.Encode(file, state)
	if err != nil {
		file.Close()
		os.Remove(tmp)

		return fmt.Errorf("encode state: %w", err)
	}

	err = file.Sync()
	if err != nil {
		file.Close()
		os.Remove(tmp)

		return fmt.Errorf("sync state file: %w", err)
	}

	err = file.Close()
	if err != nil {
		os.Remove(tmp)

		return fmt.Errorf("close state file: %w", err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)

		return fmt.Errorf("commit state file: %w", err)
	}

	return nil
}

// LoadState loads state from a file in the specified directory. The state
// parameter must be a pointer to the target struct.
func LoadState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// RemoveState deletes the state file; a missing file is not an error.
func RemoveState(dir, basename string, codec Codec) error {
	path := filepath.Join(dir, basename+codec.Extension())

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}

	return nil
}
