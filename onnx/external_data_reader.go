package onnx

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// ExternalData describes where the data of a tensor stored outside the model file is: ONNX
// "external_data" entries.
type ExternalData struct {
	// Location of the file, relative to the model directory.
	Location string
	Offset   int64

	// Length in bytes. If 0, it is taken from the tensor's element type and dimensions.
	Length int64
}

// ExternalDataReader manages memory-mapped external data files for loading tensor data.
// It caches mmap regions by file path since multiple tensors often share the same external file.
//
// It is safe for concurrent use.
type ExternalDataReader struct {
	baseDir  string
	mappings map[string]*mmap.ReaderAt
	mu       sync.Mutex
}

// NewExternalDataReader creates a reader for the given model directory.
// baseDir is the directory containing the ONNX model file, used to resolve external data paths.
func NewExternalDataReader(baseDir string) *ExternalDataReader {
	return &ExternalDataReader{
		baseDir:  baseDir,
		mappings: make(map[string]*mmap.ReaderAt),
	}
}

// getOrCreateMapping returns the mmap region for the given file path, creating it if necessary.
func (r *ExternalDataReader) getOrCreateMapping(location string) (*mmap.ReaderAt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mappings == nil {
		return nil, errors.New("ExternalDataReader used after Close")
	}
	if reader, ok := r.mappings[location]; ok {
		return reader, nil
	}
	externalPath := filepath.Join(r.baseDir, location)
	reader, err := mmap.Open(externalPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap external data file %q", externalPath)
	}
	r.mappings[location] = reader
	return reader, nil
}

// Load returns a copy of the tensor with its external data read into RawData.
// Tensors without external data are returned as is.
func (r *ExternalDataReader) Load(t *Tensor) (*Tensor, error) {
	if t == nil || t.External == nil {
		return t, nil
	}
	if r.baseDir == "" {
		return nil, errors.New("base directory is required for reading external data")
	}
	length, err := externalLength(t)
	if err != nil {
		return nil, err
	}
	loaded := *t
	loaded.RawData = make([]byte, length)
	if length == 0 {
		return &loaded, nil
	}
	reader, err := r.getOrCreateMapping(t.External.Location)
	if err != nil {
		return nil, err
	}
	n, err := reader.ReadAt(loaded.RawData, t.External.Offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read %d bytes at offset %d from external data file %q",
			length, t.External.Offset, t.External.Location)
	}
	if int64(n) != length {
		return nil, errors.Errorf("read %d bytes but expected %d from external data file %q",
			n, length, t.External.Location)
	}
	return &loaded, nil
}

// Close unmaps all memory regions and releases resources.
// After Close is called, the reader should not be used.
func (r *ExternalDataReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, reader := range r.mappings {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close mmap for %q", path)
		}
	}
	r.mappings = nil
	return firstErr
}

// externalLength returns the number of bytes of the external data of t, checking it against its
// element type and dimensions.
func externalLength(t *Tensor) (int64, error) {
	elemSize := elementByteSize(t.ElemType)
	if elemSize == 0 {
		return 0, UnsupportedInputErrorf("tensor %q: external data of element type %s not supported", t.Name, t.ElemType)
	}
	expected := int64(t.Size()) * int64(elemSize)
	if t.External.Length > 0 && t.External.Length != expected {
		return 0, errors.Errorf("tensor %q: external data length %d doesn't match %d elements of %s",
			t.Name, t.External.Length, t.Size(), t.ElemType)
	}
	return expected, nil
}

// elementByteSize returns the size of one element in the little-endian raw encoding, or 0 for types
// that have no fixed size.
func elementByteSize(elemType ElementType) int {
	switch elemType {
	case Uint8, Int8, Bool:
		return 1
	case Uint16, Int16, Float16, BFloat16:
		return 2
	case Uint32, Int32, Float:
		return 4
	case Uint64, Int64, Double, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// readExternalDataDirect reads tensor data from an external file without mmap.
// It is used by LoadDirect, when mapping files is not possible.
func readExternalDataDirect(baseDir string, info *ExternalData, dst []byte) error {
	externalPath := filepath.Join(baseDir, info.Location)
	file, err := os.Open(externalPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open external data file %q", externalPath)
	}
	defer file.Close()
	if info.Offset > 0 {
		if _, err = file.Seek(info.Offset, io.SeekStart); err != nil {
			return errors.Wrapf(err, "failed to seek to offset %d in external data file %q", info.Offset, externalPath)
		}
	}
	n, err := io.ReadFull(file, dst)
	if err != nil {
		return errors.Wrapf(err, "failed to read %d bytes from external data file %q (read %d)", len(dst), externalPath, n)
	}
	return nil
}

// LoadDirect is like ExternalDataReader.Load, but reads the file with plain file reads instead of mmap.
func LoadDirect(baseDir string, t *Tensor) (*Tensor, error) {
	if t == nil || t.External == nil {
		return t, nil
	}
	if baseDir == "" {
		return nil, errors.New("base directory is required for reading external data")
	}
	length, err := externalLength(t)
	if err != nil {
		return nil, err
	}
	loaded := *t
	loaded.RawData = make([]byte, length)
	if length > 0 {
		if err := readExternalDataDirect(baseDir, t.External, loaded.RawData); err != nil {
			return nil, err
		}
	}
	return &loaded, nil
}
