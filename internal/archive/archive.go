// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package archive decodes the scripts_archive charm option: a base64
// encoded, LZMA compressed tar stream of executable scripts.
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

const (
	// EncodingError is returned when the archive is not valid base64.
	EncodingError = errors.ConstError("invalid archive encoding")

	// FormatError is returned when the decoded archive cannot be
	// decompressed or is not a readable tar stream.
	FormatError = errors.ConstError("invalid archive format")

	// PathTraversalError is returned when an archive entry would resolve
	// outside the scripts root.
	PathTraversalError = errors.ConstError("archive entry escapes the scripts root")
)

// MaxSize bounds the total decompressed size of an archive.
const MaxSize = 64 << 20

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// ScriptSet maps a slash separated path, relative to the scripts root, to
// the content of the script.
type ScriptSet map[string][]byte

// Names returns the sorted paths of the set.
func (s ScriptSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extract decodes blob into a ScriptSet. Nothing is written to disk.
func Extract(blob string) (ScriptSet, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("decoding scripts archive: %v: %w", err, EncodingError)
	}
	r, err := decompressor(data)
	if err != nil {
		return nil, errors.Trace(err)
	}

	scripts := make(ScriptSet)
	var total int64
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading scripts archive: %v: %w", err, FormatError)
		}

		name, err := cleanName(hdr.Name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg, tar.TypeRegA:
		default:
			return nil, fmt.Errorf("entry %q has unsupported type %q: %w", hdr.Name, hdr.Typeflag, FormatError)
		}
		if name == "" {
			return nil, fmt.Errorf("file entry %q has no name: %w", hdr.Name, FormatError)
		}

		total += hdr.Size
		if total > MaxSize {
			return nil, fmt.Errorf("scripts archive larger than %d bytes: %w", MaxSize, FormatError)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading entry %q: %v: %w", hdr.Name, err, FormatError)
		}
		scripts[name] = content
	}
	return scripts, nil
}

func decompressor(data []byte) (io.Reader, error) {
	if bytes.HasPrefix(data, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %v: %w", err, FormatError)
		}
		return &checkedReader{r: r}, nil
	}
	// The legacy header is 13 bytes: properties, little endian dictionary
	// size and uncompressed size. The dictionary is allocated up front so
	// it is bounded before handing the stream to the decoder.
	if len(data) < 13 {
		return nil, fmt.Errorf("lzma stream truncated: %w", FormatError)
	}
	if dictSize := binary.LittleEndian.Uint32(data[1:5]); dictSize > MaxSize {
		return nil, fmt.Errorf("lzma dictionary of %d bytes too large: %w", dictSize, FormatError)
	}
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening lzma stream: %v: %w", err, FormatError)
	}
	return &checkedReader{r: r}, nil
}

// checkedReader tags decompression failures surfacing mid-stream as
// FormatError, so callers cannot mistake them for tar problems.
type checkedReader struct {
	r io.Reader
}

func (c *checkedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("decompressing: %v: %w", err, FormatError)
	}
	return n, err
}

// cleanName normalises an entry name and rejects anything that resolves
// outside the archive root. The root itself is returned as "".
func cleanName(name string) (string, error) {
	if strings.Contains(name, "\\") {
		name = strings.ReplaceAll(name, "\\", "/")
	}
	if path.IsAbs(name) {
		return "", fmt.Errorf("entry %q is absolute: %w", name, PathTraversalError)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("entry %q: %w", name, PathTraversalError)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// Create encodes scripts the way the scripts_archive option expects them:
// a tar stream, xz compressed, base64 encoded. Entries are written in
// sorted order so the output is stable.
func Create(scripts ScriptSet) (string, error) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, name := range scripts.Names() {
		content := scripts[name]
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			return "", errors.Annotatef(err, "writing header for %q", name)
		}
		if _, err := tw.Write(content); err != nil {
			return "", errors.Annotatef(err, "writing %q", name)
		}
	}
	if err := tw.Close(); err != nil {
		return "", errors.Trace(err)
	}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		return "", errors.Trace(err)
	}
	if _, err := io.Copy(xw, &tarBuf); err != nil {
		return "", errors.Trace(err)
	}
	if err := xw.Close(); err != nil {
		return "", errors.Trace(err)
	}
	return base64.StdEncoding.EncodeToString(xzBuf.Bytes()), nil
}
