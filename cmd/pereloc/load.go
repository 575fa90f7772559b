package main

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	pe "github.com/wanglei-coder/pereloc"
)

// loadImage returns a private, writable mapped image for path together with
// a copy of the file's overlay. PE files are laid out at their virtual
// addresses; with --mapped the bytes are used as is and there is no overlay.
func loadImage(path string) (image, overlay []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failure to map %s", path)
	}
	defer m.Unmap()

	if mapped {
		return bytes.Clone(m), nil, nil
	}

	if !filetype.Is(m, "exe") {
		return nil, nil, errors.Errorf("%s is not a PE file (detected %s)", path, getFileType(m))
	}
	if image, err = pe.MapImage(m); err != nil {
		return nil, nil, err
	}
	if overlay, err = pe.Overlay(m); err != nil {
		return nil, nil, err
	}
	return image, bytes.Clone(overlay), nil
}

// storeImage writes image to path in the layout it was loaded from,
// followed by the overlay.
func storeImage(path string, image, overlay []byte) error {
	data := image
	if !mapped {
		var err error
		if data, err = pe.UnmapImage(image); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, overlay...), 0o644)
}

func getFileType(data []byte) string {
	kind, _ := filetype.Match(data)
	if kind == filetype.Unknown {
		return "Data"
	}
	return kind.MIME.Value
}
