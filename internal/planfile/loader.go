package planfile

import (
	"fmt"
	"io"
	"os"
)

// LoadFile reads and parses a definition file, picking the format by extension.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch plans file %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, FormatFor(path), path)
}

// Parse decodes a definition document from r.
func Parse(r io.Reader, format Format, source string) (*Document, error) {
	switch format {
	case FormatYAML:
		return ParseYAML(r, source)
	case FormatXML:
		return ParseXML(r, source)
	default:
		return nil, fmt.Errorf("unsupported fetch plans format %v", format)
	}
}
