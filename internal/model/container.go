package model

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// WriteContainer packages a manifest and its payload as a zip container.
func WriteContainer(w io.Writer, m Manifest, payload []byte) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{ManifestName, raw},
		{m.payloadName(), payload},
	} {
		f, err := zw.Create(entry.name)
		if err != nil {
			return fmt.Errorf("container: %w", err)
		}
		if _, err := f.Write(entry.data); err != nil {
			return fmt.Errorf("container: %w", err)
		}
	}
	return zw.Close()
}

// SaveDense writes a dense network and its manifest to path.
func SaveDense(path string, m Manifest, n *DenseNetwork) error {
	if err := n.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	m.FormatVersion = FormatVersion
	m.Backend = BackendDense
	m.InputWidth = n.InputWidth()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteContainer(f, m, payload); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
