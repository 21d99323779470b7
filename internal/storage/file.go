package storage

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"markovbrain/internal/model"
)

const gzipSuffix = ".gz"

// WritePopulationFile writes snapshot as versioned JSON.
func WritePopulationFile(path string, snapshot model.PopulationSnapshot) error {
	data, err := EncodePopulation(snapshot)
	if err != nil {
		return fmt.Errorf("encode population: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPopulationFile reads a file written by WritePopulationFile, gunzipping
// it first when the name ends in .gz.
func ReadPopulationFile(path string) (model.PopulationSnapshot, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	snapshot, err := DecodePopulation(data)
	if err != nil {
		return model.PopulationSnapshot{}, fmt.Errorf("decode population %s: %w", path, err)
	}
	return snapshot, nil
}

func readMaybeCompressed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, gzipSuffix) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// CompressFile gzips path into path.gz and removes the original. It returns
// the compressed file's path.
func CompressFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	outPath := path + gzipSuffix
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	_ = in.Close()
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return outPath, nil
}

// DecompressFile writes the contents of a .gz file to a new temporary file
// and returns its path. The caller removes it.
func DecompressFile(path string) (string, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "markovbrain-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
