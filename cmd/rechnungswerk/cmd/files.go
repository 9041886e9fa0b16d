package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rechnungswerk/einvoice/internal/model"
	xmlparser "github.com/rechnungswerk/einvoice/internal/parser/xml"
	"github.com/rechnungswerk/einvoice/internal/processor"
	"github.com/rechnungswerk/einvoice/internal/zugferd"
)

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		// Check if it's a glob pattern
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("file not found: %s", arg)
		}

		explicit := len(matches) == 1 && matches[0] == arg
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			switch {
			case info.IsDir():
				nested, err := walkDir(match)
				if err != nil {
					return nil, err
				}
				files = append(files, nested...)
			case explicit || isSupportedFile(match):
				files = append(files, match)
			}
		}
	}

	return files, nil
}

func walkDir(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".pdf", ".json", ".txt", ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".gif", ".webp":
		return true
	default:
		return false
	}
}

// readInput reads a file, or stdin for "-"
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// createOutput opens path for writing, or returns stdout for "" and "-"
func createOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// readInvoice loads an invoice from a JSON record, a UBL or CII document
// or a PDF with embedded XML
func readInvoice(ctx context.Context, data []byte) (*model.Invoice, error) {
	switch processor.DetectFormat(data) {
	case processor.FormatJSON:
		var inv model.Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, model.NewParseError(model.FormatJSON, "content", "invalid invoice JSON", err)
		}
		return &inv, nil
	case processor.FormatXML:
		return xmlparser.Parse(ctx, data)
	case processor.FormatPDF:
		xml, err := zugferd.ExtractXML(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return xmlparser.Parse(ctx, xml)
	default:
		return nil, fmt.Errorf("unsupported invoice format")
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
