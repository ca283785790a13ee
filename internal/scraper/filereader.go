package scraper

import (
	"bufio"
	"context"
	"os"
)

// FileReader reads a local newline-delimited proxy list, grounded on
// original_source/app/proxytools/scrappers/filereader.py. It performs
// no network I/O, so it ignores the Session entirely.
type FileReader struct {
	Path string
}

func NewFileReader(path string) *FileReader {
	return &FileReader{Path: path}
}

func (f *FileReader) Name() string { return "file-reader" }

func (f *FileReader) Scrape(ctx context.Context) ([]string, error) {
	if f.Path == "" {
		return nil, nil
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
