// Package dumper for internal debug use only.
package dumper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config controls whether and where debug dumps are written.
type Config struct {
	Enabled  bool   `conf:"enabled" yaml:"enabled" json:"enabled"`
	DumpPath string `conf:"dump_path" yaml:"dump_path" json:"dump_path"`
}

// DefaultConfig returns a disabled dumper writing under the working directory.
func DefaultConfig() Config {
	return Config{
		Enabled:  false,
		DumpPath: "dumps",
	}
}

// Dumper is responsible for dumping data to files when faults occur.
type Dumper struct {
	config Config
	mu     sync.Mutex
}

// New creates a new Dumper instance.
func New(config Config) *Dumper {
	return &Dumper{
		config: config,
	}
}

// DumpStruct dumps any struct as JSON to a file.
func (d *Dumper) DumpStruct(ctx context.Context, data any, filename string) {
	if !d.config.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.config.DumpPath, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dump directory: %v\n", err)
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	fullPath := filepath.Join(d.config.DumpPath, fmt.Sprintf("%s_%s.json", filename, timestamp))

	//nolint:gosec // Checked.
	file, err := os.Create(fullPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dump file %s: %v\n", fullPath, err)
		return
	}

	defer func() {
		if err := file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close dump file %s: %v\n", fullPath, err)
		}
	}()

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal data to JSON: %v\n", err)
		return
	}

	if _, err := file.Write(jsonData); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write data to dump file %s: %v\n", fullPath, err)
		return
	}

	fmt.Printf("Successfully dumped struct to file: %s\n", fullPath)
}

// DumpBytes dumps raw byte data to a file.
func (d *Dumper) DumpBytes(ctx context.Context, data []byte, filename string) {
	if !d.config.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.config.DumpPath, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dump directory: %v\n", err)
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	fullPath := filepath.Join(d.config.DumpPath, fmt.Sprintf("%s_%s.bin", filename, timestamp))

	//nolint:gosec // Checked.
	file, err := os.Create(fullPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create dump file %s: %v\n", fullPath, err)
		return
	}

	defer func() {
		if err := file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close dump file %s: %v\n", fullPath, err)
		}
	}()

	if _, err := file.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write bytes to dump file %s: %v\n", fullPath, err)
		return
	}

	fmt.Printf("Successfully dumped bytes to file: %s (size: %d)\n", fullPath, len(data))
}
