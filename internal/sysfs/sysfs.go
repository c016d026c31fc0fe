// Package sysfs reads numeric values from sysfs and IIO attribute files.
package sysfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Well-known paths.
const (
	CPUTemperature = "/sys/class/thermal/thermal_zone0/temp"
	IIORoot        = "/sys/bus/iio/devices"
)

// MaxIIODevices bounds the iio:deviceN scan.
const MaxIIODevices = 9

// ErrNotFound is returned when no IIO device carries the requested name.
var ErrNotFound = errors.New("sysfs: iio device not found")

// NumericFile is a sysfs attribute kept open for repeated polling.
// Each read consumes the whole file and rewinds to offset 0.
type NumericFile struct {
	path string
	f    *os.File
}

// Open opens the attribute at path for polling.
func Open(path string) (*NumericFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &NumericFile{path: path, f: f}, nil
}

// Path returns the attribute path.
func (n *NumericFile) Path() string {
	return n.path
}

func (n *NumericFile) text() (string, error) {
	b, err := io.ReadAll(n.f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", n.path, err)
	}
	if _, err := n.f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", n.path, err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// ReadFloat reads the attribute as a floating point value.
func (n *NumericFile) ReadFloat() (float64, error) {
	s, err := n.text()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", n.path, err)
	}
	return v, nil
}

// ReadInt reads the attribute as a base-10 integer.
func (n *NumericFile) ReadInt() (int64, error) {
	s, err := n.text()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", n.path, err)
	}
	return v, nil
}

// Close closes the attribute file.
func (n *NumericFile) Close() error {
	return n.f.Close()
}

// FindIIODevice returns the directory of the first iio:deviceN under root
// whose name attribute equals name.
func FindIIODevice(root, name string) (string, error) {
	for i := 0; i < MaxIIODevices; i++ {
		dir := filepath.Join(root, "iio:device"+strconv.Itoa(i))
		b, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(b)) == name {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%s under %s: %w", name, root, ErrNotFound)
}
