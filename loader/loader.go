// Package loader reads assembly programs from disk.
package loader

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
)

// Extensions accepted by Load.
var Extensions = []string{".s", ".S", ".asm"}

// Load reads and assembles the program at path.
func Load(path string) (*insts.Program, error) {
	if !hasAssemblyExtension(path) {
		return nil, errors.Errorf("%s: not an assembly file (want one of %s)",
			path, strings.Join(Extensions, ", "))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open program")
	}
	defer func() { _ = f.Close() }()

	return Read(f, filepath.Base(path))
}

// Read assembles the program in r. name is used in error messages.
func Read(r io.Reader, name string) (*insts.Program, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read failed", name)
	}

	prog, err := insts.Assemble(string(src))
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	if len(prog.Code) == 0 {
		return nil, errors.Errorf("%s: no instructions", name)
	}
	return prog, nil
}

func hasAssemblyExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
