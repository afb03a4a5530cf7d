package harness

import (
	"errors"
	"fmt"
	"os"

	"github.com/weiihann/cachoor/bench"
)

// CheckBinaries verifies that a client binary exists for every variant.
func CheckBinaries(binDir string, variants []string) error {
	var errs []error

	for _, v := range variants {
		bin := bench.ResolveBinary(binDir, v)

		info, err := os.Stat(bin)
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %s: binary not found at %s", v, bin))
			continue
		}

		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			errs = append(errs, fmt.Errorf("variant %s: %s is not executable", v, bin))
		}
	}

	return errors.Join(errs...)
}
