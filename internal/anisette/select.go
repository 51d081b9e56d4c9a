package anisette

import (
	"os"
	"path/filepath"
	"runtime"
)

// LibraryPath returns the expected on-disk path of the native ADI library
// for the host architecture, under <configurationPath>/lib/<arch>/.
func LibraryPath(configurationPath string) string {
	arch := runtime.GOARCH
	return filepath.Join(configurationPath, "lib", arch, "libstoreservicescore.so")
}

// HasLocalLibrary reports whether the native library is present on disk,
// the capability probe used to prefer LocalADI over the remote backends.
func HasLocalLibrary(configurationPath string) bool {
	_, err := os.Stat(LibraryPath(configurationPath))
	return err == nil
}
