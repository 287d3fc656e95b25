package model

import (
	"os"
	"runtime"
	"strings"
)

// accelAvailable probes for a usable accelerator. Overridable in tests.
var accelAvailable = func(name string) bool {
	if strings.HasPrefix(name, "cuda") {
		_, err := os.Stat("/dev/nvidia0")
		return err == nil
	}
	if name == "metal" {
		return runtime.GOOS == "darwin"
	}
	return false
}

// selectDevice resolves the device preference in order: named accelerator
// (e.g. "cuda:0"), platform GPU shim ("gpu"), then CPU. An unavailable
// preference falls back to CPU silently; the bool reports that fallback so
// load can record it on the handle instead of erroring.
func selectDevice(pref string, gpuLayers int) (string, bool) {
	pref = strings.ToLower(strings.TrimSpace(pref))
	switch {
	case pref == "" || pref == "cpu":
		return "cpu", false
	case strings.HasPrefix(pref, "cuda"):
		if gpuLayers != 0 && accelAvailable(pref) {
			return pref, false
		}
		return "cpu", true
	case pref == "gpu":
		// platform shim: metal on darwin, cuda elsewhere
		if runtime.GOOS == "darwin" && accelAvailable("metal") {
			return "metal", false
		}
		if accelAvailable("cuda") {
			return "cuda:0", false
		}
		return "cpu", true
	default:
		return "cpu", true
	}
}
