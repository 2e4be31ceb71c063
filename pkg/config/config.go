// Package config carries the core's version identity and process-wide
// defaults, mirroring the module-level constants the original Python
// sstimap core keeps in utils/config.py.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Version is the core's own version, compared against a plugin's declared
// SSTIMapVersion at registration time.
const Version = "2.0.0"

// MinPluginVersion is the oldest plugin version this core still loads.
const MinPluginVersion = "1.0.0"

// Default probing parameters, overridable per channel via Args.
const (
	DefaultLevel                     = 1
	DefaultTimeBasedBlindDelay       = 4 * time.Second
	DefaultTimeBasedVerifyBlindDelay = 30 * time.Second
	DefaultHeaderType                = "cat"

	// WriteChunkSize is the chunk size, in bytes, used by the file write
	// protocol before base64 encoding.
	WriteChunkSize = 500
)

// CompareVersions compares two dotted version strings a and b and returns
// "<", "==" or ">" describing how a relates to b. Missing components compare
// as 0, so "1.2" == "1.2.0".
func CompareVersions(a, b string) string {
	pa := splitVersion(a)
	pb := splitVersion(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var va, vb int
		if i < len(pa) {
			va = pa[i]
		}
		if i < len(pb) {
			vb = pb[i]
		}
		if va < vb {
			return "<"
		}
		if va > vb {
			return ">"
		}
	}
	return "=="
}

func splitVersion(v string) []int {
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			n = 0
		}
		out = append(out, n)
	}
	return out
}
