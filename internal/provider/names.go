package provider

import "golang.org/x/text/unicode/norm"

// RemoteFileName maps a logical file name to the provider-side file name.
// Both logical files store a single JSON object.
func RemoteFileName(logical string) string {
	return logical + ".json"
}

// SameName compares remote names after NFC normalization. Providers can
// return NFD for names that originated on macOS clients; exact-match
// lookups must not miss on encoding alone.
func SameName(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}
