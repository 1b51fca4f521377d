// Package utils holds small helpers shared by the admin API and the bot.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page size values. page is at least 1 and
// size lies in [1, maxSize]; unparsable input falls back to 1 and defSize.
func ClampPage(rawPage, rawSize string, defSize, maxSize int) (page, size int) {
	page = max(AtoiDefault(rawPage, 1), 1)
	size = min(max(AtoiDefault(rawSize, defSize), 1), maxSize)
	return page, size
}

// PageBounds returns the [lo, hi) slice bounds of page within n items.
func PageBounds(n, page, size int) (lo, hi int) {
	lo = min(max(page-1, 0)*size, n)
	hi = min(lo+size, n)
	return lo, hi
}
