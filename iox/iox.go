// Package iox provides I/O helpers for resource cleanup.
package iox

import "io"

// drainLimit caps how much of a body DrainClose reads before closing.
const drainLimit = 256 << 10

// DiscardClose closes c and discards the error.
//
//	defer iox.DiscardClose(src)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads a bounded remainder of rc and closes it, so an HTTP
// connection can be reused after a partial read.
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, drainLimit))
	_ = rc.Close()
}

// CloseFunc returns a cleanup function that closes c, for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(source))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
