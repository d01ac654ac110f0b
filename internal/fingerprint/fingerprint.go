// Package fingerprint derives a stable issue fingerprint from a stack
// trace and the exception-message title shown on an issue. The
// algorithm is deterministic across processes and does not depend on
// map iteration order — it only ever walks the ordered frame slice
// the parser produced.
//
// This intentionally differs from original_source's own fingerprint
// (which hashes "filename:function:lineno" for every frame): that
// implementation groups too aggressively across unrelated call sites
// that happen to share a line number. The algorithm here groups by
// normalized in-app frame identity instead, per the governing spec.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// Frame mirrors the subset of a Sentry stack frame the fingerprinter
// needs.
type Frame struct {
	Function string
	Module   string
	Package  string
	Filename string
	AbsPath  string
	InApp    bool
}

// Result carries both outputs the digest worker needs: the stable
// grouping key and the human-readable issue title.
type Result struct {
	FingerprintHash string
	Title           string
}

const maxTitleLen = 200

// Compute derives the fingerprint hash and issue title from the first
// exception's type, message, and stack frames.
func Compute(exceptionType, exceptionMessage string, frames []Frame) Result {
	retained := filterInApp(frames)

	var b strings.Builder
	if exceptionType != "" {
		b.WriteString(exceptionType)
		b.WriteByte('\n')
	}
	for i, f := range retained {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(normalizeFrame(f))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Result{
		FingerprintHash: hex.EncodeToString(sum[:]),
		Title:           title(exceptionType, exceptionMessage),
	}
}

// filterInApp keeps only in_app frames, preserving input order
// (top-of-stack first). If no frame is marked in_app, it falls back
// to the full list.
func filterInApp(frames []Frame) []Frame {
	var inApp []Frame
	for _, f := range frames {
		if f.InApp {
			inApp = append(inApp, f)
		}
	}
	if len(inApp) == 0 {
		return frames
	}
	return inApp
}

// normalizeFrame renders a single frame as "{module|package|""}::{function|""}",
// falling back to the basename of filename/abs_path when both module
// and function are empty.
func normalizeFrame(f Frame) string {
	mod := strings.TrimSpace(f.Module)
	if mod == "" {
		mod = strings.TrimSpace(f.Package)
	}
	fn := strings.TrimSpace(f.Function)

	if mod == "" && fn == "" {
		file := f.Filename
		if file == "" {
			file = f.AbsPath
		}
		return path.Base(file)
	}
	return mod + "::" + fn
}

// title builds "{type}: {first line of message}" truncated to 200
// characters.
func title(exceptionType, message string) string {
	firstLine := message
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		firstLine = message[:idx]
	}

	var t string
	switch {
	case exceptionType != "" && firstLine != "":
		t = exceptionType + ": " + firstLine
	case exceptionType != "":
		t = exceptionType
	default:
		t = firstLine
	}

	if runes := []rune(t); len(runes) > maxTitleLen {
		t = string(runes[:maxTitleLen])
	}
	return t
}
