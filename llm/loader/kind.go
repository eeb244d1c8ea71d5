package loader

import (
	"path/filepath"
	"strings"
)

// SourceKind is the closed set of source formats the loader understands
type SourceKind int

const (
	KindUnsupported SourceKind = iota
	KindRecords
	KindText
	KindMarkdown
	KindCode
	KindScript
	KindHTML
)

var kindNames = map[SourceKind]string{
	KindUnsupported: "unsupported",
	KindRecords:     "records",
	KindText:        "text",
	KindMarkdown:    "markdown",
	KindCode:        "code",
	KindScript:      "script",
	KindHTML:        "html",
}

// String returns the string representation of the SourceKind
func (k SourceKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnsupported]
}

var kindByExt = map[string]SourceKind{
	".json":     KindRecords,
	".txt":      KindText,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".html":     KindHTML,
	".htm":      KindHTML,

	".go":   KindCode,
	".py":   KindCode,
	".lua":  KindCode,
	".js":   KindCode,
	".ts":   KindCode,
	".java": KindCode,
	".c":    KindCode,
	".cpp":  KindCode,
	".h":    KindCode,
	".cs":   KindCode,
	".rs":   KindCode,
	".rb":   KindCode,

	".sh":   KindScript,
	".bash": KindScript,
	".zsh":  KindScript,
	".ps1":  KindScript,
	".bat":  KindScript,
	".cmd":  KindScript,
}

// KindFromPath resolves the source kind from the file extension only
func KindFromPath(path string) SourceKind {
	if kind, ok := kindByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return KindUnsupported
}

// Supported reports whether files of this kind can be loaded
func (k SourceKind) Supported() bool {
	return k != KindUnsupported
}
