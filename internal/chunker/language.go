package chunker

import (
	"path/filepath"
	"strings"

	"github.com/jamaly87/vectorindex/pkg/config"
)

// LanguageDetector maps a file extension to the language name the AST
// chunker uses to select a tree-sitter grammar.
type LanguageDetector struct {
	extToLang map[string]string
}

// NewLanguageDetector builds a detector from the configured language
// extension lists.
func NewLanguageDetector(cfg config.LanguagesConfig) *LanguageDetector {
	extToLang := make(map[string]string)
	for _, ext := range cfg.Java.Extensions {
		extToLang[ext] = "java"
	}
	for _, ext := range cfg.TypeScript.Extensions {
		extToLang[ext] = "typescript"
	}
	for _, ext := range cfg.JavaScript.Extensions {
		extToLang[ext] = "javascript"
	}
	return &LanguageDetector{extToLang: extToLang}
}

// Detect returns the language name for path's extension, and whether an
// AST grammar is known for it at all (an unknown extension still gets
// line-based chunking, just with language set to "").
func (ld *LanguageDetector) Detect(path string) (language string, hasASTSupport bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := ld.extToLang[ext]
	return lang, ok
}
