package chunker

import "github.com/jamaly87/vectorindex/pkg/config"

func testLanguagesConfig() config.LanguagesConfig {
	return config.LanguagesConfig{
		Java:       config.LanguageConfig{Extensions: []string{".java"}, Parser: "tree-sitter-java"},
		TypeScript: config.LanguageConfig{Extensions: []string{".ts", ".tsx"}, Parser: "tree-sitter-typescript"},
		JavaScript: config.LanguageConfig{Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, Parser: "tree-sitter-javascript"},
	}
}
