package chunker

import (
	"context"
	"sync"

	"github.com/jamaly87/vectorindex/internal/models"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Tree-sitter node type strings. These come from each language's grammar,
// not from our code, and are stable within a parser version.
const (
	nodeJavaClass       = "class_declaration"
	nodeJavaInterface   = "interface_declaration"
	nodeJavaEnum        = "enum_declaration"
	nodeJavaMethod      = "method_declaration"
	nodeJavaConstructor = "constructor_declaration"

	nodeJSFunction     = "function_declaration"
	nodeJSClass        = "class_declaration"
	nodeJSMethod       = "method_definition"
	nodeJSArrowFn      = "arrow_function"
	nodeJSFunctionExpr = "function_expression"

	nodeTSInterface = "interface_declaration"
	nodeTSTypeAlias = "type_alias_declaration"
)

const minChunkRunes = 10

// ASTChunker extracts function/class/method-level chunks via tree-sitter.
// Tree-sitter parsers are not thread-safe, so all parser access is
// serialized through mux; walking the resulting tree is safe without it.
type ASTChunker struct {
	mux      sync.Mutex
	parsers  map[string]*sitter.Parser
	detector *LanguageDetector
	fallback Chunker
}

// NewASTChunker builds a chunker with Java, JavaScript and TypeScript
// grammars loaded, falling back to fallback for any other language. It
// detects a file's language from req.Path itself, the way the teacher's
// own chunker looks the language up at chunk time rather than trusting
// a caller-supplied field.
func NewASTChunker(detector *LanguageDetector, fallback Chunker) *ASTChunker {
	ac := &ASTChunker{
		parsers:  make(map[string]*sitter.Parser),
		detector: detector,
		fallback: fallback,
	}

	javaParser := sitter.NewParser()
	javaParser.SetLanguage(java.GetLanguage())
	ac.parsers["java"] = javaParser

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	ac.parsers["javascript"] = jsParser

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	ac.parsers["typescript"] = tsParser

	return ac
}

func (ac *ASTChunker) canParse(language string) bool {
	_, ok := ac.parsers[language]
	return ok
}

// Chunk parses req.Contents with the language's tree-sitter grammar and
// emits one chunk per semantic node found, falling back to line-based
// chunking for unsupported languages or parse failures.
func (ac *ASTChunker) Chunk(ctx context.Context, req ChunkRequest) (<-chan ChunkOrErr, error) {
	language, _ := ac.detector.Detect(req.Path)
	if !ac.canParse(language) {
		return ac.fallback.Chunk(ctx, req)
	}

	ac.mux.Lock()
	parser := ac.parsers[language]
	tree := parser.Parse(nil, []byte(req.Contents))
	ac.mux.Unlock()

	if tree == nil || tree.RootNode() == nil {
		return ac.fallback.Chunk(ctx, req)
	}

	out := make(chan ChunkOrErr)
	go func() {
		defer close(out)
		nodeTypes := semanticNodeTypes(language)
		index := 0
		walk(tree.RootNode(), nodeTypes, func(node *sitter.Node) {
			c, ok := nodeToChunk(node, req, index)
			if !ok {
				return
			}
			select {
			case out <- ChunkOrErr{Chunk: c}:
				index++
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

func semanticNodeTypes(language string) map[string]bool {
	byLang := map[string][]string{
		"java": {nodeJavaClass, nodeJavaInterface, nodeJavaEnum, nodeJavaMethod, nodeJavaConstructor},
		"javascript": {nodeJSFunction, nodeJSClass, nodeJSMethod, nodeJSArrowFn, nodeJSFunctionExpr},
		"typescript": {nodeJSFunction, nodeJSClass, nodeTSInterface, nodeTSTypeAlias, nodeJSMethod, nodeJSArrowFn},
	}
	types := byLang[language]
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func walk(node *sitter.Node, types map[string]bool, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	if types[node.Type()] {
		visit(node)
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		walk(node.Child(i), types, visit)
	}
}

func nodeToChunk(node *sitter.Node, req ChunkRequest, index int) (models.Chunk, bool) {
	start, end := node.StartByte(), node.EndByte()
	if start >= end || int(end) > len(req.Contents) {
		return models.Chunk{}, false
	}
	content := req.Contents[start:end]
	if len(trimSpace(content)) < minChunkRunes {
		return models.Chunk{}, false
	}
	if req.MaxChunkSize > 0 && len(content) > req.MaxChunkSize {
		content = content[:req.MaxChunkSize]
	}

	startPoint, endPoint := node.StartPoint(), node.EndPoint()
	return models.Chunk{
		Digest:    req.Digest,
		Filepath:  req.Path,
		StartLine: int(startPoint.Row) + 1,
		EndLine:   int(endPoint.Row) + 1,
		Content:   content,
		Index:     index,
	}, true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Close releases parser state. smacker's tree-sitter bindings don't
// require explicit parser teardown; this exists so callers can treat the
// chunker as a closeable resource uniformly.
func (ac *ASTChunker) Close() error {
	ac.mux.Lock()
	defer ac.mux.Unlock()
	ac.parsers = make(map[string]*sitter.Parser)
	return nil
}
