package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

// Risk levels.
const (
	RiskHigh   = "HIGH"
	RiskMedium = "MEDIUM"
	RiskSafe   = "SAFE"
)

// headSize is the header length filetype recommends.
const headSize = 262

// Result 检测结果
type Result struct {
	IsMasquerade bool   // 是否是伪装文件
	RealExt      string // 真实的类型后缀 (根据文件头)
	DeclaredExt  string // 声明的后缀 (文件名)
	RiskLevel    string
	Message      string
}

// TypeInspector 文件类型检查器
type TypeInspector struct {
	aliasMap map[string]map[string]bool
	mu       sync.RWMutex
}

func NewTypeInspector() *TypeInspector {
	inspector := &TypeInspector{
		aliasMap: make(map[string]map[string]bool),
	}
	inspector.initRules()
	return inspector
}

// Allow registers declared extensions that are legitimate for realType.
func (t *TypeInspector) Allow(realType string, allowedExts ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.aliasMap[realType]; !ok {
		t.aliasMap[realType] = make(map[string]bool)
	}
	t.aliasMap[realType][realType] = true
	for _, ext := range allowedExts {
		t.aliasMap[realType][ext] = true
	}
}

// initRules 初始化兼容性规则 (白名单)
func (t *TypeInspector) initRules() {
	// ZIP 家族：docx, xlsx 等本质都是 zip
	t.Allow("zip",
		"docx", "docm", "dotx", "dotm",
		"xlsx", "xlsm", "xltx", "xltm",
		"pptx", "pptm", "potx", "potm",
		"jar", "war", "ear",
		"apk",
		"odt", "ods", "odp",
		"crx",
		"whl",
		"nupkg",
	)
	t.Allow("xml", "svg", "html", "htm", "kml", "dae", "plist", "config")
	t.Allow("mp4", "m4v", "mov", "qt")
	t.Allow("ogg", "ogv", "oga", "spx")
	t.Allow("mov", "qt", "mp4")
	// PE: .dll, .sys, .scr 技术上是一样的
	t.Allow("exe", "dll", "sys", "scr", "cpl", "ocx")
	t.Allow("gz", "gzip", "tgz")
	t.Allow("tar")
	t.Allow("rar")
	t.Allow("7z")
}

// Inspect opens filePath and inspects it.
func (t *TypeInspector) Inspect(filePath string) (*Result, error) {
	if filepath.Ext(filePath) == "" {
		return noExtension(), nil
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer file.Close()
	return t.InspectReader(filePath, file)
}

// InspectReader compares the extension of name with the magic bytes at the
// start of r. Reading through ReaderAt leaves any file offset untouched.
func (t *TypeInspector) InspectReader(name string, r io.ReaderAt) (*Result, error) {
	rawExt := filepath.Ext(name)
	if rawExt == "" {
		return noExtension(), nil
	}
	declaredExt := strings.ToLower(strings.TrimPrefix(rawExt, "."))

	head := make([]byte, headSize)
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header failed: %w", err)
	}
	if n == 0 {
		// 空文件：没有 Magic Bytes，无法判断
		return &Result{RiskLevel: RiskSafe, DeclaredExt: declaredExt, Message: "Empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	// 很多纯文本文件(txt, go, c, py, md, json)会被识别为 Unknown，默认信任
	if kind == filetype.Unknown {
		return &Result{
			RealExt:     "unknown",
			DeclaredExt: declaredExt,
			RiskLevel:   RiskSafe,
			Message:     "Unknown binary signature (likely text)",
		}, nil
	}

	realExt := kind.Extension
	if realExt == declaredExt {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt, RiskLevel: RiskSafe}, nil
	}

	t.mu.RLock()
	allowed := t.aliasMap[realExt][declaredExt]
	t.mu.RUnlock()
	if allowed {
		return &Result{
			RealExt:     realExt,
			DeclaredExt: declaredExt,
			RiskLevel:   RiskSafe,
			Message:     fmt.Sprintf("Allowed alias: %s is compatible with %s", declaredExt, realExt),
		}, nil
	}

	risk := RiskMedium
	if realExt == "exe" || realExt == "elf" || realExt == "dll" {
		risk = RiskHigh // 可执行文件伪装成其他格式
	}
	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declaredExt,
		RiskLevel:    risk,
		Message:      fmt.Sprintf("Type Mismatch! Header is '%s' but file is '%s'", realExt, declaredExt),
	}, nil
}

func noExtension() *Result {
	return &Result{RiskLevel: RiskSafe, Message: "No extension"}
}
