package wasm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// 值类型
const (
	i32 byte = 0x7f
	i64 byte = 0x7e
	f64 byte = 0x7c
)

// 指令
const (
	opUnreachable byte = 0x00
	opLoop        byte = 0x03
	opBr          byte = 0x0c
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI64Add      byte = 0x7c
	opF64Add      byte = 0xa0
	blockVoid     byte = 0x40
)

type funcType struct {
	params  []byte
	results []byte
}

type wasmImport struct {
	module, name string
	typ          funcType
}

type wasmFunc struct {
	export string
	typ    funcType
	locals []byte
	body   []byte
}

type wasmData struct {
	offset uint32
	bytes  []byte
}

// moduleBuilder 构造最小的 wasm 二进制
//
// 导入函数占据前面的函数索引，本地函数依次排在后面。
type moduleBuilder struct {
	imports []wasmImport
	funcs   []wasmFunc
	memory  uint32
	data    []wasmData
}

func newModule() *moduleBuilder { return &moduleBuilder{} }

// importHost 导入 env 宿主函数并返回其函数索引
func (b *moduleBuilder) importHost(name string, typ funcType) uint32 {
	return b.importFrom(hostModuleName, name, typ)
}

func (b *moduleBuilder) importFrom(module, name string, typ funcType) uint32 {
	b.imports = append(b.imports, wasmImport{module: module, name: name, typ: typ})
	return uint32(len(b.imports) - 1)
}

func (b *moduleBuilder) withMemory(pages uint32) *moduleBuilder {
	b.memory = pages
	return b
}

func (b *moduleBuilder) withData(offset uint32, s string) *moduleBuilder {
	b.data = append(b.data, wasmData{offset: offset, bytes: []byte(s)})
	return b
}

// function 添加导出函数；body 不含结尾的 end
func (b *moduleBuilder) function(export string, typ funcType, locals []byte, body ...byte) *moduleBuilder {
	b.funcs = append(b.funcs, wasmFunc{export: export, typ: typ, locals: locals, body: body})
	return b
}

func (b *moduleBuilder) bytes() []byte {
	var types []funcType
	typeIndex := func(t funcType) uint32 {
		for i, existing := range types {
			if string(existing.params) == string(t.params) && string(existing.results) == string(t.results) {
				return uint32(i)
			}
		}
		types = append(types, t)
		return uint32(len(types) - 1)
	}
	importTypes := make([]uint32, len(b.imports))
	for i, imp := range b.imports {
		importTypes[i] = typeIndex(imp.typ)
	}
	funcTypes := make([]uint32, len(b.funcs))
	for i, fn := range b.funcs {
		funcTypes[i] = typeIndex(fn.typ)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var typeSec []byte
	typeSec = appendU32(typeSec, uint32(len(types)))
	for _, t := range types {
		typeSec = append(typeSec, 0x60)
		typeSec = appendVec(typeSec, t.params)
		typeSec = appendVec(typeSec, t.results)
	}
	out = appendSection(out, 1, typeSec)

	if len(b.imports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(b.imports)))
		for i, imp := range b.imports {
			sec = appendName(sec, imp.module)
			sec = appendName(sec, imp.name)
			sec = append(sec, 0x00)
			sec = appendU32(sec, importTypes[i])
		}
		out = appendSection(out, 2, sec)
	}

	var funcSec []byte
	funcSec = appendU32(funcSec, uint32(len(b.funcs)))
	for _, idx := range funcTypes {
		funcSec = appendU32(funcSec, idx)
	}
	out = appendSection(out, 3, funcSec)

	if b.memory > 0 {
		out = appendSection(out, 5, appendU32([]byte{0x01, 0x00}, b.memory))
	}

	var exportSec []byte
	exports := uint32(len(b.funcs))
	if b.memory > 0 {
		exports++
	}
	exportSec = appendU32(exportSec, exports)
	for i, fn := range b.funcs {
		exportSec = appendName(exportSec, fn.export)
		exportSec = append(exportSec, 0x00)
		exportSec = appendU32(exportSec, uint32(len(b.imports)+i))
	}
	if b.memory > 0 {
		exportSec = appendName(exportSec, "memory")
		exportSec = append(exportSec, 0x02, 0x00)
	}
	out = appendSection(out, 7, exportSec)

	var codeSec []byte
	codeSec = appendU32(codeSec, uint32(len(b.funcs)))
	for _, fn := range b.funcs {
		var body []byte
		body = appendU32(body, uint32(len(fn.locals)))
		for _, l := range fn.locals {
			body = append(body, 0x01, l)
		}
		body = append(body, fn.body...)
		body = append(body, opEnd)
		codeSec = appendU32(codeSec, uint32(len(body)))
		codeSec = append(codeSec, body...)
	}
	out = appendSection(out, 10, codeSec)

	if len(b.data) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(b.data)))
		for _, d := range b.data {
			sec = append(sec, 0x00, opI32Const)
			sec = appendS64(sec, int64(d.offset))
			sec = append(sec, opEnd)
			sec = appendVec(sec, d.bytes)
		}
		out = appendSection(out, 11, sec)
	}
	return out
}

// writeFile 把模块写入临时目录并返回路径
func (b *moduleBuilder) writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contract.wasm")
	require.NoError(t, os.WriteFile(path, b.bytes(), 0o644))
	return path
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendVec(out, items []byte) []byte {
	out = appendU32(out, uint32(len(items)))
	return append(out, items...)
}

func appendName(out []byte, s string) []byte {
	return appendVec(out, []byte(s))
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendS64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// ==================== 指令片段 ====================

func i32Const(v int32) []byte { return appendS64([]byte{opI32Const}, int64(v)) }

func i64Const(v int64) []byte { return appendS64([]byte{opI64Const}, v) }

func call(idx uint32) []byte { return appendU32([]byte{opCall}, idx) }

func localGet(idx uint32) []byte { return appendU32([]byte{opLocalGet}, idx) }

func localSet(idx uint32) []byte { return appendU32([]byte{opLocalSet}, idx) }

func code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// 宿主函数签名
var (
	sigPtrLen  = funcType{params: []byte{i32, i32}}
	sigVoid    = funcType{}
	sigGas     = funcType{params: []byte{i64}}
	sigI64Bin  = funcType{params: []byte{i64, i64}, results: []byte{i64}}
	sigTwoStr  = funcType{params: []byte{i32, i32, i32, i32}}
	sigExtCall = funcType{params: []byte{i32, i32, i32, i32, i32, i32}, results: []byte{i32}}
	sigLen     = funcType{results: []byte{i32}}
	sigPtr     = funcType{params: []byte{i32}}
)
