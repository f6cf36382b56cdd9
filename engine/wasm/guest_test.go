package wasm

// A stub engine guest, assembled in memory so the marshalling layer can be
// tested without a Graphviz build.
//
// It exports the full viz_* surface with trivial behaviour:
//   - malloc is a bump allocator over two pages that returns 0 when full;
//     free and every free_* export do nothing.
//   - Objects (graphs, nodes, edges, contexts) are fresh 8-byte blocks.
//   - string_dup returns its argument; render returns the format string.
//   - read_one_graph fails with "syntax error" for sources starting
//     with '!'.
//   - layout exits the instance with code 3 for engines starting with 'e'
//     and fails with "layout failed" for engines starting with 'f'.
//   - Default attributes set against the null graph are counted in the
//     exported global "engine_defaults": a non-empty value adds one, an
//     empty value removes one.

const (
	guestVersion     = "12.2.0"
	guestExitCode    = 3
	guestHeapStart   = 1024
	guestMemoryPages = 2

	addrVersion      = 16
	addrPluginDot    = 32
	addrPluginNeato  = 40
	addrPluginList   = 48
	addrError        = 64
	addrSeparator    = 72
	addrLayoutFailed = 80
	addrSyntaxError  = 96
)

// Opcodes and encodings used by the stub.
const (
	opUnreachable = 0x00
	opIf          = 0x04
	opEnd         = 0x0b
	opReturn      = 0x0f
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opLoad8U      = 0x2d
	opMemorySize  = 0x3f
	opI32Const    = 0x41
	opI32Eq       = 0x46
	opI32GtU      = 0x4b
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32And      = 0x71
	opI32Shl      = 0x74

	blockVoid = 0x40
	valI32    = 0x7f
)

type wasmFunc struct {
	name   string // export name, "" for internal helpers
	typ    byte
	locals uint32 // extra i32 locals
	body   []byte
}

// Function types.
const (
	tI32I32     byte = iota // (i32, i32) -> ()
	tI32                    // (i32) -> ()
	tI32Ret                 // (i32) -> i32
	tRet                    // () -> i32
	tI32x3Ret               // (i32, i32, i32) -> i32
	tI32I32Ret              // (i32, i32) -> i32
	tI32x3                  // (i32, i32, i32) -> ()
	tVoid                   // () -> ()
)

// Imported functions come first in the index space.
const (
	fnIdxAppendError = 0
	fnIdxProcExit    = 1
	fnIdxMalloc      = 2
)

func i32Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb(v)...)
}

func call(idx int) []byte {
	return append([]byte{opCall}, uleb(uint32(idx))...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	allocObject = cat(i32Const(8), call(fnIdxMalloc))
	firstByteOf = func(local byte) []byte { return []byte{opLocalGet, local, opLoad8U, 0, 0} }
)

func guestFuncs() []wasmFunc {
	// Indexes of the internal helpers, appended after the exports below.
	const (
		idxReportError = 28
		idxCountProto  = 29
	)
	setDefault := cat([]byte{opLocalGet, 0, opLocalGet, 2}, call(idxCountProto))

	return []wasmFunc{
		// 2: malloc(size) -> ptr
		{name: fnMalloc, typ: tI32Ret, locals: 2, body: cat(
			[]byte{opGlobalGet, 0, opLocalSet, 1},
			[]byte{opLocalGet, 1, opLocalGet, 0}, i32Const(7), []byte{opI32Add}, i32Const(-8),
			[]byte{opI32And, opI32Add, opLocalSet, 2},
			[]byte{opLocalGet, 2, opMemorySize, 0}, i32Const(16), []byte{opI32Shl, opI32GtU},
			[]byte{opIf, blockVoid}, i32Const(0), []byte{opReturn, opEnd},
			[]byte{opLocalGet, 2, opGlobalSet, 0, opLocalGet, 1},
		)},
		// 3
		{name: fnFree, typ: tI32},
		// 4
		{name: fnVersion, typ: tRet, body: i32Const(addrVersion)},
		// 5
		{name: fnPluginList, typ: tI32Ret, body: i32Const(addrPluginList)},
		// 6
		{name: fnCreateGraph, typ: tI32x3Ret, body: allocObject},
		// 7: read_one_graph(src)
		{name: fnReadOneGraph, typ: tI32Ret, body: cat(
			firstByteOf(0), i32Const('!'), []byte{opI32Eq},
			[]byte{opIf, blockVoid},
			i32Const(addrSyntaxError), i32Const(int32(len("syntax error"))), call(idxReportError),
			i32Const(0), []byte{opReturn, opEnd},
			allocObject,
		)},
		// 8
		{name: fnAddNode, typ: tI32I32Ret, body: allocObject},
		// 9
		{name: fnAddEdge, typ: tI32x3Ret, body: allocObject},
		// 10
		{name: fnAddSubgraph, typ: tI32I32Ret, body: allocObject},
		// 11-13
		{name: fnSetDefaultGraphAttr, typ: tI32x3, body: setDefault},
		{name: fnSetDefaultNodeAttr, typ: tI32x3, body: setDefault},
		{name: fnSetDefaultEdgeAttr, typ: tI32x3, body: setDefault},
		// 14
		{name: fnSetAttr, typ: tI32x3},
		// 15-17
		{name: fnStringDup, typ: tI32I32Ret, body: []byte{opLocalGet, 1}},
		{name: fnStringDupHTML, typ: tI32I32Ret, body: []byte{opLocalGet, 1}},
		{name: fnStringFree, typ: tI32I32},
		// 18-19
		{name: fnSetYInvert, typ: tI32},
		{name: fnSetReduce, typ: tI32},
		// 20
		{name: fnCreateContext, typ: tRet, body: allocObject},
		// 21
		{name: fnResetErrors, typ: tVoid},
		// 22: layout(ctx, graph, engine) -> code
		{name: fnLayout, typ: tI32x3Ret, body: cat(
			firstByteOf(2), i32Const('e'), []byte{opI32Eq},
			[]byte{opIf, blockVoid}, i32Const(guestExitCode), call(fnIdxProcExit), []byte{opUnreachable, opEnd},
			firstByteOf(2), i32Const('f'), []byte{opI32Eq},
			[]byte{opIf, blockVoid},
			i32Const(addrLayoutFailed), i32Const(int32(len("layout failed"))), call(idxReportError),
			i32Const(1), []byte{opReturn, opEnd},
			i32Const(0),
		)},
		// 23: render(ctx, graph, format) -> format
		{name: fnRender, typ: tI32x3Ret, body: []byte{opLocalGet, 2}},
		// 24-26
		{name: fnFreeLayout, typ: tI32I32},
		{name: fnFreeGraph, typ: tI32},
		{name: fnFreeContext, typ: tI32},
		// 27
		{name: guestInitialize, typ: tVoid},
		// 28: reportError(ptr, len) pushes "Error", ": ", message.
		{typ: tI32I32, body: cat(
			i32Const(addrError), i32Const(5), call(fnIdxAppendError),
			i32Const(addrSeparator), i32Const(2), call(fnIdxAppendError),
			[]byte{opLocalGet, 0, opLocalGet, 1}, call(fnIdxAppendError),
		)},
		// 29: countProto(graph, value)
		{typ: tI32I32, body: cat(
			[]byte{opLocalGet, 0, opIf, blockVoid, opReturn, opEnd},
			firstByteOf(1),
			[]byte{opIf, blockVoid, opGlobalGet, 1}, i32Const(1), []byte{opI32Add, opGlobalSet, 1, opReturn, opEnd},
			[]byte{opGlobalGet, 1, opIf, blockVoid, opGlobalGet, 1}, i32Const(1), []byte{opI32Sub, opGlobalSet, 1, opEnd},
		)},
	}
}

// guestData is the static memory image.
func guestData() map[uint32][]byte {
	cstr := func(s string) []byte { return append([]byte(s), 0) }
	list := make([]byte, 0, 12)
	for _, p := range []uint32{addrPluginDot, addrPluginNeato, 0} {
		list = append(list, byte(p), byte(p>>8), byte(p>>16), byte(p>>24))
	}
	return map[uint32][]byte{
		addrVersion:      cstr(guestVersion),
		addrPluginDot:    cstr("dot"),
		addrPluginNeato:  cstr("neato"),
		addrPluginList:   list,
		addrError:        []byte("Error"),
		addrSeparator:    []byte(": "),
		addrLayoutFailed: []byte("layout failed"),
		addrSyntaxError:  []byte("syntax error"),
	}
}

// stubGuest encodes the stub as a wasm binary.
func stubGuest() []byte {
	funcs := guestFuncs()

	types := [][2][]byte{
		tI32I32:    {{valI32, valI32}, nil},
		tI32:       {{valI32}, nil},
		tI32Ret:    {{valI32}, {valI32}},
		tRet:       {nil, {valI32}},
		tI32x3Ret:  {{valI32, valI32, valI32}, {valI32}},
		tI32I32Ret: {{valI32, valI32}, {valI32}},
		tI32x3:     {{valI32, valI32, valI32}, nil},
		tVoid:      {nil, nil},
	}
	var typeSec []byte
	for _, t := range types {
		typeSec = append(typeSec, 0x60)
		typeSec = append(typeSec, vec(len(t[0]), t[0])...)
		typeSec = append(typeSec, vec(len(t[1]), t[1])...)
	}

	importSec := cat(
		name(hostModule), name(hostAppendErrorMessage), []byte{0x00, tI32I32},
		name("wasi_snapshot_preview1"), name("proc_exit"), []byte{0x00, tI32},
	)

	var funcSec, codeSec, exportSec []byte
	exports := 0
	for i, f := range funcs {
		funcSec = append(funcSec, f.typ)

		var body []byte
		if f.locals > 0 {
			body = append(body, 1)
			body = append(body, uleb(f.locals)...)
			body = append(body, valI32)
		} else {
			body = append(body, 0)
		}
		body = append(body, f.body...)
		body = append(body, opEnd)
		codeSec = append(codeSec, uleb(uint32(len(body)))...)
		codeSec = append(codeSec, body...)

		if f.name != "" {
			exportSec = append(exportSec, name(f.name)...)
			exportSec = append(exportSec, 0x00)
			exportSec = append(exportSec, uleb(uint32(fnIdxMalloc+i))...)
			exports++
		}
	}
	exportSec = append(exportSec, name("memory")...)
	exportSec = append(exportSec, 0x02, 0x00)
	exportSec = append(exportSec, name("engine_defaults")...)
	exportSec = append(exportSec, 0x03, 0x01)
	exports += 2

	memorySec := []byte{0x00, guestMemoryPages}

	globalSec := cat(
		[]byte{valI32, 0x01}, i32Const(guestHeapStart), []byte{opEnd},
		[]byte{valI32, 0x01}, i32Const(0), []byte{opEnd},
	)

	data := guestData()
	var dataSec []byte
	for _, addr := range []uint32{addrVersion, addrPluginDot, addrPluginNeato, addrPluginList, addrError, addrSeparator, addrLayoutFailed, addrSyntaxError} {
		seg := data[addr]
		dataSec = append(dataSec, 0x00)
		dataSec = append(dataSec, i32Const(int32(addr))...)
		dataSec = append(dataSec, opEnd)
		dataSec = append(dataSec, vec(len(seg), seg)...)
	}

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, len(types), typeSec)...)
	out = append(out, section(2, 2, importSec)...)
	out = append(out, section(3, len(funcs), funcSec)...)
	out = append(out, section(5, 1, memorySec)...)
	out = append(out, section(6, 2, globalSec)...)
	out = append(out, section(7, exports, exportSec)...)
	out = append(out, section(10, len(funcs), codeSec)...)
	out = append(out, section(11, len(data), dataSec)...)
	return out
}

func section(id byte, count int, content []byte) []byte {
	payload := vec(count, content)
	return cat([]byte{id}, uleb(uint32(len(payload))), payload)
}

func vec(count int, items []byte) []byte {
	return append(uleb(uint32(count)), items...)
}

func name(s string) []byte {
	return vec(len(s), []byte(s))
}

func uleb(v uint32) []byte {
	var out []byte
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

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
