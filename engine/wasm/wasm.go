package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/goviz/diag"
	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/vfs"
)

var (
	ErrClosed        = errors.New("wasm engine closed")
	ErrMissingExport = errors.New("missing export")
)

// Guest exports. The guest is a reactor: "_initialize" runs once per
// instance and no "_start" is expected.
const (
	fnMalloc               = "malloc"
	fnFree                 = "free"
	fnVersion              = "viz_get_graphviz_version"
	fnPluginList           = "viz_get_plugin_list"
	fnCreateGraph          = "viz_create_graph"
	fnReadOneGraph         = "viz_read_one_graph"
	fnAddNode              = "viz_add_node"
	fnAddEdge              = "viz_add_edge"
	fnAddSubgraph          = "viz_add_subgraph"
	fnSetDefaultGraphAttr  = "viz_set_default_graph_attribute"
	fnSetDefaultNodeAttr   = "viz_set_default_node_attribute"
	fnSetDefaultEdgeAttr   = "viz_set_default_edge_attribute"
	fnSetAttr              = "viz_set_attribute"
	fnStringDup            = "viz_string_dup"
	fnStringDupHTML        = "viz_string_dup_html"
	fnStringFree           = "viz_string_free"
	fnSetYInvert           = "viz_set_y_invert"
	fnSetReduce            = "viz_set_reduce"
	fnCreateContext        = "viz_create_context"
	fnResetErrors          = "viz_reset_errors"
	fnLayout               = "viz_layout"
	fnRender               = "viz_render"
	fnFreeLayout           = "viz_free_layout"
	fnFreeGraph            = "viz_free_graph"
	fnFreeContext          = "viz_free_context"
	hostModule             = "env"
	hostAppendErrorMessage = "append_error_message"
	guestName              = "viz"
	guestInitialize        = "_initialize"
)

var requiredExports = []string{
	fnMalloc, fnFree, fnVersion, fnPluginList,
	fnCreateGraph, fnReadOneGraph, fnAddNode, fnAddEdge, fnAddSubgraph,
	fnSetDefaultGraphAttr, fnSetDefaultNodeAttr, fnSetDefaultEdgeAttr, fnSetAttr,
	fnStringDup, fnStringDupHTML, fnStringFree,
	fnSetYInvert, fnSetReduce,
	fnCreateContext, fnResetErrors, fnLayout, fnRender,
	fnFreeLayout, fnFreeGraph, fnFreeContext,
}

// Module runs a Graphviz build compiled to WebAssembly. It implements
// native.Module.
type Module struct {
	cfg      config
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	guest    api.Module
	root     *vfs.Root
	ownRoot  bool
	diag     diag.Buffer
	protos   []proto
	aborted  bool
	closed   bool
	mu       sync.Mutex
}

// proto is an engine-wide default attribute set against the null graph.
type proto struct {
	fn   string
	name string
}

// Open reads a wasm binary from path and calls New.
func Open(ctx context.Context, path string, opts ...Option) (*Module, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}
	return New(ctx, bin, opts...)
}

// New compiles bin and instantiates it.
func New(ctx context.Context, bin []byte, opts ...Option) (*Module, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	m := &Module{
		cfg:     cfg,
		runtime: wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cache:   cache,
		root:    cfg.root,
	}

	if err := m.setup(ctx, bin); err != nil {
		m.release(ctx)
		return nil, err
	}

	cfg.logger.Debug("wasm engine ready", "root", m.root.HostDir(), "memory_pages", cfg.memoryLimitPages)
	return m, nil
}

func (m *Module) setup(ctx context.Context, bin []byte) error {
	if m.root == nil {
		root, err := vfs.NewTemp()
		if err != nil {
			return err
		}
		m.root, m.ownRoot = root, true
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, m.runtime); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	_, err := m.runtime.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(m.appendErrorMessage),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export(hostAppendErrorMessage).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := m.runtime.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("compile wasm module: %w", err)
	}
	m.compiled = compiled

	exports := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}
	if len(compiled.ExportedMemories()) == 0 {
		return fmt.Errorf("%w: memory", ErrMissingExport)
	}

	return m.instantiate(ctx)
}

// appendErrorMessage is the guest's hook for engine messages: each call
// pushes one token.
func (m *Module) appendErrorMessage(_ context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		m.cfg.logger.Warn("error message out of range", "ptr", ptr, "len", length)
		return
	}
	m.diag.AppendToken(string(data))
}

func (m *Module) instantiate(ctx context.Context) error {
	moduleConfig := wazero.NewModuleConfig().
		WithStdout(m.cfg.stdout).
		WithStderr(&m.diag).
		WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(m.root.HostDir(), "/")).
		WithStartFunctions(guestInitialize).
		WithName(guestName)

	guest, err := m.runtime.InstantiateModule(ctx, m.compiled, moduleConfig)
	if err != nil {
		return fmt.Errorf("instantiate wasm module: %w", err)
	}
	m.guest = guest
	m.aborted = false
	return nil
}

func (m *Module) check() error {
	if m.closed {
		return ErrClosed
	}
	if m.aborted {
		return fmt.Errorf("wasm: %w", native.ErrAbort)
	}
	return nil
}

// call invokes a guest export. Any exit closes the guest, so the module
// is marked aborted until the next Reset.
func (m *Module) call(ctx context.Context, name string, params ...uint64) (uint64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}

	ret, err := m.guest.ExportedFunction(name).Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			m.aborted = true
			m.cfg.logger.Warn("wasm engine exited", "func", name, "code", exitErr.ExitCode())
		}
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if len(ret) == 0 {
		return 0, nil
	}
	return ret[0], nil
}

func (m *Module) callPointer(ctx context.Context, name string, params ...uint64) (native.Pointer, error) {
	ret, err := m.call(ctx, name, params...)
	return native.Pointer(api.DecodeU32(ret)), err
}

func (m *Module) Malloc(ctx context.Context, size uint32) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.malloc(ctx, size)
}

func (m *Module) malloc(ctx context.Context, size uint32) (native.Pointer, error) {
	return m.callPointer(ctx, fnMalloc, api.EncodeU32(size))
}

func (m *Module) Free(ctx context.Context, p native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.free(ctx, p)
}

func (m *Module) free(ctx context.Context, p native.Pointer) error {
	_, err := m.call(ctx, fnFree, api.EncodeU32(uint32(p)))
	return err
}

func (m *Module) WriteString(ctx context.Context, p native.Pointer, s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	return m.writeString(p, s)
}

func (m *Module) ReadString(ctx context.Context, p native.Pointer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return "", err
	}
	return m.readString(p)
}

func (m *Module) ReadPointer(ctx context.Context, array native.Pointer, index int) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return native.Null, err
	}
	offset := uint32(array) + uint32(index)*4
	p, ok := m.guest.Memory().ReadUint32Le(offset)
	if !ok {
		return native.Null, m.outOfRange(offset, 4)
	}
	return native.Pointer(p), nil
}

func (m *Module) Version(ctx context.Context) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callPointer(ctx, fnVersion)
}

func (m *Module) PluginList(ctx context.Context, kind string) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list native.Pointer
	err := m.withStrings(ctx, []string{kind}, func(args []uint64) (err error) {
		list, err = m.callPointer(ctx, fnPluginList, args[0])
		return err
	})
	return list, err
}

func (m *Module) CreateGraph(ctx context.Context, name string, directed, strict bool) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var g native.Pointer
	err := m.withStrings(ctx, []string{name}, func(args []uint64) (err error) {
		g, err = m.callPointer(ctx, fnCreateGraph, args[0], encodeBool(directed), encodeBool(strict))
		return err
	})
	return g, err
}

func (m *Module) ReadOneGraph(ctx context.Context, src native.Pointer) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callPointer(ctx, fnReadOneGraph, api.EncodeU32(uint32(src)))
}

func (m *Module) AddNode(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	return m.addNamed(ctx, fnAddNode, g, name)
}

func (m *Module) AddEdge(ctx context.Context, g native.Pointer, tail, head string) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var e native.Pointer
	err := m.withStrings(ctx, []string{tail, head}, func(args []uint64) (err error) {
		e, err = m.callPointer(ctx, fnAddEdge, api.EncodeU32(uint32(g)), args[0], args[1])
		return err
	})
	return e, err
}

func (m *Module) AddSubgraph(ctx context.Context, g native.Pointer, name string) (native.Pointer, error) {
	return m.addNamed(ctx, fnAddSubgraph, g, name)
}

func (m *Module) addNamed(ctx context.Context, fn string, g native.Pointer, name string) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var p native.Pointer
	err := m.withStrings(ctx, []string{name}, func(args []uint64) (err error) {
		p, err = m.callPointer(ctx, fn, api.EncodeU32(uint32(g)), args[0])
		return err
	})
	return p, err
}

func (m *Module) SetDefaultGraphAttribute(ctx context.Context, g native.Pointer, name string, value native.Pointer) error {
	return m.setNamed(ctx, fnSetDefaultGraphAttr, g, name, value)
}

func (m *Module) SetDefaultNodeAttribute(ctx context.Context, g native.Pointer, name string, value native.Pointer) error {
	return m.setNamed(ctx, fnSetDefaultNodeAttr, g, name, value)
}

func (m *Module) SetDefaultEdgeAttribute(ctx context.Context, g native.Pointer, name string, value native.Pointer) error {
	return m.setNamed(ctx, fnSetDefaultEdgeAttr, g, name, value)
}

func (m *Module) SetAttribute(ctx context.Context, obj native.Pointer, name string, value native.Pointer) error {
	return m.setNamed(ctx, fnSetAttr, obj, name, value)
}

func (m *Module) setNamed(ctx context.Context, fn string, target native.Pointer, name string, value native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.assign(ctx, fn, target, name, value); err != nil {
		return err
	}
	if target == native.Null && fn != fnSetAttr {
		p := proto{fn: fn, name: name}
		if !slices.Contains(m.protos, p) {
			m.protos = append(m.protos, p)
		}
	}
	return nil
}

func (m *Module) assign(ctx context.Context, fn string, target native.Pointer, name string, value native.Pointer) error {
	return m.withStrings(ctx, []string{name}, func(args []uint64) error {
		_, err := m.call(ctx, fn, api.EncodeU32(uint32(target)), args[0], api.EncodeU32(uint32(value)))
		return err
	})
}

// clearProtos sets every recorded engine-wide default back to the empty
// string, which the engine treats as unset.
func (m *Module) clearProtos(ctx context.Context) (err error) {
	if len(m.protos) == 0 {
		return nil
	}

	var empty native.Pointer
	err = m.withStrings(ctx, []string{""}, func(args []uint64) (err error) {
		empty, err = m.callPointer(ctx, fnStringDup, api.EncodeU32(uint32(native.Null)), args[0])
		return err
	})
	if err != nil {
		return err
	}
	if empty == native.Null {
		return errOutOfMemory
	}
	defer func() {
		if _, ferr := m.call(ctx, fnStringFree, api.EncodeU32(uint32(native.Null)), api.EncodeU32(uint32(empty))); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for _, p := range m.protos {
		if err := m.assign(ctx, p.fn, native.Null, p.name, empty); err != nil {
			return fmt.Errorf("clear default %s: %w", p.name, err)
		}
	}
	m.protos = nil
	return nil
}

func (m *Module) StringDup(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return m.addNamed(ctx, fnStringDup, g, s)
}

func (m *Module) StringDupHTML(ctx context.Context, g native.Pointer, s string) (native.Pointer, error) {
	return m.addNamed(ctx, fnStringDupHTML, g, s)
}

func (m *Module) StringFree(ctx context.Context, g native.Pointer, s native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnStringFree, api.EncodeU32(uint32(g)), api.EncodeU32(uint32(s)))
	return err
}

func (m *Module) SetYInvert(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnSetYInvert, encodeBool(on))
	return err
}

func (m *Module) SetReduce(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnSetReduce, encodeBool(on))
	return err
}

func (m *Module) CreateContext(ctx context.Context) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callPointer(ctx, fnCreateContext)
}

func (m *Module) ResetErrors(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnResetErrors)
	return err
}

func (m *Module) Layout(ctx context.Context, c, g native.Pointer, engine string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var code int
	err := m.withStrings(ctx, []string{engine}, func(args []uint64) error {
		ret, err := m.call(ctx, fnLayout, api.EncodeU32(uint32(c)), api.EncodeU32(uint32(g)), args[0])
		code = int(api.DecodeI32(ret))
		return err
	})
	return code, err
}

func (m *Module) Render(ctx context.Context, c, g native.Pointer, format string) (native.Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out native.Pointer
	err := m.withStrings(ctx, []string{format}, func(args []uint64) (err error) {
		out, err = m.callPointer(ctx, fnRender, api.EncodeU32(uint32(c)), api.EncodeU32(uint32(g)), args[0])
		return err
	})
	return out, err
}

func (m *Module) FreeLayout(ctx context.Context, c, g native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnFreeLayout, api.EncodeU32(uint32(c)), api.EncodeU32(uint32(g)))
	return err
}

func (m *Module) FreeGraph(ctx context.Context, g native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnFreeGraph, api.EncodeU32(uint32(g)))
	return err
}

func (m *Module) FreeContext(ctx context.Context, c native.Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.call(ctx, fnFreeContext, api.EncodeU32(uint32(c)))
	return err
}

func (m *Module) FS() native.FileSystem { return m.root }

// Reset clears diagnostics and engine-wide default attributes. An aborted
// guest is closed and instantiated again from the compiled module, which
// discards all of its state.
func (m *Module) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if !m.aborted {
		err := m.clearProtos(ctx)
		m.diag.Reset()
		if err == nil {
			return nil
		}
		m.cfg.logger.Debug("clear engine defaults", "err", err)
	}

	m.diag.Reset()
	return m.restart(ctx)
}

func (m *Module) restart(ctx context.Context) error {
	if m.guest != nil {
		if err := m.guest.Close(ctx); err != nil {
			m.cfg.logger.Debug("close guest", "err", err)
		}
		m.guest = nil
	}
	m.aborted = true
	m.protos = nil
	if err := m.instantiate(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	m.cfg.logger.Debug("wasm engine restarted")
	return nil
}

func (m *Module) Diagnostics() (tokens, lines []string) {
	return m.diag.Tokens(), m.diag.Lines()
}

// Close releases the runtime, the compilation cache and a private root.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.release(ctx)
}

func (m *Module) release(ctx context.Context) error {
	var errs []error
	if err := m.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if m.cache != nil {
		if err := m.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if m.ownRoot && m.root != nil {
		if err := m.root.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encodeBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
