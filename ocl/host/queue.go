package host

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/sgstream/dtypes"
	"github.com/gomlx/sgstream/ocl"
	"github.com/pkg/errors"
)

// queue implements ocl.Queue for one virtual device.
type queue struct {
	spec     DeviceSpec
	name     string
	launches int
	clock    uint64
	released bool
}

type memory struct {
	data     []byte
	released bool
}

func (m *memory) SizeBytes() int {
	return len(m.data)
}

type kernel struct {
	entryPoint string
	fn         KernelFunc
	args       []any
	reqdLocal  int
	released   bool
}

func (k *kernel) EntryPoint() string {
	return k.entryPoint
}

type event struct {
	start, end uint64
	err        error
}

func (e *event) Wait() error {
	return e.err
}

func (e *event) Profile() (start, end uint64, err error) {
	return e.start, e.end, nil
}

func (e *event) Release() error {
	return nil
}

func (q *queue) checkReleased() error {
	if q.released {
		return ocl.StatusErrorf(ocl.StatusInvalidCommandQueue, "host: queue %s already released", q.name)
	}
	return nil
}

func (q *queue) CreateBuffer(sizeBytes int) (ocl.Mem, error) {
	if err := q.checkReleased(); err != nil {
		return nil, err
	}
	if sizeBytes <= 0 {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidBufferSize, "host: invalid buffer size %d", sizeBytes)
	}
	if q.spec.MaxAllocBytes > 0 && sizeBytes > q.spec.MaxAllocBytes {
		return nil, ocl.StatusErrorf(ocl.StatusMemObjectAllocationFailure,
			"host: allocation of %d bytes exceeds the %d bytes limit of %s", sizeBytes, q.spec.MaxAllocBytes, q.name)
	}
	// Backed by float64 so the memory is 8-byte aligned for any element type.
	words := make([]float64, (sizeBytes+7)/8)
	return &memory{data: dtypes.ToRaw(words)[:sizeBytes]}, nil
}

func (q *queue) memory(mem ocl.Mem) (*memory, error) {
	m, ok := mem.(*memory)
	if !ok || m == nil || m.released {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidMemObject, "host: invalid or released memory object")
	}
	return m, nil
}

func (q *queue) WriteBuffer(mem ocl.Mem, data []byte) error {
	if err := q.checkReleased(); err != nil {
		return err
	}
	m, err := q.memory(mem)
	if err != nil {
		return err
	}
	if len(data) > len(m.data) {
		return ocl.StatusErrorf(ocl.StatusInvalidValue, "host: writing %d bytes to a buffer of %d bytes", len(data), len(m.data))
	}
	copy(m.data, data)
	return nil
}

func (q *queue) ReadBuffer(mem ocl.Mem, data []byte) error {
	if err := q.checkReleased(); err != nil {
		return err
	}
	m, err := q.memory(mem)
	if err != nil {
		return err
	}
	if len(data) > len(m.data) {
		return ocl.StatusErrorf(ocl.StatusInvalidValue, "host: reading %d bytes from a buffer of %d bytes", len(data), len(m.data))
	}
	copy(data, m.data)
	return nil
}

func (q *queue) ReleaseBuffer(mem ocl.Mem) error {
	m, err := q.memory(mem)
	if err != nil {
		return err
	}
	m.released = true
	m.data = nil
	return nil
}

var reqdWorkGroupSizeRegexp = regexp.MustCompile(`reqd_work_group_size\(\s*(\d+)`)

func (q *queue) BuildKernel(source, entryPoint, options string) (ocl.KernelObject, error) {
	if err := q.checkReleased(); err != nil {
		return nil, err
	}
	if !strings.Contains(source, "void "+entryPoint+"(") {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidKernelName, "host: source doesn't declare kernel %q", entryPoint)
	}
	factory, err := lookupKernel(entryPoint)
	if err != nil {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidKernelName, "host: %v", err)
	}
	fn, err := factory(newProgram(source, entryPoint, options))
	if err != nil {
		return nil, ocl.StatusErrorf(ocl.StatusBuildProgramFailure, "host: failed to build kernel %q: %v", entryPoint, err)
	}
	k := &kernel{entryPoint: entryPoint, fn: fn}
	if match := reqdWorkGroupSizeRegexp.FindStringSubmatch(source); match != nil {
		k.reqdLocal, _ = strconv.Atoi(match[1])
	}
	return k, nil
}

func (q *queue) kernel(object ocl.KernelObject) (*kernel, error) {
	k, ok := object.(*kernel)
	if !ok || k == nil || k.released {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidKernel, "host: invalid or released kernel")
	}
	return k, nil
}

const maxKernelArgs = 64

func (q *queue) SetKernelArg(object ocl.KernelObject, index int, value any) error {
	k, err := q.kernel(object)
	if err != nil {
		return err
	}
	if index < 0 || index >= maxKernelArgs {
		return ocl.StatusErrorf(ocl.StatusInvalidArgIndex, "host: invalid argument index %d", index)
	}
	switch v := value.(type) {
	case int32, uint32:
	case ocl.Mem:
		if _, err := q.memory(v); err != nil {
			return err
		}
	default:
		return ocl.StatusErrorf(ocl.StatusInvalidArgValue, "host: unsupported argument type %T for argument #%d", value, index)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	return nil
}

func (q *queue) EnqueueNDRange(object ocl.KernelObject, global, local int) (ocl.Event, error) {
	if err := q.checkReleased(); err != nil {
		return nil, err
	}
	k, err := q.kernel(object)
	if err != nil {
		return nil, err
	}
	if global <= 0 {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidGlobalWorkSize, "host: invalid global work size %d", global)
	}
	if local <= 0 || local > q.spec.MaxWorkGroupSize || global%local != 0 {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidWorkGroupSize,
			"host: invalid local work size %d for global work size %d (max %d)", local, global, q.spec.MaxWorkGroupSize)
	}
	if k.reqdLocal > 0 && local != k.reqdLocal {
		return nil, ocl.StatusErrorf(ocl.StatusInvalidWorkGroupSize,
			"host: kernel %q requires work-group size %d, got %d", k.entryPoint, k.reqdLocal, local)
	}
	for ii, arg := range k.args {
		if arg == nil {
			return nil, ocl.StatusErrorf(ocl.StatusInvalidKernelArgs, "host: argument #%d of kernel %q not set", ii, k.entryPoint)
		}
	}

	q.launches++
	ev := &event{start: q.clock}
	if q.spec.FailAtLaunch > 0 && q.launches >= q.spec.FailAtLaunch {
		ev.err = ocl.StatusErrorf(ocl.StatusOutOfResources, "host: launch #%d of kernel %q on %s failed (injected fault)",
			q.launches, k.entryPoint, q.name)
		ev.end = ev.start
		return ev, nil
	}

	launch := &Launch{Global: global, Local: local, Args: k.args, parallelism: q.spec.Parallelism}
	start := time.Now()
	err = k.fn(launch)
	elapsed := float64(time.Since(start).Nanoseconds())
	if err != nil {
		ev.err = errors.WithMessagef(err, "host: kernel %q failed on %s", k.entryPoint, q.name)
	}
	if q.spec.NanosPerWorkItem > 0 {
		elapsed = float64(global) * q.spec.NanosPerWorkItem
	}
	q.clock += uint64(elapsed * q.spec.Slowdown)
	ev.end = q.clock
	return ev, nil
}

func (q *queue) ReleaseKernel(object ocl.KernelObject) error {
	k, err := q.kernel(object)
	if err != nil {
		return err
	}
	k.released = true
	k.args = nil
	return nil
}

func (q *queue) Finish() error {
	return q.checkReleased()
}

func (q *queue) Release() error {
	// Idempotent.
	q.released = true
	return nil
}
