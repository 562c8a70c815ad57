//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"
	"unsafe"

	"github.com/casperleerink/circular-music/internal/scene"
	"github.com/casperleerink/circular-music/mixer"
	"github.com/casperleerink/circular-music/preset"
	"github.com/casperleerink/circular-music/registry"
	"github.com/casperleerink/circular-music/render"
)

const maxBlockFrames = 128

var (
	globalParams   *preset.Params
	globalRuntime  *render.Offline
	globalMixer    *mixer.Mixer
	globalRegistry *registry.Registry
	outputBuffer   []float32
)

func main() {
	// Keep program running
	c := make(chan struct{})

	js.Global().Set("wasmInit", js.FuncOf(wasmInit))
	js.Global().Set("wasmSetParams", js.FuncOf(wasmSetParams))
	js.Global().Set("wasmLoadSample", js.FuncOf(wasmLoadSample))
	js.Global().Set("wasmProcessBlock", js.FuncOf(wasmProcessBlock))
	js.Global().Set("wasmGetMemoryBuffer", js.FuncOf(wasmGetMemoryBuffer))

	println("WASM circular-music module loaded")
	<-c
}

func wasmInit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	params := preset.NewDefaultParams()
	params.SampleRate = args[0].Int()
	// Samples arrive through wasmLoadSample; there is no file system.
	params.Samples = nil
	params.RoomIRPath = ""

	rt, m, reg, err := scene.Start(params, nil)
	if err != nil {
		println("Init failed:", err.Error())
		return nil
	}
	globalParams, globalRuntime, globalMixer, globalRegistry = params, rt, m, reg
	outputBuffer = make([]float32, maxBlockFrames*2)

	println("Scene initialized at", params.SampleRate, "Hz")
	return nil
}

// wasmSetParams applies a partial preset given as a JSON string.
func wasmSetParams(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalMixer == nil {
		return nil
	}
	var f preset.File
	if err := json.Unmarshal([]byte(args[0].String()), &f); err != nil {
		return err.Error()
	}
	next := *globalParams
	if err := preset.ApplyFile(&next, &f); err != nil {
		return err.Error()
	}
	next.SampleRate = globalParams.SampleRate
	next.Samples = nil
	next.RoomIRPath = ""
	if err := scene.Apply(&next, globalMixer, globalRegistry); err != nil {
		return err.Error()
	}
	globalParams = &next
	return nil
}

// wasmLoadSample registers a mono Float32Array under a virtual path and
// resubmits the scene so sources waiting on it pick it up.
func wasmLoadSample(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalRegistry == nil {
		return nil
	}
	path := args[0].String()
	arr := args[1]
	n := arr.Get("length").Int()
	if n == 0 {
		println("Sample data is empty:", path)
		return nil
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(arr.Index(i).Float())
	}
	if err := globalRegistry.Register(path, data); err != nil {
		return err.Error()
	}
	if err := globalRegistry.Sync(globalRuntime); err != nil {
		return err.Error()
	}
	if err := scene.Apply(globalParams, globalMixer, globalRegistry); err != nil {
		return err.Error()
	}
	println("Sample loaded:", path, n, "frames")
	return nil
}

func wasmProcessBlock(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalRuntime == nil {
		return 0
	}

	numFrames := args[0].Int()
	if numFrames > maxBlockFrames {
		numFrames = maxBlockFrames
	}

	output := globalRuntime.Process(numFrames)
	copy(outputBuffer, output)

	// Drain analysis events; the page polls levels separately.
	for len(globalRuntime.Events()) > 0 {
		<-globalRuntime.Events()
	}

	ptr := &outputBuffer[0]
	return js.ValueOf(uintptr(unsafe.Pointer(ptr)))
}

func wasmGetMemoryBuffer(this js.Value, args []js.Value) interface{} {
	return js.Global().Get("Go").Get("_inst").Get("exports").Get("mem").Get("buffer")
}
