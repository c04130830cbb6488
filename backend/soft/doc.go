// Package soft provides a pure-Go CPU backend for the gfx context.
//
// Every resource lives in ordinary Go memory, so the backend works without a
// GPU, a window system or cgo. It is the fallback the Target Selector picks
// when no GPU backend can open a device, and the backend the test suites run
// against.
//
// # What it executes
//
// Uploads, readback, clears and every copy operation are carried out for
// real. Draw and dispatch calls are validated (bound shaders, input layout,
// vertex and index buffer bounds) and recorded with a snapshot of the
// pipeline state, but no rasterization takes place:
//
//	dev := soft.NewDevice("test")
//	// ... bind state through dev.Commands(), issue draws ...
//	for _, d := range dev.Draws() {
//	    fmt.Println(d.Topology, d.VertexCount, d.Rasterizer.Cull)
//	}
//
// # Sharing
//
// Textures and buffers export share handles that any soft device in the
// process can open. The opened resource aliases the same memory.
//
// # Presentation
//
// Swap chains rotate through BufferCount back buffers and composite each
// presented buffer (or only its damage rectangles) into a persistent image
// returned by SwapChain.Presented. With more than one buffer the back buffer
// does not keep its contents across Present, so NeedsShadowBuffer reports
// true and partial updates go through the window's shadow copy.
//
// # Registration
//
// Importing the package registers it as "soft":
//
//	import _ "github.com/gogpu/gfx/backend/soft"
package soft
