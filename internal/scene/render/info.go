package render

// Info is a read-only snapshot of the external renderer's own counters. The
// optimizer and the memory profiler fold it into their statistics; nothing
// in this module writes back to the renderer.
type Info struct {
	DrawCalls  int     `json:"draw_calls"`
	Triangles  int     `json:"triangles"`
	Geometries int     `json:"geometries"`
	Textures   int     `json:"textures"`
	Programs   int     `json:"programs"`
	FPS        float32 `json:"fps"` // recent frames per second, 0 when unknown
}

// InfoSource yields a fresh renderer counter snapshot per call.
type InfoSource interface {
	Info() Info
}
