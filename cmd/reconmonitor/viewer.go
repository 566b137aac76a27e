package main

import (
	"bytes"
	"image"
	"image/png"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/apsbeam/streamrecon/internal/isosurface"
	"github.com/apsbeam/streamrecon/internal/reconserver"
)

// viewer is an ebiten.Game that renders whatever payload the server
// last broadcast: the preview mid-slice or a requested slice as a PNG
// image, with the iso-surface mesh (when present) drawn as an
// orthographic wireframe overlay. Grounded on video_backend_ebiten.go's
// EbitenOutput: a frame buffer behind a mutex, refreshed from a producer
// goroutine and blitted in Draw, plus its Update-driven quit handling.
type viewer struct {
	server *reconserver.Server
	stats  *stats

	mu      sync.RWMutex
	img     *ebiten.Image
	mesh    []isosurface.Triangle
	kind    reconserver.PayloadKind
	closing func()
}

func newViewer(server *reconserver.Server, st *stats, closing func()) *viewer {
	v := &viewer{server: server, stats: st, closing: closing}
	go v.drain()
	return v
}

// drain ranges over the server's broadcast channel and decodes each
// payload's PNG into an ebiten.Image, the consumer side of
// reconserver.Server.GetReconData.
func (v *viewer) drain() {
	for p := range v.server.GetReconData() {
		if p.Kind == reconserver.PayloadSlice {
			v.stats.slicePayloads.Add(1)
		}
		if len(p.PNG) == 0 {
			continue
		}
		decoded, err := png.Decode(bytes.NewReader(p.PNG))
		if err != nil {
			continue
		}
		img := ebiten.NewImageFromImage(decoded)
		v.mu.Lock()
		v.img = img
		v.mesh = p.Mesh
		v.kind = p.Kind
		v.mu.Unlock()
	}
}

func (v *viewer) Update() error {
	if ebiten.IsWindowBeingClosed() || inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		if v.closing != nil {
			v.closing()
		}
		return ebiten.Termination
	}
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	v.mu.RLock()
	img, mesh, kind := v.img, v.mesh, v.kind
	v.mu.RUnlock()

	screen.Fill(image.Black.C)
	if img != nil {
		op := &ebiten.DrawImageOptions{}
		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		iw, ih := img.Bounds().Dx(), img.Bounds().Dy()
		if iw > 0 && ih > 0 {
			scale := float64(sw) / float64(iw)
			if altScale := float64(sh) / float64(ih); altScale < scale {
				scale = altScale
			}
			op.GeoM.Scale(scale, scale)
		}
		screen.DrawImage(img, op)
	}

	drawWireframe(screen, mesh)

	label := "preview"
	if kind == reconserver.PayloadSlice {
		label = "slice"
	}
	ebitenutil.DebugPrint(screen, "streamrecon monitor — "+label+" (esc/q to quit)")
}

func (v *viewer) Layout(_, _ int) (int, int) {
	return 640, 480
}

// drawWireframe projects each triangle's edges onto the viewport with a
// fixed isometric-style orthographic transform (x' = x - z/2, y' = y -
// z/2) and draws them with ebitenutil.DrawLine, the simplest overlay
// that gives a sense of the extracted surface without a 3D renderer.
func drawWireframe(screen *ebiten.Image, mesh []isosurface.Triangle) {
	const scale = 200
	const ox, oy = 420, 120
	project := func(v isosurface.Vertex) (float64, float64) {
		x := v.Pos[0] - v.Pos[2]*0.5
		y := v.Pos[1] - v.Pos[2]*0.5
		return ox + x*scale, oy + y*scale
	}
	for _, t := range mesh {
		ax, ay := project(t.V[0])
		bx, by := project(t.V[1])
		cx, cy := project(t.V[2])
		ebitenutil.DrawLine(screen, ax, ay, bx, by, wireColor)
		ebitenutil.DrawLine(screen, bx, by, cx, cy, wireColor)
		ebitenutil.DrawLine(screen, cx, cy, ax, ay, wireColor)
	}
}

var wireColor = image.White.C
