// reconmonitor is a local debug viewer: an ebiten window showing the
// live preview/slice image and extracted iso-surface wireframe, plus a
// terminal status line with ingest rate, ring occupancy, and GPU buffer
// flip counts. The real RPC/network transport between a reconstruction
// service and a remote viewer is out of scope (§1 Non-goals), so this
// binary is self-contained: it builds its own small copy of the
// ingest-to-preview pipeline and watches that server's GetReconData
// channel directly in-process, the same relationship video_backend and
// terminal_host have to the frontend that owns them.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, st := runPipeline(ctx)

	var closeOnce sync.Once
	requestClose := func() {
		closeOnce.Do(stop)
	}

	db := newDashboard(st, requestClose)
	db.Start()
	defer db.Stop()

	v := newViewer(server, st, requestClose)

	ebiten.SetWindowSize(640, 480)
	ebiten.SetWindowTitle("streamrecon monitor")
	ebiten.SetWindowResizable(true)

	go func() {
		<-ctx.Done()
	}()

	if err := ebiten.RunGame(v); err != nil && err != ebiten.Termination {
		os.Stderr.WriteString("reconmonitor: " + err.Error() + "\n")
	}
	requestClose()
}
