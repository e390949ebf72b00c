package report

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

type recordingNoticer struct {
	mu      sync.Mutex
	notices []string
}

func (r *recordingNoticer) Notice(level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, level+": "+text)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	assert.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestAssembler() (*Assembler, *store.Store, *recordingNoticer) {
	st := store.New()
	noticer := &recordingNoticer{}
	return New(st, noticer, logger.NopLogger{}), st, noticer
}

func TestExportWithoutTranscriptIsRefused(t *testing.T) {
	a, st, noticer := newTestAssembler()

	var loadingActions []store.Action
	st.Subscribe(func(act store.Action, _ store.Session) {
		if _, ok := act.(store.SetLoading); ok {
			loadingActions = append(loadingActions, act)
		}
	})

	artifact, err := a.Export(nil)
	assert.ErrorIs(t, err, ErrNoTranscript)
	assert.Nil(t, artifact)
	assert.Empty(t, loadingActions, "export flag must not be touched")
	assert.False(t, st.State().Loading[store.LoadingExport])
	assert.Empty(t, noticer.notices)
}

func TestExportRendersSummaryReport(t *testing.T) {
	a, st, _ := newTestAssembler()
	st.Dispatch(store.SetVideo{Video: store.VideoRef{TaskId: "t1", FileName: "case.mp4"}})
	st.Dispatch(store.SetTranscript{Transcript: "case notes"})
	st.Dispatch(store.AddReference{Item: store.ReferenceItem{FileId: "f1", FileName: "guideline.pdf"}})

	artifact, err := a.Export(nil)
	assert.NoError(t, err)
	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.Regexp(t, `^surgical-review-report_\d{4}-\d{2}-\d{2}\.pdf$`, artifact.FileName)
	assert.True(t, bytes.HasPrefix(artifact.Data, []byte("%PDF")), "artifact should be a PDF document")
	assert.False(t, st.State().Loading[store.LoadingExport])
}

func TestExportEmbedsSnapshot(t *testing.T) {
	a, st, _ := newTestAssembler()
	st.Dispatch(store.SetTranscript{Transcript: "case notes"})

	withSnapshot, err := a.Export(testPNG(t))
	assert.NoError(t, err)

	withoutSnapshot, err := a.Export(nil)
	assert.NoError(t, err)

	assert.Greater(t, len(withSnapshot.Data), len(withoutSnapshot.Data),
		"embedding the snapshot should grow the document")
}

func TestExportRenderFailureClearsFlagAndNotifies(t *testing.T) {
	a, st, noticer := newTestAssembler()
	st.Dispatch(store.SetTranscript{Transcript: "case notes"})

	var flagValues []bool
	st.Subscribe(func(act store.Action, _ store.Session) {
		if sl, ok := act.(store.SetLoading); ok && sl.Key == store.LoadingExport {
			flagValues = append(flagValues, sl.Value)
		}
	})

	artifact, err := a.Export([]byte("definitely not a png"))
	assert.Nil(t, artifact)

	var renderErr *RenderError
	assert.True(t, errors.As(err, &renderErr))

	assert.Equal(t, []bool{true, false}, flagValues, "flag raised then cleared on the failure path")
	assert.False(t, st.State().Loading[store.LoadingExport])
	assert.Contains(t, noticer.notices, "error: "+ExportFailedNoticeText)
}
