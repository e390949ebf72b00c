package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/pkg/events"
	"surgical-review-be/pkg/store"

	"github.com/jung-kurt/gofpdf"
)

// ErrNoTranscript refuses an export before the video has been transcribed.
// No flag is touched and no rendering happens in that case.
var ErrNoTranscript = errors.New("no transcript available, parse the video first")

// RenderError marks a failed render. Terminal for that export attempt only;
// the export flag is cleared and the user may retry.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("report render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ExportFailedNoticeText is surfaced when a render attempt fails.
const ExportFailedNoticeText = "Report export failed, please retry"

const reportTitle = "Surgical Review Report"

// Artifact is the downloadable report document.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Assembler captures the current session state into a paginated PDF: the
// client-side snapshot of the composed review (when provided) followed by a
// textual summary block.
type Assembler struct {
	store   *store.Store
	noticer events.Noticer
	log     logger.ILogger
	now     func() time.Time
}

func New(st *store.Store, noticer events.Noticer, log logger.ILogger) *Assembler {
	return &Assembler{
		store:   st,
		noticer: noticer,
		log:     log,
		now:     time.Now,
	}
}

// Export renders the report. snapshotPNG is the PNG capture of the composed
// session view supplied by the client; it may be empty, in which case the
// report is text-only. The export flag is cleared on every path.
func (a *Assembler) Export(snapshotPNG []byte) (*Artifact, error) {
	session := a.store.State()
	if session.Transcript == "" {
		return nil, ErrNoTranscript
	}

	a.store.Dispatch(store.SetLoading{Key: store.LoadingExport, Value: true})
	defer a.store.Dispatch(store.SetLoading{Key: store.LoadingExport, Value: false})

	data, err := a.render(session, snapshotPNG)
	if err != nil {
		a.noticer.Notice(events.NoticeError, ExportFailedNoticeText)
		a.log.Error("Report", "Render failed", map[string]interface{}{"error": err.Error()})
		return nil, &RenderError{Err: err}
	}

	artifact := &Artifact{
		FileName:    fmt.Sprintf("surgical-review-report_%s.pdf", a.now().Format("2006-01-02")),
		ContentType: "application/pdf",
		Data:        data,
	}
	a.noticer.Notice(events.NoticeSuccess, "Report exported")
	a.log.Info("Report", "Report exported", map[string]interface{}{
		"file_name": artifact.FileName,
		"bytes":     len(data),
	})
	return artifact, nil
}

func (a *Assembler) render(session store.Session, snapshotPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	y := 10.0
	if len(snapshotPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		info := pdf.RegisterImageOptionsReader("session-snapshot", opts, bytes.NewReader(snapshotPNG))
		if pdf.Err() {
			return nil, pdf.Error()
		}
		const imgWidth = 190.0
		imgHeight := info.Height() * imgWidth / info.Width()
		pdf.ImageOptions("session-snapshot", 10, y, imgWidth, imgHeight, false, opts, 0, "")
		y += imgHeight + 15
	}

	videoName := "unknown"
	if session.Video != nil {
		videoName = session.Video.FileName
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(10, y)
	pdf.CellFormat(190, 10, reportTitle, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	summary := []string{
		fmt.Sprintf("Generated at: %s", a.now().Format("2006-01-02 15:04:05")),
		fmt.Sprintf("Video file: %s", videoName),
		fmt.Sprintf("Chat messages: %d", len(session.Messages)),
		fmt.Sprintf("Reference documents: %d", len(session.References)),
	}
	pdf.SetX(10)
	for _, line := range summary {
		pdf.CellFormat(190, 8, line, "", 1, "L", false, 0, "")
		pdf.SetX(10)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
