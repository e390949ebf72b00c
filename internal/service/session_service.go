package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"surgical-review-be/internal/dto"
	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/internal/repository/memory"
	"surgical-review-be/pkg/conversation"
	"surgical-review-be/pkg/events"
	"surgical-review-be/pkg/llm"
	"surgical-review-be/pkg/mediaparse"
	"surgical-review-be/pkg/poller"
	"surgical-review-be/pkg/report"
	"surgical-review-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SessionEventsTopic is the in-process bus topic carrying session events to
// the websocket relay.
const SessionEventsTopic = "session.events"

// ISessionService defines the session workflow surface
type ISessionService interface {
	GetState(ctx context.Context, sessionId string) (store.Session, error)
	UploadVideo(ctx context.Context, sessionId, fileName string, file io.Reader) (*dto.UploadVideoResponse, error)
	UploadReference(ctx context.Context, sessionId, fileName string, file io.Reader) (*dto.UploadReferenceResponse, error)
	RemoveReference(ctx context.Context, sessionId, fileId string) error
	SendChat(ctx context.Context, sessionId string, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	ExportReport(ctx context.Context, sessionId string, snapshotPNG []byte) (*report.Artifact, error)
	CloseSession(sessionId string)
}

// sessionService owns one runtime (store + poller + orchestrator + assembler)
// per active session and coordinates every async workflow through it.
type sessionService struct {
	sessionRepo *memory.SessionRepository
	media       *mediaparse.Client
	llmProvider llm.LLMProvider
	publisher   message.Publisher
	log         logger.ILogger

	pollInterval    time.Duration
	pollMaxAttempts int
	chatOpts        []llm.Option

	mu sync.Mutex // guards runtime creation
}

func NewSessionService(
	sessionRepo *memory.SessionRepository,
	media *mediaparse.Client,
	llmProvider llm.LLMProvider,
	publisher message.Publisher,
	log logger.ILogger,
	pollInterval time.Duration,
	pollMaxAttempts int,
	chatOpts ...llm.Option,
) ISessionService {
	return &sessionService{
		sessionRepo:     sessionRepo,
		media:           media,
		llmProvider:     llmProvider,
		publisher:       publisher,
		log:             log,
		pollInterval:    pollInterval,
		pollMaxAttempts: pollMaxAttempts,
		chatOpts:        chatOpts,
	}
}

// sessionRuntime bundles the store with the async components that feed it.
type sessionRuntime struct {
	id           string
	store        *store.Store
	poller       *poller.Poller
	orchestrator *conversation.Orchestrator
	assembler    *report.Assembler
}

// Close tears down background work when the session expires or is deleted.
func (rt *sessionRuntime) Close() {
	rt.poller.Stop()
}

// sessionNoticer routes component notices onto the session event bus.
type sessionNoticer struct {
	svc       *sessionService
	sessionId string
}

func (n *sessionNoticer) Notice(level, text string) {
	n.svc.publish(events.NewNotice(n.sessionId, level, text))
}

func (s *sessionService) runtime(sessionId string) *sessionRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.sessionRepo.Get(sessionId); found {
		return existing.(*sessionRuntime)
	}

	st := store.New()
	noticer := &sessionNoticer{svc: s, sessionId: sessionId}
	rt := &sessionRuntime{
		id:           sessionId,
		store:        st,
		poller:       poller.New(st, s.media, noticer, s.log, s.pollInterval, s.pollMaxAttempts),
		orchestrator: conversation.New(st, s.llmProvider, noticer, s.log, s.chatOpts...),
		assembler:    report.New(st, noticer, s.log),
	}

	// Every applied transition is mirrored onto the event bus so the client
	// sees placeholder resolution and transcript arrival without re-polling.
	st.Subscribe(func(a store.Action, next store.Session) {
		s.publish(events.NewSessionUpdated(sessionId, store.Type(a), next))
	})

	s.sessionRepo.Save(sessionId, rt)
	s.log.Info("Session", "Session runtime created", map[string]interface{}{"session_id": sessionId})
	return rt
}

func (s *sessionService) publish(event events.Event) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":        event.EventType(),
		"data":        event.Payload(),
		"occurred_at": event.Timestamp(),
	})
	if err != nil {
		s.log.Error("Session", "Failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.publisher.Publish(SessionEventsTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		s.log.Error("Session", "Failed to publish event", map[string]interface{}{"error": err.Error()})
	}
}

// GetState returns the full session snapshot, used by the client to
// re-hydrate its view.
func (s *sessionService) GetState(ctx context.Context, sessionId string) (store.Session, error) {
	return s.runtime(sessionId).store.State(), nil
}

// UploadVideo sends the video to the media backend, records the task handle
// and immediately starts transcript polling.
func (s *sessionService) UploadVideo(ctx context.Context, sessionId, fileName string, file io.Reader) (*dto.UploadVideoResponse, error) {
	rt := s.runtime(sessionId)

	rt.store.Dispatch(store.SetLoading{Key: store.LoadingUpload, Value: true})
	upload, err := s.media.UploadVideo(ctx, fileName, file)
	rt.store.Dispatch(store.SetLoading{Key: store.LoadingUpload, Value: false})
	if err != nil {
		s.publish(events.NewNotice(sessionId, events.NoticeError, "Video upload failed"))
		return nil, err
	}

	rt.store.Dispatch(store.SetVideo{Video: store.VideoRef{
		TaskId:   upload.TaskId,
		Url:      upload.Url,
		FileName: upload.FileName,
	}})

	// Replaces any prior polling run; at most one timer per session.
	rt.poller.Start(upload.TaskId)

	return &dto.UploadVideoResponse{
		TaskId:   upload.TaskId,
		Url:      upload.Url,
		FileName: upload.FileName,
	}, nil
}

// UploadReference attaches a reference document to the session.
func (s *sessionService) UploadReference(ctx context.Context, sessionId, fileName string, file io.Reader) (*dto.UploadReferenceResponse, error) {
	rt := s.runtime(sessionId)

	rt.store.Dispatch(store.SetLoading{Key: store.LoadingUpload, Value: true})
	upload, err := s.media.UploadReference(ctx, fileName, file)
	rt.store.Dispatch(store.SetLoading{Key: store.LoadingUpload, Value: false})
	if err != nil {
		s.publish(events.NewNotice(sessionId, events.NoticeError, "Reference upload failed"))
		return nil, err
	}

	item := store.ReferenceItem{
		FileId:     upload.FileId,
		FileName:   upload.FileName,
		UploadTime: time.Now(),
	}
	rt.store.Dispatch(store.AddReference{Item: item})

	return &dto.UploadReferenceResponse{
		FileId:     item.FileId,
		FileName:   item.FileName,
		UploadTime: item.UploadTime,
	}, nil
}

func (s *sessionService) RemoveReference(ctx context.Context, sessionId, fileId string) error {
	rt := s.runtime(sessionId)
	rt.store.Dispatch(store.RemoveReference{FileId: fileId})
	return nil
}

// SendChat runs one exchange to completion. A failed LLM round-trip still
// returns a settled reply (the failure text), never an error.
func (s *sessionService) SendChat(ctx context.Context, sessionId string, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	rt := s.runtime(sessionId)

	result, err := rt.orchestrator.Send(ctx, request.Question)
	if err != nil {
		return nil, err
	}

	return &dto.SendChatResponse{
		Sent:   toMessageDTO(result.Sent),
		Reply:  toMessageDTO(result.Reply),
		Failed: result.Failed,
	}, nil
}

// ExportReport renders the session into a downloadable PDF artifact.
func (s *sessionService) ExportReport(ctx context.Context, sessionId string, snapshotPNG []byte) (*report.Artifact, error) {
	rt := s.runtime(sessionId)
	return rt.assembler.Export(snapshotPNG)
}

// CloseSession destroys the runtime; eviction stops its poller.
func (s *sessionService) CloseSession(sessionId string) {
	s.sessionRepo.Delete(sessionId)
}

func toMessageDTO(m store.Message) *dto.MessageDTO {
	return &dto.MessageDTO{
		Id:        m.Id,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Pending:   m.Pending,
	}
}
