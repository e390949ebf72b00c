package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"surgical-review-be/internal/dto"
	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/internal/repository/memory"
	"surgical-review-be/pkg/llm"
	"surgical-review-be/pkg/mediaparse"
	"surgical-review-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
)

type fakeMediaBackend struct {
	statusCalls atomic.Int32
	readyAfter  int32
	transcript  string
}

func (b *fakeMediaBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/uploadVideo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"taskId":"t1","url":"http://cdn/case.mp4","fileName":"case.mp4"}`))
	})
	mux.HandleFunc("/uploadReference", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fileId":"f1","fileName":"guideline.pdf"}`))
	})
	mux.HandleFunc("/parseResult", func(w http.ResponseWriter, r *http.Request) {
		if b.statusCalls.Add(1) <= b.readyAfter {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"transcript": b.transcript})
	})
	return mux
}

type stubLLM struct {
	answer string
}

func (s *stubLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return s.answer, nil
}

func newTestService(t *testing.T, backend *fakeMediaBackend, provider llm.LLMProvider) (ISessionService, *gochannel.GoChannel) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	svc := NewSessionService(
		memory.NewSessionRepository(time.Hour),
		mediaparse.NewClient(srv.URL, 5*time.Second),
		provider,
		pubSub,
		logger.NopLogger{},
		2*time.Millisecond,
		10,
	)
	return svc, pubSub
}

func TestUploadVideoStartsPollingAndDeliversTranscript(t *testing.T) {
	backend := &fakeMediaBackend{readyAfter: 3, transcript: "case notes"}
	svc, _ := newTestService(t, backend, &stubLLM{answer: "unused"})
	ctx := context.Background()

	res, err := svc.UploadVideo(ctx, "s1", "case.mp4", strings.NewReader("mp4"))
	assert.NoError(t, err)
	assert.Equal(t, "t1", res.TaskId)

	state, _ := svc.GetState(ctx, "s1")
	assert.Equal(t, "case.mp4", state.Video.FileName)

	assert.Eventually(t, func() bool {
		state, _ := svc.GetState(ctx, "s1")
		return state.Transcript == "case notes" && !state.Loading[store.LoadingParse]
	}, time.Second, 2*time.Millisecond)
}

func TestSendChatAppendsSettledExchange(t *testing.T) {
	backend := &fakeMediaBackend{readyAfter: 0, transcript: "case notes"}
	svc, _ := newTestService(t, backend, &stubLLM{answer: "laparoscopic"})
	ctx := context.Background()

	res, err := svc.SendChat(ctx, "s1", &dto.SendChatRequest{Question: "what was the approach?"})
	assert.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, "laparoscopic", res.Reply.Content)
	assert.False(t, res.Reply.Pending)

	state, _ := svc.GetState(ctx, "s1")
	assert.Len(t, state.Messages, 2)
	assert.Equal(t, "what was the approach?", state.Messages[0].Content)
	assert.Equal(t, "laparoscopic", state.Messages[1].Content)
	assert.False(t, state.Loading[store.LoadingChat])
}

func TestReferencesUploadAndRemove(t *testing.T) {
	backend := &fakeMediaBackend{}
	svc, _ := newTestService(t, backend, &stubLLM{})
	ctx := context.Background()

	res, err := svc.UploadReference(ctx, "s1", "guideline.pdf", strings.NewReader("pdf"))
	assert.NoError(t, err)
	assert.Equal(t, "f1", res.FileId)

	state, _ := svc.GetState(ctx, "s1")
	assert.Len(t, state.References, 1)

	assert.NoError(t, svc.RemoveReference(ctx, "s1", "f1"))
	state, _ = svc.GetState(ctx, "s1")
	assert.Empty(t, state.References)
}

func TestSessionEventsReachTheBus(t *testing.T) {
	backend := &fakeMediaBackend{}
	svc, pubSub := newTestService(t, backend, &stubLLM{answer: "ok"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, SessionEventsTopic)
	assert.NoError(t, err)

	var mu sync.Mutex
	var types []string
	go func() {
		for msg := range messages {
			var envelope struct {
				Type string `json:"type"`
				Data struct {
					SessionId string `json:"session_id"`
				} `json:"data"`
			}
			if json.Unmarshal(msg.Payload, &envelope) == nil {
				mu.Lock()
				types = append(types, envelope.Type+"/"+envelope.Data.SessionId)
				mu.Unlock()
			}
			msg.Ack()
		}
	}()

	_, err = svc.SendChat(ctx, "s1", &dto.SendChatRequest{Question: "hello"})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		count := 0
		for _, tp := range types {
			if tp == "SESSION_UPDATED/s1" {
				count++
			}
		}
		// user msg + placeholder + flag up + resolve + flag down
		return count >= 5
	}, time.Second, 5*time.Millisecond)
}

func TestStalledSubscriberDoesNotBlockSessionMutations(t *testing.T) {
	backend := &fakeMediaBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	// Buffered like the production bus. The subscriber below never reads its
	// channel; store dispatches must still complete.
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewStdLogger(false, false))
	svc := NewSessionService(
		memory.NewSessionRepository(time.Hour),
		mediaparse.NewClient(srv.URL, 5*time.Second),
		&stubLLM{answer: "ok"},
		pubSub,
		logger.NopLogger{},
		2*time.Millisecond,
		10,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := pubSub.Subscribe(ctx, SessionEventsTopic)
	assert.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			if _, err := svc.SendChat(ctx, "s1", &dto.SendChatRequest{Question: "q"}); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session mutations blocked behind an unread event subscriber")
	}

	state, _ := svc.GetState(ctx, "s1")
	assert.Len(t, state.Messages, 20)
}

func TestExportRequiresTranscript(t *testing.T) {
	backend := &fakeMediaBackend{}
	svc, _ := newTestService(t, backend, &stubLLM{})
	ctx := context.Background()

	artifact, err := svc.ExportReport(ctx, "s1", nil)
	assert.Error(t, err)
	assert.Nil(t, artifact)

	state, _ := svc.GetState(ctx, "s1")
	assert.False(t, state.Loading[store.LoadingExport])
}

func TestCloseSessionDropsState(t *testing.T) {
	backend := &fakeMediaBackend{readyAfter: 1000}
	svc, _ := newTestService(t, backend, &stubLLM{})
	ctx := context.Background()

	_, err := svc.UploadVideo(ctx, "s1", "case.mp4", strings.NewReader("mp4"))
	assert.NoError(t, err)

	svc.CloseSession("s1")

	// A fresh runtime appears under the same id, empty.
	state, _ := svc.GetState(ctx, "s1")
	assert.Nil(t, state.Video)
	assert.Empty(t, state.Messages)
}
