package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/pkg/llm"
	"surgical-review-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

type stubProvider struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts [][]llm.Message
	options []llm.Options
	block   chan struct{} // when set, Chat waits until closed
}

func (s *stubProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	var applied llm.Options
	for _, opt := range opts {
		opt(&applied)
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, history)
	s.options = append(s.options, applied)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return s.answer, s.err
}

func (s *stubProvider) lastPrompt() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return nil
	}
	return s.prompts[len(s.prompts)-1]
}

type recordingNoticer struct {
	mu      sync.Mutex
	notices []string
}

func (r *recordingNoticer) Notice(level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func newTestOrchestrator(provider llm.LLMProvider) (*Orchestrator, *store.Store, *recordingNoticer) {
	st := store.New()
	noticer := &recordingNoticer{}
	return New(st, provider, noticer, logger.NopLogger{}), st, noticer
}

func TestSendAppendsPairAndResolvesPlaceholder(t *testing.T) {
	provider := &stubProvider{answer: "laparoscopic"}
	o, st, noticer := newTestOrchestrator(provider)

	st.Dispatch(store.SetTranscript{Transcript: "case notes"})
	st.Dispatch(store.AddReference{Item: store.ReferenceItem{FileId: "f1", FileName: "guideline.pdf"}})

	res, err := o.Send(context.Background(), "what was the approach?")
	assert.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, "laparoscopic", res.Reply.Content)

	s := st.State()
	assert.Len(t, s.Messages, 2)
	assert.Equal(t, store.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "what was the approach?", s.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "laparoscopic", s.Messages[1].Content)
	assert.False(t, s.Messages[1].Pending)
	assert.False(t, s.Loading[store.LoadingChat])
	assert.Empty(t, noticer.notices)

	t.Run("prompt carries transcript and reference ids", func(t *testing.T) {
		prompt := provider.lastPrompt()
		assert.Len(t, prompt, 2)
		assert.Equal(t, "system", prompt[0].Role)
		assert.Contains(t, prompt[0].Content, "case notes")
		assert.Contains(t, prompt[0].Content, "f1")
		assert.Equal(t, "user", prompt[1].Role)
		assert.Equal(t, "what was the approach?", prompt[1].Content)
	})
}

func TestSendAppliesConfiguredChatOptions(t *testing.T) {
	provider := &stubProvider{answer: "ok"}
	st := store.New()
	o := New(st, provider, &recordingNoticer{}, logger.NopLogger{}, llm.WithTemperature(0.2))

	_, err := o.Send(context.Background(), "question")
	assert.NoError(t, err)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Len(t, provider.options, 1)
	assert.InDelta(t, 0.2, provider.options[0].Temperature, 1e-9)
}

func TestSendFailureResolvesPlaceholderWithApology(t *testing.T) {
	provider := &stubProvider{err: errors.New("llm unavailable")}
	o, st, noticer := newTestOrchestrator(provider)

	res, err := o.Send(context.Background(), "question")
	assert.NoError(t, err, "a failed round-trip is not an error at the call boundary")
	assert.True(t, res.Failed)
	assert.Equal(t, FailureReplyText, res.Reply.Content)

	s := st.State()
	assert.Len(t, s.Messages, 2)
	assert.Equal(t, FailureReplyText, s.Messages[1].Content)
	assert.False(t, s.Messages[1].Pending, "no message may stay pending after settle")
	assert.False(t, s.Loading[store.LoadingChat])
	assert.Equal(t, []string{ChatFailedNoticeText}, noticer.notices)
}

func TestSendBlankQuestionIsNoOp(t *testing.T) {
	provider := &stubProvider{answer: "unused"}
	o, st, _ := newTestOrchestrator(provider)

	for _, q := range []string{"", "   ", "\n\t"} {
		res, err := o.Send(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
		assert.Nil(t, res)
	}

	assert.Empty(t, st.State().Messages)
	assert.False(t, st.State().Loading[store.LoadingChat])
}

func TestOverlappingSendsKeepChatFlagCounted(t *testing.T) {
	block := make(chan struct{})
	provider := &stubProvider{answer: "ok", block: block}
	o, st, _ := newTestOrchestrator(provider)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Send(context.Background(), "overlapping question")
			assert.NoError(t, err)
		}()
	}

	assert.Eventually(t, func() bool {
		s := st.State()
		return len(s.Messages) == 4 && s.Loading[store.LoadingChat]
	}, time.Second, time.Millisecond, "both pairs appended, chat flag up while in flight")

	close(block)
	wg.Wait()

	s := st.State()
	assert.Len(t, s.Messages, 4)
	for _, m := range s.Messages {
		assert.False(t, m.Pending)
	}
	assert.False(t, s.Loading[store.LoadingChat])
}
