package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/pkg/events"
	"surgical-review-be/pkg/llm"
	"surgical-review-be/pkg/store"

	"github.com/google/uuid"
)

// FailureReplyText resolves the placeholder when the LLM round-trip fails.
// The placeholder is never left pending, whatever the outcome.
const FailureReplyText = "Sorry, the answer could not be generated. Please try again."

// ChatFailedNoticeText is the transient notice shown alongside a failed reply.
const ChatFailedNoticeText = "Chat request failed"

// ErrEmptyQuestion is returned when the trimmed question is blank; nothing is
// dispatched in that case.
var ErrEmptyQuestion = errors.New("question is empty")

// Result carries the settled exchange: the user message as appended and the
// assistant message as resolved (answer or failure text).
type Result struct {
	Sent   store.Message
	Reply  store.Message
	Failed bool
}

// Orchestrator turns a question plus the current transcript/reference context
// into an LLM exchange, managing the optimistic pending placeholder.
//
// Sends are deliberately not serialized: two overlapping Send calls produce
// two independent placeholder/response pairs, each resolved exactly once. The
// chat loading flag is reference-counted so an early finisher cannot clear it
// while another exchange is still in flight.
type Orchestrator struct {
	store    *store.Store
	provider llm.LLMProvider
	noticer  events.Noticer
	log      logger.ILogger
	chatOpts []llm.Option

	mu       sync.Mutex
	inflight int
}

// New builds an orchestrator; chatOpts (temperature etc.) are applied to
// every provider round-trip.
func New(st *store.Store, provider llm.LLMProvider, noticer events.Noticer, log logger.ILogger, chatOpts ...llm.Option) *Orchestrator {
	return &Orchestrator{
		store:    st,
		provider: provider,
		noticer:  noticer,
		log:      log,
		chatOpts: chatOpts,
	}
}

// Send runs one question/answer exchange to completion. The returned Result
// is settled: no pending placeholder remains and the chat flag is consistent.
// A failed round-trip is not an error here; the reply carries the failure
// text and Failed is set.
func (o *Orchestrator) Send(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	now := time.Now()
	userMsg := store.Message{
		Id:        uuid.New(),
		Role:      store.RoleUser,
		Content:   question,
		Timestamp: now,
	}
	placeholder := store.Message{
		Id:        uuid.New(),
		Role:      store.RoleAssistant,
		Content:   "",
		Timestamp: now,
		Pending:   true,
	}

	// Appending both and raising the flag happens before any network call so
	// the UI shows the optimistic pair immediately. Held under the send lock
	// so a concurrent Send cannot interleave its own pair between the two.
	o.mu.Lock()
	o.store.Dispatch(store.AddMessage{Message: userMsg})
	o.store.Dispatch(store.AddMessage{Message: placeholder})
	o.inflight++
	if o.inflight == 1 {
		o.store.Dispatch(store.SetLoading{Key: store.LoadingChat, Value: true})
	}
	o.mu.Unlock()
	defer o.leaveFlight()

	snapshot := o.store.State()
	refIds := make([]string, 0, len(snapshot.References))
	for _, r := range snapshot.References {
		refIds = append(refIds, r.FileId)
	}

	answer, err := o.provider.Chat(ctx, buildPrompt(snapshot.Transcript, refIds, question), o.chatOpts...)
	if err != nil {
		o.store.Dispatch(store.UpdateMessage{Id: placeholder.Id, Content: FailureReplyText, Pending: false})
		o.noticer.Notice(events.NoticeError, ChatFailedNoticeText)
		o.log.Error("Conversation", "Chat round-trip failed", map[string]interface{}{"error": err.Error()})

		placeholder.Content = FailureReplyText
		placeholder.Pending = false
		return &Result{Sent: userMsg, Reply: placeholder, Failed: true}, nil
	}

	o.store.Dispatch(store.UpdateMessage{Id: placeholder.Id, Content: answer, Pending: false})
	o.log.Info("Conversation", "Chat answered", map[string]interface{}{"message_id": placeholder.Id.String()})

	placeholder.Content = answer
	placeholder.Pending = false
	return &Result{Sent: userMsg, Reply: placeholder}, nil
}

func (o *Orchestrator) leaveFlight() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight--
	if o.inflight == 0 {
		o.store.Dispatch(store.SetLoading{Key: store.LoadingChat, Value: false})
	}
}

func buildPrompt(transcript string, referenceIds []string, question string) []llm.Message {
	var sys strings.Builder
	sys.WriteString("Answer the question based on the following operative transcript and reference documents.\n\n")
	sys.WriteString("Transcript:\n")
	sys.WriteString(transcript)
	if len(referenceIds) > 0 {
		sys.WriteString(fmt.Sprintf("\n\nAttached reference documents: %s", strings.Join(referenceIds, ", ")))
	}

	return []llm.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: question},
	}
}
