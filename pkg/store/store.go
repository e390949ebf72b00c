package store

import (
	"sync"

	"github.com/google/uuid"
)

// Action is the closed set of session transitions. Every mutation of the
// session, no matter which async flow produced it, arrives here as one of
// these values.
type Action interface {
	actionType() string
}

type SetVideo struct{ Video VideoRef }

type SetTranscript struct{ Transcript string }

type AddReference struct{ Item ReferenceItem }

type RemoveReference struct{ FileId string }

type AddMessage struct{ Message Message }

type UpdateMessage struct {
	Id      uuid.UUID
	Content string
	Pending bool
}

type SetLoading struct {
	Key   LoadingKey
	Value bool
}

func (SetVideo) actionType() string        { return "SET_VIDEO" }
func (SetTranscript) actionType() string   { return "SET_TRANSCRIPT" }
func (AddReference) actionType() string    { return "ADD_REFERENCE" }
func (RemoveReference) actionType() string { return "REMOVE_REFERENCE" }
func (AddMessage) actionType() string      { return "ADD_MESSAGE" }
func (UpdateMessage) actionType() string   { return "UPDATE_MESSAGE" }
func (SetLoading) actionType() string      { return "SET_LOADING" }

// Type exposes the wire name of an action (used for session events).
func Type(a Action) string { return a.actionType() }

// state is the store-private representation. Messages live in an id-keyed map
// for O(1) in-place updates, with a separate slice keeping display order.
type state struct {
	video      *VideoRef
	transcript string
	references []ReferenceItem
	order      []uuid.UUID
	byId       map[uuid.UUID]Message
	loading    map[LoadingKey]bool
}

func initialState() state {
	return state{
		references: []ReferenceItem{},
		order:      []uuid.UUID{},
		byId:       map[uuid.UUID]Message{},
		loading: map[LoadingKey]bool{
			LoadingUpload: false,
			LoadingParse:  false,
			LoadingChat:   false,
			LoadingExport: false,
		},
	}
}

// reduce is a pure function of (state, action). It never performs I/O and
// never mutates its input; containers touched by the action are copied.
func reduce(s state, a Action) state {
	switch act := a.(type) {
	case SetVideo:
		v := act.Video
		s.video = &v

	case SetTranscript:
		s.transcript = act.Transcript

	case AddReference:
		for _, r := range s.references {
			if r.FileId == act.Item.FileId {
				return s
			}
		}
		refs := make([]ReferenceItem, len(s.references), len(s.references)+1)
		copy(refs, s.references)
		s.references = append(refs, act.Item)

	case RemoveReference:
		refs := make([]ReferenceItem, 0, len(s.references))
		for _, r := range s.references {
			if r.FileId != act.FileId {
				refs = append(refs, r)
			}
		}
		s.references = refs

	case AddMessage:
		if _, exists := s.byId[act.Message.Id]; exists {
			return s
		}
		byId := make(map[uuid.UUID]Message, len(s.byId)+1)
		for k, v := range s.byId {
			byId[k] = v
		}
		byId[act.Message.Id] = act.Message
		order := make([]uuid.UUID, len(s.order), len(s.order)+1)
		copy(order, s.order)
		s.byId = byId
		s.order = append(order, act.Message.Id)

	case UpdateMessage:
		msg, exists := s.byId[act.Id]
		if !exists {
			return s
		}
		msg.Content = act.Content
		msg.Pending = act.Pending
		byId := make(map[uuid.UUID]Message, len(s.byId))
		for k, v := range s.byId {
			byId[k] = v
		}
		byId[act.Id] = msg
		s.byId = byId

	case SetLoading:
		if _, known := s.loading[act.Key]; !known {
			return s
		}
		loading := make(map[LoadingKey]bool, len(s.loading))
		for k, v := range s.loading {
			loading[k] = v
		}
		loading[act.Key] = act.Value
		s.loading = loading
	}

	return s
}

// Listener observes applied actions together with the resulting snapshot.
// Listeners run in dispatch order and must not call back into Dispatch.
type Listener func(action Action, next Session)

// Store owns the Session and is the only place mutations are applied.
// Dispatch calls are serialized, so the reducer is never re-entered
// mid-mutation; reads return isolated snapshots.
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	s          state
	listeners  []Listener
}

func New() *Store {
	return &Store{s: initialState()}
}

// Subscribe registers a listener for applied actions. Not safe to call
// concurrently with Dispatch; wire listeners up before the session is live.
func (st *Store) Subscribe(l Listener) {
	st.listeners = append(st.listeners, l)
}

// Dispatch applies one action. All side effects (network, timers, rendering)
// happen outside the store; they reach the session only through here.
func (st *Store) Dispatch(a Action) {
	st.dispatchMu.Lock()
	defer st.dispatchMu.Unlock()

	st.mu.Lock()
	st.s = reduce(st.s, a)
	next := st.snapshot()
	st.mu.Unlock()

	for _, l := range st.listeners {
		l(a, next)
	}
}

// State returns a read-only snapshot of the session. Mutating the returned
// value has no effect on the store.
func (st *Store) State() Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot()
}

func (st *Store) snapshot() Session {
	snap := Session{
		Transcript: st.s.transcript,
		References: make([]ReferenceItem, len(st.s.references)),
		Messages:   make([]Message, 0, len(st.s.order)),
		Loading:    make(map[LoadingKey]bool, len(st.s.loading)),
	}
	if st.s.video != nil {
		v := *st.s.video
		snap.Video = &v
	}
	copy(snap.References, st.s.references)
	for _, id := range st.s.order {
		snap.Messages = append(snap.Messages, st.s.byId[id])
	}
	for k, v := range st.s.loading {
		snap.Loading[k] = v
	}
	return snap
}
