package workday

import (
	"sync"
	"time"

	"github.com/agng-dev/montron/internal/model"
)

// EditSession holds the draft/original pair for one workday being edited.
// The original is the persisted state at load time; the draft accumulates
// field edits until a save builds the patches and resets the pair.
type EditSession struct {
	WorkdayID  string
	TBOriginal *model.DailyReport
	TBDraft    *model.DailyReport
	RSOriginal *model.ServiceRecord
	RSDraft    *model.ServiceRecord
	LoadedAt   time.Time
	dirty      bool
}

// Dirty reports whether any field edit has been applied since the last
// initialization or save.
func (s *EditSession) Dirty() bool {
	return s.dirty
}

// SetTBField applies one field edit to the TB draft.
func (s *EditSession) SetTBField(key string, raw any) {
	if s.TBDraft == nil {
		return
	}
	SetTBField(s.TBDraft, key, raw)
	s.dirty = true
}

// SetRSField applies one field edit to the RS draft.
func (s *EditSession) SetRSField(key string, raw any) {
	if s.RSDraft == nil {
		return
	}
	SetRSField(s.RSDraft, key, raw)
	s.dirty = true
}

// SetRSPositions replaces the draft position list as a whole.
func (s *EditSession) SetRSPositions(positions []model.Position) {
	if s.RSDraft == nil {
		return
	}
	s.RSDraft.Positions = positions
	s.dirty = true
}

// Patches builds the minimal TB and RS patches from the current pair.
func (s *EditSession) Patches() (TBPatch, RSPatch) {
	return BuildTBPatch(s.TBOriginal, s.TBDraft), BuildRSPatch(s.RSOriginal, s.RSDraft)
}

// Saved promotes the given persisted state to the new original and rebuilds
// a clean draft from it. Called after a successful store write.
func (s *EditSession) Saved(tb *model.DailyReport, rs *model.ServiceRecord) {
	s.TBOriginal = tb
	s.TBDraft = NewTBDraft(tb)
	s.RSOriginal = rs
	s.RSDraft = NewRSDraft(rs)
	s.dirty = false
}

// EditSessions manages one edit session per workday. Sessions live in
// memory only; a restart simply re-initializes from persisted state.
type EditSessions struct {
	mu       sync.Mutex
	sessions map[string]*EditSession
}

func NewEditSessions() *EditSessions {
	return &EditSessions{sessions: make(map[string]*EditSession)}
}

// Init returns the session for a workday, creating it from the given
// persisted state on first access. An existing session with unsaved edits is
// returned as-is: loading fresher data never discards edits in progress.
// Pass force to drop unsaved edits explicitly.
func (m *EditSessions) Init(workdayID string, tb *model.DailyReport, rs *model.ServiceRecord, force bool) *EditSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[workdayID]; ok && existing.Dirty() && !force {
		return existing
	}

	s := &EditSession{
		WorkdayID:  workdayID,
		TBOriginal: tb,
		TBDraft:    NewTBDraft(tb),
		RSOriginal: rs,
		RSDraft:    NewRSDraft(rs),
		LoadedAt:   time.Now(),
	}
	m.sessions[workdayID] = s
	return s
}

// Get returns the session for a workday or nil when none exists.
func (m *EditSessions) Get(workdayID string) *EditSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[workdayID]
}

// Drop removes a session, discarding any unsaved edits.
func (m *EditSessions) Drop(workdayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, workdayID)
}
