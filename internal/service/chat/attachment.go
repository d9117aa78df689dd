package chat

import (
	"github.com/vitalog/healthchat/internal/model/chat"
	"github.com/vitalog/healthchat/internal/model/record"
)

// Selector holds the records that can ground an image-analysis turn and the
// single pending selection.
type Selector struct {
	records *record.MemoryStore
	pending *chat.AttachmentRef
}

// NewSelector returns a Selector with an empty source set.
func NewSelector() *Selector {
	return &Selector{records: record.NewMemoryStore(nil)}
}

// Load replaces the source set with the attachable subset of records.
func (s *Selector) Load(records []record.Record) {
	s.records = record.NewMemoryStore(record.Attachable(records))
}

// Records returns the attachable records.
func (s *Selector) Records() []record.Record {
	return s.records.List()
}

// Pick selects an attachable record by id, replacing any pending selection.
func (s *Selector) Pick(recordID string) (chat.AttachmentRef, error) {
	rec, ok := s.records.FindByID(recordID)
	if !ok {
		return chat.AttachmentRef{}, ErrUnknownRecord
	}
	return s.set(rec), nil
}

// Push selects a record handed in from elsewhere in the application.
func (s *Selector) Push(rec record.Record) (chat.AttachmentRef, error) {
	if !rec.HasImage() {
		return chat.AttachmentRef{}, ErrNotAttachable
	}
	return s.set(rec), nil
}

// Pending returns a copy of the pending selection, or nil.
func (s *Selector) Pending() *chat.AttachmentRef {
	if s.pending == nil {
		return nil
	}
	ref := *s.pending
	return &ref
}

// Clear drops the pending selection and reports whether there was one.
func (s *Selector) Clear() bool {
	had := s.pending != nil
	s.pending = nil
	return had
}

func (s *Selector) set(rec record.Record) chat.AttachmentRef {
	ref := chat.AttachmentRef{
		RecordID: rec.ID,
		Title:    rec.Title,
		ImageURL: rec.FilePath,
	}
	s.pending = &ref
	return ref
}
