package logging

import "sync"

// Message is one captured report.
type Message struct {
	Severity Severity
	ID       string
	Item     string
	Args     []any
}

// Text renders the message with the default catalog.
func (m Message) Text() string {
	return Render(m.ID, m.Args...)
}

type recording struct {
	mu       sync.Mutex
	messages []Message
}

// Recorder captures reported messages in memory. Reporters derived with
// WithItem share the same recording.
type Recorder struct {
	rec  *recording
	item string
}

func NewRecorder() *Recorder {
	return &Recorder{rec: &recording{}}
}

func (r *Recorder) WithItem(name string) Reporter {
	return &Recorder{rec: r.rec, item: name}
}

func (r *Recorder) Info(id string, args ...any) { r.add(SeverityInfo, id, args) }
func (r *Recorder) Warn(id string, args ...any) { r.add(SeverityWarn, id, args) }
func (r *Recorder) Crit(id string, args ...any) { r.add(SeverityCrit, id, args) }

func (r *Recorder) add(severity Severity, id string, args []any) {
	r.rec.mu.Lock()
	defer r.rec.mu.Unlock()
	r.rec.messages = append(r.rec.messages, Message{Severity: severity, ID: id, Item: r.item, Args: args})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.rec.mu.Lock()
	defer r.rec.mu.Unlock()
	return append([]Message(nil), r.rec.messages...)
}

// Count returns the number of messages with the given severity.
func (r *Recorder) Count(severity Severity) int {
	n := 0
	for _, m := range r.Messages() {
		if m.Severity == severity {
			n++
		}
	}
	return n
}

// Has reports whether a message with the given id was recorded.
func (r *Recorder) Has(id string) bool {
	return r.Find(id) != nil
}

// Find returns the first message with the given id.
func (r *Recorder) Find(id string) *Message {
	for _, m := range r.Messages() {
		if m.ID == id {
			return &m
		}
	}
	return nil
}
