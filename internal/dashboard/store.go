package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// logRecord is one captured warning or error served by /logs. The fields
// identifying a collector or a pair are lifted out of Fields.
type logRecord struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       string                 `json:"level"`
	Component   string                 `json:"component,omitempty"`
	CollectorID string                 `json:"collector_id,omitempty"`
	Exchange    string                 `json:"exchange,omitempty"`
	Pair        string                 `json:"pair,omitempty"`
	Message     string                 `json:"message"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// lifted maps entry keys to the record field they fill.
var lifted = map[string]func(*logRecord, string){
	"component":    func(r *logRecord, v string) { r.Component = v },
	"collector_id": func(r *logRecord, v string) { r.CollectorID = v },
	"exchange":     func(r *logRecord, v string) { r.Exchange = v },
	"pair":         func(r *logRecord, v string) { r.Pair = v },
}

// logStore is a logrus hook keeping the most recent warnings and errors so
// operators can see why a collector is reconnecting without tailing logs.
type logStore struct {
	mu      sync.RWMutex
	items   []logRecord
	limit   int
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	for k, v := range entry.Data {
		if set, ok := lifted[k]; ok {
			if str, ok := v.(string); ok {
				set(&record, str)
				continue
			}
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

// snapshot returns the captured records, oldest first. A non-empty exchange
// keeps only the records of that exchange.
func (s *logStore) snapshot(exchange string) []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, 0, len(s.items))
	for _, r := range s.items {
		if exchange == "" || strings.EqualFold(r.Exchange, exchange) {
			out = append(out, r)
		}
	}
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
