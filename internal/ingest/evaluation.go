package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/engine"
)

// Evaluation is one boolean result of a counter's problem condition.
// Times are epoch milliseconds.
type Evaluation struct {
	OCID          int64  `json:"ocid"`
	ObjectID      int64  `json:"objectID"`
	CounterID     int64  `json:"counterID"`
	ObjectName    string `json:"objectName"`
	CounterName   string `json:"counterName"`
	ParentOCID    int64  `json:"parentOCID,omitempty"`
	Value         bool   `json:"value"`
	Importance    int    `json:"importance,omitempty"`
	Data          string `json:"data,omitempty"`
	Pronunciation string `json:"pronunciation,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	EvalTime      int64  `json:"evalTime"`
}

// Decode parses a message value.
func Decode(value []byte) (Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal(value, &ev); err != nil {
		return Evaluation{}, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}
	return ev, nil
}

// Occurrence converts a true evaluation.
func (ev Evaluation) Occurrence() engine.Occurrence {
	return engine.Occurrence{
		OCID:          ev.OCID,
		ObjectID:      ev.ObjectID,
		CounterID:     ev.CounterID,
		ObjectName:    ev.ObjectName,
		CounterName:   ev.CounterName,
		ParentOCID:    ev.ParentOCID,
		Importance:    ev.Importance,
		Data:          ev.Data,
		Pronunciation: ev.Pronunciation,
		Timestamp:     fromMillis(ev.Timestamp),
		EvalTime:      fromMillis(ev.EvalTime),
	}
}

// Solution converts a false evaluation.
func (ev Evaluation) Solution() engine.Solution {
	return engine.Solution{
		OCID:     ev.OCID,
		EvalTime: fromMillis(ev.EvalTime),
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
