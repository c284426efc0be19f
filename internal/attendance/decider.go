// Package attendance turns recognized identities into attendance records and
// runs the image and video recognition flows end to end.
package attendance

import (
	"context"
	"time"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Status is the attendance outcome for one identity.
type Status string

const (
	StatusRecorded        Status = "recorded"
	StatusAlreadyAttended Status = "already_attended"
	StatusNotRecorded     Status = "not_recorded"
	StatusError           Status = "error"
)

// Decision is the attendance outcome for one recognized identity.
type Decision struct {
	Name         string  `json:"name"`
	Confidence   float64 `json:"confidence"`
	Status       Status  `json:"attendance_status"`
	AttendanceID uint    `json:"attendance_id,omitempty"`
	PersonID     uint    `json:"-"`
}

// Store is the part of the repository the decider needs.
type Store interface {
	GetPersonByName(ctx context.Context, name string) (*models.Person, error)
	CreateAttendanceIfAbsent(ctx context.Context, record *models.Attendance) (bool, error)
}

// Decider records at most one attendance per person and UTC day.
type Decider struct {
	store Store
	now   func() time.Time
}

// NewDecider creates a decider over store.
func NewDecider(store Store) *Decider {
	return &Decider{store: store, now: timezone.Now}
}

// Decide resolves cand to a person and records today's attendance unless one
// already exists. Store failures yield StatusError for this identity only.
func (d *Decider) Decide(ctx context.Context, cand recognition.IdentityCandidate) Decision {
	dec := Decision{Name: cand.Name, Confidence: cand.Score, Status: StatusNotRecorded}
	logger := log.WithFields(log.Fields{"name": cand.Name, "confidence": cand.Score})

	person, err := d.store.GetPersonByName(ctx, cand.Name)
	if err != nil {
		logger.Warnf("Person lookup failed: %v", err)
		dec.Status = StatusError
		return dec
	}
	if person == nil {
		logger.Info("Recognized identity is not on the roster")
		return dec
	}
	dec.PersonID = person.ID

	record := &models.Attendance{
		PersonID:        person.ID,
		CheckInTime:     d.now(),
		ConfidenceScore: cand.Score,
		Status:          models.AttendancePresent,
	}
	created, err := d.store.CreateAttendanceIfAbsent(ctx, record)
	if err != nil {
		logger.Warnf("Attendance could not be recorded: %v", err)
		dec.Status = StatusError
		return dec
	}
	if !created {
		logger.Info("Person already attended today")
		dec.Status = StatusAlreadyAttended
		return dec
	}

	dec.Status = StatusRecorded
	dec.AttendanceID = record.ID
	logger.WithField("attendance_id", record.ID).Info("Attendance recorded")
	return dec
}

// DecideAll decides every candidate in order.
func (d *Decider) DecideAll(ctx context.Context, cands []recognition.IdentityCandidate) []Decision {
	out := make([]Decision, 0, len(cands))
	for _, c := range cands {
		out = append(out, d.Decide(ctx, c))
	}
	return out
}

// Count returns how many decisions have status s.
func Count(decisions []Decision, s Status) int {
	n := 0
	for _, d := range decisions {
		if d.Status == s {
			n++
		}
	}
	return n
}
