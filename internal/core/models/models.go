package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attendance statuses stored on a record.
const (
	AttendancePresent = "present"
)

// Person is a provisioned member of the roster. Name is the identity label the
// gallery uses for this person's reference samples.
type Person struct {
	gorm.Model
	Name           string          `gorm:"index;not null" json:"name"`
	Surname        string          `json:"surname"`
	Email          string          `gorm:"index" json:"email"`
	Role           string          `gorm:"default:student" json:"role"`
	ReferenceFaces []ReferenceFace `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE;" json:"reference_faces,omitempty"`
	Attendances    []Attendance    `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE;" json:"-"`
}

// ReferenceFace is a gallery sample registered for a person.
type ReferenceFace struct {
	gorm.Model
	PersonID    uint           `gorm:"index;not null" json:"person_id"`
	FilePath    string         `gorm:"uniqueIndex;not null" json:"file_path"`
	Confidence  float64        `json:"confidence"`             // detector confidence at registration
	BoundingBox datatypes.JSON `gorm:"type:json" json:"bounding_box"` // {"x","y","w","h"}
}

// Attendance is one check-in of a person. Day holds the UTC calendar day
// (YYYY-MM-DD) of CheckInTime; together with PersonID it is unique.
type Attendance struct {
	gorm.Model
	PersonID        uint       `gorm:"uniqueIndex:idx_attendance_person_day;not null" json:"person_id"`
	Day             string     `gorm:"uniqueIndex:idx_attendance_person_day;size:10;not null" json:"day"`
	CheckInTime     time.Time  `gorm:"index;not null" json:"check_in_time"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	ConfidenceScore float64    `json:"confidence_score"`
	Status          string     `gorm:"default:present" json:"status"`
	Person          Person     `gorm:"foreignKey:PersonID" json:"person"`
}

// Recognition is the audit record of one recognition call.
type Recognition struct {
	gorm.Model
	RequestID       string         `gorm:"uniqueIndex;size:36" json:"request_id"`
	Source          string         `gorm:"index" json:"source"` // "image" or "video"
	Policy          string         `json:"policy,omitempty"`
	FacesDetected   int            `json:"faces_detected"`
	Recognized      int            `json:"recognized"`
	Recorded        int            `json:"recorded"`
	ProcessedFrames int            `json:"processed_frames"`
	TotalFrames     int            `json:"total_frames"`
	StopReason      string         `json:"stop_reason,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	Candidates      datatypes.JSON `gorm:"type:json" json:"candidates"`
}

// Statistics summarizes the store for the status endpoint.
type Statistics struct {
	Persons          int64     `json:"persons"`
	ReferenceFaces   int64     `json:"reference_faces"`
	AttendancesToday int64     `json:"attendances_today"`
	Recognitions     int64     `json:"recognitions"`
	LatestCheckIn    time.Time `json:"latest_check_in,omitempty"`
}
