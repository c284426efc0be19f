package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/util/timezone"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by mutations that target a missing row.
// Lookups return (nil, nil) instead.
var (
	ErrNotFound = errors.New("record not found")
	// ErrCheckOutBeforeCheckIn rejects a check-out earlier than the check-in.
	ErrCheckOutBeforeCheckIn = errors.New("check-out precedes check-in")
)

// Repository is the persistence contract of the attendance service.
type Repository interface {
	Ping(ctx context.Context) error

	// Persons
	CreatePerson(ctx context.Context, person *models.Person) error
	GetPerson(ctx context.Context, id uint) (*models.Person, error)
	GetPersonByName(ctx context.Context, name string) (*models.Person, error)
	GetPersonByEmail(ctx context.Context, email string) (*models.Person, error)
	ListPersons(ctx context.Context, limit, offset int) ([]models.Person, int64, error)
	DeletePerson(ctx context.Context, id uint) error

	// Reference faces
	SaveReferenceFace(ctx context.Context, face *models.ReferenceFace) error
	ListReferenceFaces(ctx context.Context, personID uint) ([]models.ReferenceFace, error)

	// Attendance
	CreateAttendance(ctx context.Context, record *models.Attendance) error
	CreateAttendanceIfAbsent(ctx context.Context, record *models.Attendance) (created bool, err error)
	AttendanceForPersonOnDay(ctx context.Context, personID uint, day time.Time) (*models.Attendance, error)
	AttendancesForDay(ctx context.Context, day time.Time) ([]models.Attendance, error)
	AttendancesForPerson(ctx context.Context, personID uint, from, to time.Time) ([]models.Attendance, error)
	CheckOut(ctx context.Context, id uint, at time.Time) (*models.Attendance, error)

	// Recognition log
	SaveRecognition(ctx context.Context, rec *models.Recognition) error
	ListRecognitions(ctx context.Context, limit int) ([]models.Recognition, error)
	DeleteRecognitionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetStatistics(ctx context.Context) (models.Statistics, error)
}

// SQLiteRepository implements Repository on GORM with the SQLite driver.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository wraps an open connection.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Ping checks that the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Persons

func (r *SQLiteRepository) CreatePerson(ctx context.Context, person *models.Person) error {
	return r.db.WithContext(ctx).Create(person).Error
}

func (r *SQLiteRepository) GetPerson(ctx context.Context, id uint) (*models.Person, error) {
	var person models.Person
	if err := r.db.WithContext(ctx).Preload("ReferenceFaces").First(&person, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

// GetPersonByName resolves a gallery identity label to a person. When several
// persons share the label the oldest one wins.
func (r *SQLiteRepository) GetPersonByName(ctx context.Context, name string) (*models.Person, error) {
	var person models.Person
	err := r.db.WithContext(ctx).Where("name = ?", name).Order("id ASC").First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

func (r *SQLiteRepository) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	var person models.Person
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &person, nil
}

func (r *SQLiteRepository) ListPersons(ctx context.Context, limit, offset int) ([]models.Person, int64, error) {
	var persons []models.Person
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Person{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	if err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&persons).Error; err != nil {
		return nil, 0, err
	}
	return persons, total, nil
}

// DeletePerson removes a person together with reference faces and attendance.
func (r *SQLiteRepository) DeletePerson(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Person{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// soft delete does not cascade
		if err := tx.Where("person_id = ?", id).Delete(&models.ReferenceFace{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("person_id = ?", id).Delete(&models.Attendance{}).Error
	})
}

// Reference faces

// SaveReferenceFace stores face, replacing an earlier row for the same file.
func (r *SQLiteRepository) SaveReferenceFace(ctx context.Context, face *models.ReferenceFace) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"person_id", "confidence", "bounding_box", "updated_at", "deleted_at"}),
	}).Create(face).Error
}

func (r *SQLiteRepository) ListReferenceFaces(ctx context.Context, personID uint) ([]models.ReferenceFace, error) {
	var faces []models.ReferenceFace
	if err := r.db.WithContext(ctx).Where("person_id = ?", personID).Order("id ASC").Find(&faces).Error; err != nil {
		return nil, err
	}
	return faces, nil
}

// Attendance

// CreateAttendance inserts record, deriving Day from CheckInTime.
func (r *SQLiteRepository) CreateAttendance(ctx context.Context, record *models.Attendance) error {
	prepareAttendance(record)
	return r.db.WithContext(ctx).Create(record).Error
}

// CreateAttendanceIfAbsent inserts record unless the person already has an
// attendance on the same UTC day. The check and insert share a transaction and
// the (person_id, day) unique index settles concurrent inserts; losing that race
// reports created=false without error.
func (r *SQLiteRepository) CreateAttendanceIfAbsent(ctx context.Context, record *models.Attendance) (bool, error) {
	prepareAttendance(record)
	start, end := timezone.DayBounds(record.CheckInTime)

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Attendance{}).
			Where("person_id = ? AND check_in_time >= ? AND check_in_time < ?", record.PersonID, start, end).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to query attendance: %w", err)
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return created, nil
}

func (r *SQLiteRepository) AttendanceForPersonOnDay(ctx context.Context, personID uint, day time.Time) (*models.Attendance, error) {
	start, end := timezone.DayBounds(day)
	var record models.Attendance
	err := r.db.WithContext(ctx).
		Where("person_id = ? AND check_in_time >= ? AND check_in_time < ?", personID, start, end).
		Order("check_in_time ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// AttendancesForDay lists all check-ins of day's UTC calendar day, newest first.
func (r *SQLiteRepository) AttendancesForDay(ctx context.Context, day time.Time) ([]models.Attendance, error) {
	start, end := timezone.DayBounds(day)
	var records []models.Attendance
	err := r.db.WithContext(ctx).Preload("Person").
		Where("check_in_time >= ? AND check_in_time < ?", start, end).
		Order("check_in_time DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AttendancesForPerson lists a person's check-ins in [from, to), newest first.
// Zero bounds are open.
func (r *SQLiteRepository) AttendancesForPerson(ctx context.Context, personID uint, from, to time.Time) ([]models.Attendance, error) {
	q := r.db.WithContext(ctx).Preload("Person").Where("person_id = ?", personID)
	if !from.IsZero() {
		q = q.Where("check_in_time >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("check_in_time < ?", to.UTC())
	}
	var records []models.Attendance
	if err := q.Order("check_in_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CheckOut sets the check-out time of an attendance record.
func (r *SQLiteRepository) CheckOut(ctx context.Context, id uint, at time.Time) (*models.Attendance, error) {
	var record models.Attendance
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	at = at.UTC()
	if at.Before(record.CheckInTime) {
		return nil, fmt.Errorf("%w: %s < %s", ErrCheckOutBeforeCheckIn, at.Format(time.RFC3339), record.CheckInTime.Format(time.RFC3339))
	}
	if err := r.db.WithContext(ctx).Model(&record).Update("check_out_time", at).Error; err != nil {
		return nil, err
	}
	record.CheckOutTime = &at
	return &record, nil
}

// Recognition log

func (r *SQLiteRepository) SaveRecognition(ctx context.Context, rec *models.Recognition) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *SQLiteRepository) ListRecognitions(ctx context.Context, limit int) ([]models.Recognition, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []models.Recognition
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// DeleteRecognitionsBefore hard-deletes log entries created before cutoff.
func (r *SQLiteRepository) DeleteRecognitionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().Where("created_at < ?", cutoff).Delete(&models.Recognition{})
	return res.RowsAffected, res.Error
}

// GetStatistics counts the main tables.
func (r *SQLiteRepository) GetStatistics(ctx context.Context) (models.Statistics, error) {
	var stats models.Statistics
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Person{}).Count(&stats.Persons).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.ReferenceFace{}).Count(&stats.ReferenceFaces).Error; err != nil {
		return stats, err
	}
	start, end := timezone.DayBounds(timezone.Now())
	if err := db.Model(&models.Attendance{}).
		Where("check_in_time >= ? AND check_in_time < ?", start, end).
		Count(&stats.AttendancesToday).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Recognition{}).Count(&stats.Recognitions).Error; err != nil {
		return stats, err
	}

	var latest models.Attendance
	if err := db.Order("check_in_time DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestCheckIn = latest.CheckInTime
	}
	return stats, nil
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func prepareAttendance(record *models.Attendance) {
	if record.CheckInTime.IsZero() {
		record.CheckInTime = timezone.Now()
	}
	record.CheckInTime = record.CheckInTime.UTC()
	record.Day = timezone.DayKey(record.CheckInTime)
	if record.Status == "" {
		record.Status = models.AttendancePresent
	}
}
