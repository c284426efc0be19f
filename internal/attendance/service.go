package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/locale"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/util/timezone"
	"face-attendance-go/internal/video"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Event types published to notifiers.
const (
	EventAttendanceRecorded   = "attendance.recorded"
	EventRecognitionCompleted = "recognition.completed"
)

// Sources of a recognition call.
const (
	SourceImage = "image"
	SourceVideo = "video"
)

// Repository is the persistence the service depends on.
type Repository interface {
	Store
	Ping(ctx context.Context) error
	SaveRecognition(ctx context.Context, rec *models.Recognition) error
}

// ImageAnalyzer recognizes the faces of one image.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, img image.Image, p recognition.Profile) recognition.Analysis
}

// Messages renders localized summaries.
type Messages interface {
	Localize(lang, id string, data map[string]any, count any) string
	Default() string
}

// Event is published for recorded attendances and finished recognitions.
type Event struct {
	Type         string    `json:"type"`
	RequestID    string    `json:"request_id"`
	Source       string    `json:"source"`
	PersonID     uint      `json:"person_id,omitempty"`
	AttendanceID uint      `json:"attendance_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	Recognized   int       `json:"recognized,omitempty"`
	Recorded     int       `json:"recorded,omitempty"`
	Time         time.Time `json:"time"`
}

// Notifier receives service events. Errors are logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Settings are the configured operating points.
type Settings struct {
	ImageProfile       recognition.Profile
	ImageMinConfidence float64
	Video              video.Options
}

// SettingsFromConfig maps configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	policy, err := video.ParsePolicy(cfg.Video.Policy)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		ImageProfile: recognition.Profile{
			DetectThreshold: cfg.Recognition.ImageDetectThreshold,
			Margin:          cfg.Recognition.ImageMargin,
			MaxDimension:    cfg.Recognition.MaxFrameDimension,
		},
		ImageMinConfidence: cfg.Recognition.ImageMinConfidence,
		Video: video.Options{
			Budget: video.Budget{
				MaxFrames:     cfg.Video.MaxFrames,
				FrameInterval: cfg.Video.FrameInterval,
				Timeout:       cfg.Video.Timeout(),
			},
			MinConfidence: cfg.Video.MinConfidence,
			Policy:        policy,
			Gate: video.Gate{
				MinScore:      cfg.Video.ExhaustiveMinScore,
				MinDetections: cfg.Video.ExhaustiveMinDetections,
				DetectionRate: cfg.Video.ExhaustiveDetectionRate,
			},
			Profile: recognition.Profile{
				DetectThreshold: cfg.Recognition.VideoDetectThreshold,
				Margin:          cfg.Recognition.VideoMargin,
				MaxDimension:    cfg.Recognition.MaxFrameDimension,
			},
		},
	}, nil
}

// ImageOptions are per-call overrides for image recognition. Zero values
// select the configured defaults.
type ImageOptions struct {
	MinConfidence float64
	Lang          string
}

// VideoOptions are per-call overrides for video recognition. Zero values
// select the configured defaults.
type VideoOptions struct {
	MinConfidence float64
	FrameInterval int
	MaxFrames     int
	Timeout       time.Duration
	Policy        video.Policy
	Lang          string
}

// Result is the outcome of an image recognition call.
type Result struct {
	RequestID        string     `json:"request_id"`
	RecognizedPeople []Decision `json:"recognized_people"`
	Message          string     `json:"message"`
	MinConfidence    float64    `json:"min_confidence"`
	FacesDetected    int        `json:"faces_detected"`
}

// VideoResult is the outcome of a video recognition call. ShouldStop is always
// true: one clip is enough for a decision.
type VideoResult struct {
	Result
	ProcessedFrames int              `json:"processed_frames"`
	TotalFrames     int              `json:"total_frames"`
	ShouldStop      bool             `json:"should_stop"`
	StopReason      video.StopReason `json:"stop_reason"`
	Policy          video.Policy     `json:"policy"`
}

// Service runs recognition and attendance decisions.
type Service struct {
	repo      Repository
	images    ImageAnalyzer
	videos    *video.Recognizer
	decider   *Decider
	messages  Messages
	notifiers []Notifier
	settings  Settings
}

// NewService wires the recognition flows.
func NewService(repo Repository, images ImageAnalyzer, videos *video.Recognizer, messages Messages, settings Settings, notifiers ...Notifier) *Service {
	return &Service{
		repo:      repo,
		images:    images,
		videos:    videos,
		decider:   NewDecider(repo),
		messages:  messages,
		notifiers: notifiers,
		settings:  settings,
	}
}

// Settings returns the configured defaults.
func (s *Service) Settings() Settings {
	return s.settings
}

// RecognizeImage recognizes the faces in an encoded image and records
// attendance for every identity at or above the minimum confidence. Only an
// unreachable store is returned as an error.
func (s *Service) RecognizeImage(ctx context.Context, data []byte, opts ImageOptions) (*Result, error) {
	start := time.Now()
	if err := s.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("attendance store unavailable: %w", err)
	}

	lang := s.lang(opts.Lang)
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = s.settings.ImageMinConfidence
	}
	res := &Result{RequestID: uuid.NewString(), MinConfidence: minConf, RecognizedPeople: []Decision{}}
	logger := log.WithFields(log.Fields{"request_id": res.RequestID, "source": SourceImage})

	img, err := recognition.Decode(data)
	if err != nil {
		logger.Warnf("Rejecting image: %v", err)
		res.Message = s.messages.Localize(lang, locale.MsgInvalidImage, nil, nil)
		s.record(ctx, res, SourceImage, "", 0, 0, "", start)
		return res, nil
	}

	analysis := s.images.Analyze(ctx, img, s.settings.ImageProfile)
	res.FacesDetected = analysis.FacesDetected

	var accepted []recognition.IdentityCandidate
	for _, c := range analysis.Candidates {
		if c.Score < minConf {
			logger.Debugf("Dropping %s below minimum confidence (%.2f < %.2f)", c.Name, c.Score, minConf)
			continue
		}
		accepted = append(accepted, c)
	}

	res.RecognizedPeople = s.decider.DecideAll(ctx, accepted)
	switch {
	case len(res.RecognizedPeople) > 0:
		res.Message = s.summary(lang, res.RecognizedPeople)
	case analysis.FacesDetected == 0:
		res.Message = s.messages.Localize(lang, locale.MsgNoFaceDetected, nil, nil)
	default:
		res.Message = s.messages.Localize(lang, locale.MsgNoConfidentFace, nil, nil)
	}

	s.record(ctx, res, SourceImage, "", 0, 0, "", start)
	s.publish(ctx, res, SourceImage)
	return res, nil
}

// RecognizeVideo samples the clip at path and records attendance for the
// identities the selected policy yields.
func (s *Service) RecognizeVideo(ctx context.Context, path string, opts VideoOptions) (*VideoResult, error) {
	start := time.Now()
	if err := s.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("attendance store unavailable: %w", err)
	}

	lang := s.lang(opts.Lang)
	vopts := s.videoOptions(opts)

	res := &VideoResult{
		Result: Result{
			RequestID:        uuid.NewString(),
			MinConfidence:    vopts.MinConfidence,
			RecognizedPeople: []Decision{},
		},
		ShouldStop: true,
		Policy:     vopts.Policy,
	}
	log.WithFields(log.Fields{
		"request_id": res.RequestID,
		"policy":     vopts.Policy,
		"max_frames": vopts.MaxFrames,
		"interval":   vopts.FrameInterval,
		"timeout":    vopts.Timeout,
	}).Info("Recognizing video")

	out := s.videos.RecognizePath(ctx, path, vopts)
	res.ProcessedFrames = out.Stats.ProcessedFrames
	res.TotalFrames = out.Stats.TotalFrames
	res.StopReason = out.Stats.Reason
	res.RecognizedPeople = s.decider.DecideAll(ctx, out.Candidates)

	switch {
	case len(res.RecognizedPeople) > 0:
		res.Message = s.summary(lang, res.RecognizedPeople)
	case out.Stats.Reason == video.StopOpenFailed:
		res.Message = s.messages.Localize(lang, locale.MsgVideoOpenFailed, nil, nil)
	default:
		res.Message = s.messages.Localize(lang, locale.MsgNoFaceInVideo, nil, nil)
	}

	s.record(ctx, &res.Result, SourceVideo, string(res.Policy), res.ProcessedFrames, res.TotalFrames, string(res.StopReason), start)
	s.publish(ctx, &res.Result, SourceVideo)
	return res, nil
}

func (s *Service) videoOptions(o VideoOptions) video.Options {
	v := s.settings.Video
	if o.MinConfidence > 0 {
		v.MinConfidence = o.MinConfidence
	}
	if o.FrameInterval > 0 {
		v.FrameInterval = o.FrameInterval
	}
	if o.MaxFrames > 0 {
		v.MaxFrames = o.MaxFrames
	}
	if o.Timeout > 0 {
		v.Timeout = o.Timeout
	}
	if o.Policy != "" {
		v.Policy = o.Policy
	}
	return v
}

func (s *Service) lang(requested string) string {
	if requested != "" {
		return requested
	}
	return s.messages.Default()
}

// summary renders "N recognized (M already attended today)".
func (s *Service) summary(lang string, decisions []Decision) string {
	n := len(decisions)
	msg := s.messages.Localize(lang, locale.MsgRecognized, map[string]any{"Count": n}, n)
	if already := Count(decisions, StatusAlreadyAttended); already > 0 {
		msg += s.messages.Localize(lang, locale.MsgAlreadyAttended, map[string]any{"Count": already}, already)
	}
	return msg
}

func (s *Service) record(ctx context.Context, res *Result, source, policy string, processed, total int, reason string, start time.Time) {
	candidates, err := json.Marshal(res.RecognizedPeople)
	if err != nil {
		log.Warnf("Failed to encode recognition candidates: %v", err)
		candidates = []byte("[]")
	}
	rec := &models.Recognition{
		RequestID:       res.RequestID,
		Source:          source,
		Policy:          policy,
		FacesDetected:   res.FacesDetected,
		Recognized:      len(res.RecognizedPeople),
		Recorded:        Count(res.RecognizedPeople, StatusRecorded),
		ProcessedFrames: processed,
		TotalFrames:     total,
		StopReason:      reason,
		DurationMs:      time.Since(start).Milliseconds(),
		Candidates:      datatypes.JSON(candidates),
	}
	if err := s.repo.SaveRecognition(ctx, rec); err != nil {
		log.WithField("request_id", res.RequestID).Warnf("Failed to save recognition log: %v", err)
	}
}

func (s *Service) publish(ctx context.Context, res *Result, source string) {
	if len(s.notifiers) == 0 {
		return
	}
	now := timezone.Now()
	events := make([]Event, 0, len(res.RecognizedPeople)+1)
	for _, d := range res.RecognizedPeople {
		if d.Status != StatusRecorded {
			continue
		}
		events = append(events, Event{
			Type:         EventAttendanceRecorded,
			RequestID:    res.RequestID,
			Source:       source,
			PersonID:     d.PersonID,
			AttendanceID: d.AttendanceID,
			Name:         d.Name,
			Confidence:   d.Confidence,
			Time:         now,
		})
	}
	events = append(events, Event{
		Type:       EventRecognitionCompleted,
		RequestID:  res.RequestID,
		Source:     source,
		Recognized: len(res.RecognizedPeople),
		Recorded:   Count(res.RecognizedPeople, StatusRecorded),
		Time:       now,
	})

	for _, n := range s.notifiers {
		for _, ev := range events {
			if err := n.Notify(ctx, ev); err != nil {
				log.WithField("event", ev.Type).Warnf("Notifier failed: %v", err)
			}
		}
	}
}
