package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/attendance"
	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/core/processor"
	"face-attendance-go/internal/db"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/locale"
	"face-attendance-go/internal/util/timezone"
	"face-attendance-go/internal/video"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

type fakeRecognizer struct {
	imageOpts attendance.ImageOptions
	videoOpts attendance.VideoOptions
	videoPath string
	videoSeen bool
}

func (f *fakeRecognizer) RecognizeImage(ctx context.Context, data []byte, opts attendance.ImageOptions) (*attendance.Result, error) {
	f.imageOpts = opts
	return &attendance.Result{
		RequestID:        "req-img",
		RecognizedPeople: []attendance.Decision{{Name: "alice", Confidence: 0.9, Status: attendance.StatusRecorded, AttendanceID: 1}},
		Message:          "1 person recognized",
		MinConfidence:    0.65,
		FacesDetected:    1,
	}, nil
}

func (f *fakeRecognizer) RecognizeVideo(ctx context.Context, path string, opts attendance.VideoOptions) (*attendance.VideoResult, error) {
	f.videoOpts = opts
	f.videoPath = path
	_, err := os.Stat(path)
	f.videoSeen = err == nil
	return &attendance.VideoResult{
		Result:     attendance.Result{RequestID: "req-vid", RecognizedPeople: []attendance.Decision{}},
		ShouldStop: true,
		StopReason: video.StopEndOfStream,
		Policy:     opts.Policy,
	}, nil
}

type fakeEnroller struct{}

func (fakeEnroller) Enroll(ctx context.Context, personID uint, data []byte) (*enrollment.Registration, error) {
	if personID != 1 {
		return nil, enrollment.ErrPersonNotFound
	}
	if string(data) == "blank" {
		return nil, enrollment.ErrNoFace
	}
	return &enrollment.Registration{PersonID: 1, Name: "alice", FilePath: "alice_1.jpg", Confidence: 0.99}, nil
}

type fakeGallery struct {
	removed []string
}

func (g *fakeGallery) Remove(person string) (int, error) {
	g.removed = append(g.removed, person)
	return 2, nil
}

func (g *fakeGallery) Counts() (int, int) { return 1, 2 }

type closedPool struct{}

func (closedPool) Do(context.Context, processor.Task) error { return processor.ErrPoolClosed }
func (closedPool) GetWorkerCount() int                      { return 0 }
func (closedPool) ActiveJobCount() int                      { return 0 }
func (closedPool) QueuedJobCount() int                      { return 0 }
func (closedPool) GetQueueCapacity() int                    { return 0 }

type env struct {
	router     *gin.Engine
	repo       *repository.SQLiteRepository
	recognizer *fakeRecognizer
	gallery    *fakeGallery
	uploadDir  string
}

func newEnv(t *testing.T, pool Pool) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Connect("file::memory:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	catalog, err := locale.New("en")
	if err != nil {
		t.Fatalf("locale.New: %v", err)
	}
	e := &env{
		repo:       repository.NewSQLiteRepository(conn),
		recognizer: &fakeRecognizer{},
		gallery:    &fakeGallery{},
		uploadDir:  t.TempDir(),
	}
	h := NewAPIHandler(Options{
		Repo:       e.repo,
		Recognizer: e.recognizer,
		Enroller:   fakeEnroller{},
		Gallery:    e.gallery,
		Messages:   catalog,
		Pool:       pool,
		UploadDir:  e.uploadDir,
		Checks:     map[string]func() bool{"opencv": func() bool { return true }},
	})

	r := gin.New()
	r.Use(sessions.Sessions("attendance", cookie.NewStore([]byte("secret"))))
	r.Use(middleware.I18n(catalog))
	h.RegisterRoutes(r.Group("/api"))
	e.router = r
	return e
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestRecognizeImage(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name     string
		url      string
		filename string
		want     int
	}{
		{"ok", "/api/face-recognition/recognize?min_confidence=0.7&lang=tr", "a.jpg", http.StatusOK},
		{"missing file", "/api/face-recognition/recognize", "", http.StatusBadRequest},
		{"bad confidence", "/api/face-recognition/recognize?min_confidence=1.5", "a.jpg", http.StatusBadRequest},
		{"garbage confidence", "/api/face-recognition/recognize?min_confidence=abc", "a.jpg", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, multipartRequest(t, tt.url, tt.filename, []byte("img")))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if e.recognizer.imageOpts.MinConfidence != 0.7 || e.recognizer.imageOpts.Lang != "tr" {
		t.Errorf("options = %+v", e.recognizer.imageOpts)
	}

	w := e.do(t, multipartRequest(t, "/api/face-recognition/recognize", "a.jpg", []byte("img")))
	var res struct {
		RecognizedPeople []struct {
			Name             string  `json:"name"`
			Confidence       float64 `json:"confidence"`
			AttendanceStatus string  `json:"attendance_status"`
			AttendanceID     uint    `json:"attendance_id"`
		} `json:"recognized_people"`
		Message string `json:"message"`
	}
	decode(t, w, &res)
	if len(res.RecognizedPeople) != 1 || res.RecognizedPeople[0].AttendanceStatus != "recorded" || res.RecognizedPeople[0].AttendanceID != 1 {
		t.Errorf("response = %+v", res)
	}
}

func TestRecognizeVideo(t *testing.T) {
	e := newEnv(t, nil)

	url := "/api/face-recognition/recognize-video?policy=exhaustive&max_frames=5&frame_interval=2&timeout_seconds=2.5&min_confidence=0.5"
	w := e.do(t, multipartRequest(t, url, "clip.MOV", []byte("video")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	opts := e.recognizer.videoOpts
	if opts.Policy != video.PolicyExhaustive || opts.MaxFrames != 5 || opts.FrameInterval != 2 ||
		opts.Timeout != 2500*time.Millisecond || opts.MinConfidence != 0.5 {
		t.Errorf("options = %+v", opts)
	}
	if !e.recognizer.videoSeen || !strings.HasSuffix(e.recognizer.videoPath, ".mov") {
		t.Errorf("upload not staged: path=%q seen=%v", e.recognizer.videoPath, e.recognizer.videoSeen)
	}
	if _, err := os.Stat(e.recognizer.videoPath); !os.IsNotExist(err) {
		t.Error("temporary upload not removed")
	}

	var res map[string]any
	decode(t, w, &res)
	if res["should_stop"] != true || res["stop_reason"] != string(video.StopEndOfStream) || res["policy"] != "exhaustive" {
		t.Errorf("response = %v", res)
	}

	for _, bad := range []string{"?policy=best", "?max_frames=-1", "?timeout_seconds=-3"} {
		w := e.do(t, multipartRequest(t, "/api/face-recognition/recognize-video"+bad, "clip.mp4", []byte("v")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", bad, w.Code)
		}
	}
}

func TestRegisterFace(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name    string
		url     string
		content string
		want    int
	}{
		{"ok", "/api/face-recognition/register-face/1", "img", http.StatusOK},
		{"unknown person", "/api/face-recognition/register-face/9", "img", http.StatusNotFound},
		{"no face", "/api/face-recognition/register-face/1", "blank", http.StatusUnprocessableEntity},
		{"bad id", "/api/face-recognition/register-face/abc", "img", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, multipartRequest(t, tt.url, "p.jpg", []byte(tt.content)))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && !strings.Contains(w.Body.String(), "Face registered for alice") {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}
}

func TestPersons(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, jsonRequest(http.MethodPost, "/api/persons", `{"name":"alice","surname":"smith","email":"Alice@example.com"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created models.Person
	decode(t, w, &created)
	if created.ID == 0 || created.Role != "student" || created.Email != "alice@example.com" {
		t.Errorf("created = %+v", created)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate email", `{"name":"bob","email":"alice@EXAMPLE.com"}`, http.StatusConflict},
		{"underscore in name", `{"name":"bob_smith"}`, http.StatusBadRequest},
		{"missing name", `{"surname":"x"}`, http.StatusBadRequest},
		{"bad email", `{"name":"bob","email":"nope"}`, http.StatusBadRequest},
		{"bad role", `{"name":"bob","role":"king"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, jsonRequest(http.MethodPost, "/api/persons", tt.body)); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/api/persons", nil))
	var list struct {
		Persons []models.Person `json:"persons"`
		Total   int64           `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 || len(list.Persons) != 1 {
		t.Errorf("list = %+v", list)
	}

	if w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/persons/1", nil)); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/persons/42", nil)); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d", w.Code)
	}

	if w := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/persons/1", nil)); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	if len(e.gallery.removed) != 1 || e.gallery.removed[0] != "alice" {
		t.Errorf("gallery removals = %v", e.gallery.removed)
	}
	if w := e.do(t, httptest.NewRequest(http.MethodDelete, "/api/persons/1", nil)); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
}

func TestAttendances(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	restore := timezone.SetClock(func() time.Time { return now })
	defer restore()

	e := newEnv(t, nil)
	ctx := context.Background()

	person := &models.Person{Name: "alice"}
	if err := e.repo.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}
	checkIn := now.Add(-time.Minute)
	rec := &models.Attendance{PersonID: person.ID, CheckInTime: checkIn, ConfidenceScore: 0.8}
	if err := e.repo.CreateAttendance(ctx, rec); err != nil {
		t.Fatal(err)
	}
	today := checkIn.Format("2006-01-02")

	var day struct {
		Date        string              `json:"date"`
		Count       int                 `json:"count"`
		Attendances []models.Attendance `json:"attendances"`
	}
	decode(t, e.do(t, httptest.NewRequest(http.MethodGet, "/api/attendances/today", nil)), &day)
	if day.Count != 1 || day.Date != today || day.Attendances[0].Person.Name != "alice" {
		t.Errorf("today = %+v", day)
	}

	decode(t, e.do(t, httptest.NewRequest(http.MethodGet, "/api/attendances/daily/2001-01-01", nil)), &day)
	if day.Count != 0 {
		t.Errorf("daily count = %d, want 0", day.Count)
	}
	if w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/attendances/daily/01-01-2001", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", w.Code)
	}

	url := "/api/persons/1/attendances?from=" + today + "&to=" + today
	w := e.do(t, httptest.NewRequest(http.MethodGet, url, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("person attendances = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/persons/1/attendances?from=2030-01-02&to=2030-01-01", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d", w.Code)
	}

	early := checkIn.Add(-time.Hour).Format(time.RFC3339)
	if w := e.do(t, jsonRequest(http.MethodPut, "/api/attendances/1/checkout", `{"check_out_time":"`+early+`"}`)); w.Code != http.StatusBadRequest {
		t.Errorf("early checkout status = %d", w.Code)
	}
	w = e.do(t, httptest.NewRequest(http.MethodPut, "/api/attendances/1/checkout", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("checkout status = %d: %s", w.Code, w.Body.String())
	}
	var out models.Attendance
	decode(t, w, &out)
	if out.CheckOutTime == nil {
		t.Error("check_out_time not set")
	}
	if w := e.do(t, httptest.NewRequest(http.MethodPut, "/api/attendances/99/checkout", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing checkout status = %d", w.Code)
	}
}

func TestRecognitionsAndStatus(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.repo.SaveRecognition(context.Background(), &models.Recognition{RequestID: "r1", Source: "image"}); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/recognitions?limit=10", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"request_id":"r1"`) {
		t.Errorf("recognitions = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/recognitions?limit=0", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", w.Code)
	}

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", w.Code, w.Body.String())
	}
	var status struct {
		Status     string          `json:"status"`
		Gallery    map[string]int  `json:"gallery"`
		Components map[string]bool `json:"components"`
		Statistics models.Statistics
	}
	decode(t, w, &status)
	if status.Status != "ok" || status.Gallery["samples"] != 2 || !status.Components["opencv"] {
		t.Errorf("status = %+v", status)
	}
}

func TestPoolClosed(t *testing.T) {
	e := newEnv(t, closedPool{})
	w := e.do(t, multipartRequest(t, "/api/face-recognition/recognize", "a.jpg", []byte("img")))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
