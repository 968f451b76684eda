// fake_service.go - In-process collaborator service for tests
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/labstack/echo/v4"
)

// UploadedFile records one multipart upload received by the fake.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Gate holds a request inside the fake until released.
type Gate struct {
	Arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *Gate {
	return &Gate{
		Arrived: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

// Release lets the held request continue. Safe to call more than once.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

type failure struct {
	status int
	body   string
}

// FakeService implements the collaborator contract (/upload, /solve, /health)
// with scripted responses.
type FakeService struct {
	mu            sync.Mutex
	questions     []string
	uploadFailure *failure
	uploadBody    string
	uploadGate    *Gate
	answers       map[string]string
	solveFailures map[string]failure
	solveBody     string
	solveGates    map[string]*Gate
	healthStatus  string
	uploads       []UploadedFile
	solveRequests [][]string
	gates         []*Gate
	server        *httptest.Server
}

// NewFakeService starts a fake collaborator on a local listener.
// Close it with t.Cleanup(fake.Close).
func NewFakeService() *FakeService {
	f := &FakeService{
		questions:     []string{},
		answers:       make(map[string]string),
		solveFailures: make(map[string]failure),
		solveGates:    make(map[string]*Gate),
		healthStatus:  "ok",
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/upload", f.handleUpload)
	e.POST("/solve", f.handleSolve)
	e.GET("/health", f.handleHealth)

	f.server = httptest.NewServer(e)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeService) URL() string {
	return f.server.URL
}

// Close releases any held requests and shuts the fake down.
func (f *FakeService) Close() {
	f.mu.Lock()
	for _, g := range f.gates {
		g.Release()
	}
	f.mu.Unlock()
	f.server.Close()
}

// SetQuestions scripts the questions returned by /upload.
func (f *FakeService) SetQuestions(questions ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append([]string{}, questions...)
	f.uploadFailure = nil
	f.uploadBody = ""
}

// FailUpload makes /upload respond with status and a JSON body. An empty
// detail omits the field.
func (f *FakeService) FailUpload(status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadFailure = &failure{status: status, body: detailBody(detail)}
}

// SetUploadBody makes /upload answer 200 with a raw body.
func (f *FakeService) SetUploadBody(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadBody = raw
}

// BlockUpload holds the next /upload request until the gate is released.
func (f *FakeService) BlockUpload() *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadGate = newGate()
	f.gates = append(f.gates, f.uploadGate)
	return f.uploadGate
}

// SetAnswer scripts the answer for a question.
func (f *FakeService) SetAnswer(question, answer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[question] = answer
	delete(f.solveFailures, question)
}

// FailSolve makes /solve for question respond with status and a JSON body.
func (f *FakeService) FailSolve(question string, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solveFailures[question] = failure{status: status, body: detailBody(detail)}
}

// SetSolveBody makes every /solve answer 200 with a raw body.
func (f *FakeService) SetSolveBody(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solveBody = raw
}

// BlockSolve holds the next /solve request for question until released.
func (f *FakeService) BlockSolve(question string) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.solveGates[question] = g
	f.gates = append(f.gates, g)
	return g
}

// SetHealth scripts the status reported by /health.
func (f *FakeService) SetHealth(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthStatus = status
}

// Uploads returns the files received so far.
func (f *FakeService) Uploads() []UploadedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UploadedFile{}, f.uploads...)
}

// SolveRequests returns the question lists received by /solve so far.
func (f *FakeService) SolveRequests() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string{}, f.solveRequests...)
}

func (f *FakeService) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "field required: file"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to open upload"})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to read upload"})
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, UploadedFile{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	gate := f.uploadGate
	f.uploadGate = nil
	questions := append([]string{}, f.questions...)
	fail := f.uploadFailure
	raw := f.uploadBody
	f.mu.Unlock()

	if !waitGate(c, gate) {
		return nil
	}

	if fail != nil {
		return c.JSONBlob(fail.status, []byte(fail.body))
	}
	if raw != "" {
		return c.JSONBlob(http.StatusOK, []byte(raw))
	}
	return c.JSON(http.StatusOK, map[string][]string{"questions": questions})
}

func (f *FakeService) handleSolve(c echo.Context) error {
	var req struct {
		Questions []string `json:"questions"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid JSON body"})
	}

	f.mu.Lock()
	f.solveRequests = append(f.solveRequests, req.Questions)
	var question string
	if len(req.Questions) > 0 {
		question = req.Questions[0]
	}
	gate := f.solveGates[question]
	delete(f.solveGates, question)
	fail, failed := f.solveFailures[question]
	answer, known := f.answers[question]
	raw := f.solveBody
	f.mu.Unlock()

	if !waitGate(c, gate) {
		return nil
	}

	if failed {
		return c.JSONBlob(fail.status, []byte(fail.body))
	}
	if raw != "" {
		return c.JSONBlob(http.StatusOK, []byte(raw))
	}
	if !known {
		answer = "answer to: " + question
	}
	return c.JSON(http.StatusOK, map[string]string{"answer": answer})
}

func (f *FakeService) handleHealth(c echo.Context) error {
	f.mu.Lock()
	status := f.healthStatus
	f.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

// waitGate blocks on a gate. It returns false if the client went away first.
func waitGate(c echo.Context, g *Gate) bool {
	if g == nil {
		return true
	}
	g.Arrived <- struct{}{}
	select {
	case <-g.release:
		return true
	case <-c.Request().Context().Done():
		return false
	}
}

func detailBody(detail string) string {
	if detail == "" {
		return `{}`
	}
	b, _ := json.Marshal(map[string]string{"detail": detail})
	return string(b)
}
