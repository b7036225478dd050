package handlers

import (
	"context"
	"time"

	"agropres/internal/models"
	"agropres/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockCommands struct {
	toggleErr    error
	pwmErr       error
	modeErr      error
	schedulesErr error

	toggleCalls   int
	lastToggleKey string
	lastToggleVal bool

	pwmCalls    int
	lastPwmVal  int
	modeCalls   int
	lastModeKey string
	lastMode    string

	scheduleCalls int
	lastSchedules map[string]models.RelaySchedule
}

func (m *mockCommands) Toggle(ctx context.Context, key string, value bool) error {
	m.toggleCalls++
	m.lastToggleKey = key
	m.lastToggleVal = value
	return m.toggleErr
}
func (m *mockCommands) SetPwmRaw(ctx context.Context, value int) error {
	m.pwmCalls++
	m.lastPwmVal = value
	return m.pwmErr
}
func (m *mockCommands) SetMode(ctx context.Context, key, mode string) error {
	m.modeCalls++
	m.lastModeKey = key
	m.lastMode = mode
	return m.modeErr
}
func (m *mockCommands) SaveSchedules(ctx context.Context, schedules map[string]models.RelaySchedule) error {
	m.scheduleCalls++
	m.lastSchedules = schedules
	return m.schedulesErr
}

type mockMonitoring struct {
	snap service.DeviceSnapshot
	err  error
}

func (m *mockMonitoring) Snapshot(ctx context.Context) (service.DeviceSnapshot, error) {
	return m.snap, m.err
}

type mockEventLog struct {
	resp     []models.EngineEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.EngineEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockReminders struct {
	resp      []models.Reminder
	listErr   error
	addID     string
	addErr    error
	deleteErr error

	lastAdded  models.Reminder
	addCalls   int
	lastDelete string
}

func (m *mockReminders) Run(ctx context.Context, tick time.Duration) {}
func (m *mockReminders) Add(ctx context.Context, r models.Reminder) (string, error) {
	m.addCalls++
	m.lastAdded = r
	return m.addID, m.addErr
}
func (m *mockReminders) Delete(ctx context.Context, id string) error {
	m.lastDelete = id
	return m.deleteErr
}
func (m *mockReminders) List(ctx context.Context) ([]models.Reminder, error) {
	return m.resp, m.listErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
