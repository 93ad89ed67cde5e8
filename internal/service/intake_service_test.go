package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/pkg/config"
	appErrors "github.com/hoasen-edu/preschool-api/pkg/errors"
)

type fakeIntakeApps struct {
	created *models.EnrollmentApplication
	pending int
	err     error
}

func (f *fakeIntakeApps) List(context.Context, models.ApplicationFilter) ([]models.EnrollmentApplication, int, error) {
	return nil, 0, nil
}

func (f *fakeIntakeApps) FindByCode(context.Context, string) (*models.EnrollmentApplication, error) {
	return nil, nil
}

func (f *fakeIntakeApps) Create(_ context.Context, application *models.EnrollmentApplication) error {
	if f.err != nil {
		return f.err
	}
	f.created = application
	return nil
}

func (f *fakeIntakeApps) CountPending(context.Context) (int, error) {
	return f.pending, nil
}

type fakeStudentCounter struct {
	count int
}

func (f *fakeStudentCounter) Count(context.Context) (int, error) { return f.count, nil }

type fakeEnrollCodes struct {
	code string
	err  error
}

func (f *fakeEnrollCodes) NextEnrollCode(context.Context) (string, error) {
	return f.code, f.err
}

type fakeConfirmationRequester struct {
	sent []*models.EnrollmentApplication
}

func (f *fakeConfirmationRequester) SendConfirmationRequest(app *models.EnrollmentApplication) {
	f.sent = append(f.sent, app)
}

func intakeConfig() config.EnrollConfig {
	return config.EnrollConfig{
		MinAge:    2,
		MaxAge:    5,
		RoomCount: 6,
		RoomLimit: 25,
	}
}

func validIntakeRequest() IntakeRequest {
	return IntakeRequest{
		StudentName:       "Nguyễn Minh Khang",
		StudentAge:        3,
		StudentBirthDate:  "2022-03-15",
		StudentGender:     "male",
		GuardianName:      "Nguyễn Văn An",
		GuardianBirthDate: "1990-06-01",
		GuardianGender:    "male",
		GuardianDocument:  "079090001234",
		GuardianPhone:     "0901234567",
		GuardianEmail:     "an.nguyen@example.com",
		GuardianAddress:   "12 Lê Lợi, Quận 1, TP.HCM",
		Relationship:      "father",
		Reason:            "gần nhà",
	}
}

func TestSubmitCreatesWaitingConfirmAndQueuesEmail(t *testing.T) {
	apps := &fakeIntakeApps{}
	notifier := &fakeConfirmationRequester{}
	svc := NewIntakeService(apps, &fakeStudentCounter{}, &fakeEnrollCodes{code: "STUEN-20250101-001"}, notifier, intakeConfig(), nil, nil)

	app, err := svc.Submit(context.Background(), validIntakeRequest())
	require.NoError(t, err)
	assert.Equal(t, "STUEN-20250101-001", app.EnrollCode)
	assert.Equal(t, models.StateWaitingConfirm, app.State)
	require.NotNil(t, apps.created)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, app, notifier.sent[0])
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	svc := NewIntakeService(&fakeIntakeApps{}, &fakeStudentCounter{}, &fakeEnrollCodes{}, &fakeConfirmationRequester{}, intakeConfig(), nil, nil)

	req := validIntakeRequest()
	req.GuardianEmail = "not-an-email"
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsAgeOutOfRange(t *testing.T) {
	notifier := &fakeConfirmationRequester{}
	svc := NewIntakeService(&fakeIntakeApps{}, &fakeStudentCounter{}, &fakeEnrollCodes{}, notifier, intakeConfig(), nil, nil)

	req := validIntakeRequest()
	req.StudentAge = 6
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAgeOutOfRange.Code, appErrors.FromError(err).Code)
	assert.Empty(t, notifier.sent)
}

func TestSubmitRejectsWhenCapacityReached(t *testing.T) {
	// 6 rooms of 25: 140 enrolled plus 10 pending fills the school.
	apps := &fakeIntakeApps{pending: 10}
	students := &fakeStudentCounter{count: 140}
	svc := NewIntakeService(apps, students, &fakeEnrollCodes{}, &fakeConfirmationRequester{}, intakeConfig(), nil, nil)

	_, err := svc.Submit(context.Background(), validIntakeRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityReached.Code, appErrors.FromError(err).Code)
	assert.Nil(t, apps.created)
}

func TestSubmitPendingApplicationsHoldSeats(t *testing.T) {
	apps := &fakeIntakeApps{pending: 149}
	svc := NewIntakeService(apps, &fakeStudentCounter{count: 0}, &fakeEnrollCodes{code: "STUEN-20250101-002"}, &fakeConfirmationRequester{}, intakeConfig(), nil, nil)

	app, err := svc.Submit(context.Background(), validIntakeRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingConfirm, app.State)
}

func TestSubmitSurfacesCreateFailure(t *testing.T) {
	apps := &fakeIntakeApps{err: errors.New("insert failed")}
	notifier := &fakeConfirmationRequester{}
	svc := NewIntakeService(apps, &fakeStudentCounter{}, &fakeEnrollCodes{code: "STUEN-20250101-003"}, notifier, intakeConfig(), nil, nil)

	_, err := svc.Submit(context.Background(), validIntakeRequest())
	require.Error(t, err)
	assert.Empty(t, notifier.sent)
}
