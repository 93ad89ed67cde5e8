package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/pkg/jobs"
	"github.com/hoasen-edu/preschool-api/pkg/mailer"
)

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func notificationApp() *models.EnrollmentApplication {
	return &models.EnrollmentApplication{
		EnrollCode:    "STUEN-20250101-001",
		StudentName:   "Nguyễn Minh Khang",
		GuardianName:  "Nguyễn Văn An",
		GuardianEmail: "an.nguyen@example.com",
	}
}

func mustMessage(t *testing.T, job jobs.Job) mailer.Message {
	t.Helper()
	msg, ok := job.Payload.(mailer.Message)
	require.True(t, ok)
	return msg
}

func TestSendConfirmationRequestRendersKeywordAndCode(t *testing.T) {
	queue := &fakeQueue{}
	svc, err := NewNotificationService(queue, testKeyword, nil, nil)
	require.NoError(t, err)

	svc.SendConfirmationRequest(notificationApp())

	require.Len(t, queue.jobs, 1)
	msg := mustMessage(t, queue.jobs[0])
	assert.Equal(t, []string{"an.nguyen@example.com"}, msg.To)
	assert.True(t, msg.HTML)
	assert.Contains(t, msg.Subject, "STUEN-20250101-001")
	assert.Contains(t, msg.Body, testKeyword)
	assert.Contains(t, msg.Body, "STUEN-20250101-001")
	assert.Contains(t, msg.Body, "Nguyễn Văn An")
}

func TestSendAttachmentErrorRendersRetryInstructions(t *testing.T) {
	queue := &fakeQueue{}
	svc, err := NewNotificationService(queue, testKeyword, nil, nil)
	require.NoError(t, err)

	svc.SendAttachmentError(notificationApp())

	require.Len(t, queue.jobs, 1)
	msg := mustMessage(t, queue.jobs[0])
	assert.Contains(t, msg.Body, testKeyword)
	assert.Contains(t, msg.Body, "STUEN-20250101-001")
}

func TestSendSuccessNewAccountIncludesCredentials(t *testing.T) {
	queue := &fakeQueue{}
	svc, err := NewNotificationService(queue, testKeyword, nil, nil)
	require.NoError(t, err)

	student := &models.Student{StudentCode: "STU-25001"}
	svc.SendSuccessNewAccount(notificationApp(), student, "annv42", "hoasen123")

	require.Len(t, queue.jobs, 1)
	msg := mustMessage(t, queue.jobs[0])
	assert.Contains(t, msg.Body, "STU-25001")
	assert.Contains(t, msg.Body, "annv42")
	assert.Contains(t, msg.Body, "hoasen123")
}

func TestSendSuccessExistingAccountOmitsPassword(t *testing.T) {
	queue := &fakeQueue{}
	svc, err := NewNotificationService(queue, testKeyword, nil, nil)
	require.NoError(t, err)

	student := &models.Student{StudentCode: "STU-25002"}
	svc.SendSuccessExistingAccount(notificationApp(), student, "annv17")

	require.Len(t, queue.jobs, 1)
	msg := mustMessage(t, queue.jobs[0])
	assert.Contains(t, msg.Body, "annv17")
	assert.NotContains(t, msg.Body, "hoasen123")
}

func TestSendSwallowsEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{err: assert.AnError}
	svc, err := NewNotificationService(queue, testKeyword, nil, nil)
	require.NoError(t, err)

	// Must not panic and must not block the pipeline.
	svc.SendConfirmationRequest(notificationApp())
	assert.Empty(t, queue.jobs)
}
