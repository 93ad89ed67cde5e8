package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/pkg/jobs"
	"github.com/hoasen-edu/preschool-api/pkg/mailer"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Template names keyed by pipeline outcome.
const (
	tmplConfirmRequest         = "confirm_request.gohtml"
	tmplAttachmentError        = "attachment_error.gohtml"
	tmplSuccessNewAccount      = "success_new_account.gohtml"
	tmplSuccessExistingAccount = "success_existing_account.gohtml"
)

type mailEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService renders the four pipeline emails and queues them for
// asynchronous delivery. Sends never affect pipeline state: a failed send is
// logged by the queue and that is the end of it.
type NotificationService struct {
	queue   mailEnqueuer
	keyword string
	metrics *MetricsService
	logger  *zap.Logger
	tmpl    *template.Template
}

// NewNotificationService constructs a NotificationService. metrics may be nil.
func NewNotificationService(queue mailEnqueuer, keyword string, metrics *MetricsService, logger *zap.Logger) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &NotificationService{queue: queue, keyword: keyword, metrics: metrics, logger: logger, tmpl: tmpl}, nil
}

// NewMailQueue builds the worker queue that drains outbound messages through
// the given sender.
func NewMailQueue(sender mailer.Sender, workers, retries int, logger *zap.Logger) *jobs.Queue {
	handler := func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			return fmt.Errorf("unexpected mail payload %T", job.Payload)
		}
		return sender.Send(ctx, msg)
	}
	return jobs.NewQueue("mail", handler, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
}

type templateData struct {
	GuardianName   string
	StudentName    string
	EnrollCode     string
	ConfirmKeyword string
	StudentCode    string
	Username       string
	Password       string
}

// SendConfirmationRequest asks the guardian to reply with the signed photo.
func (s *NotificationService) SendConfirmationRequest(app *models.EnrollmentApplication) {
	s.send(tmplConfirmRequest, app.GuardianEmail,
		fmt.Sprintf("Đăng ký nhập học %s - vui lòng xác nhận", app.EnrollCode),
		templateData{
			GuardianName:   app.GuardianName,
			StudentName:    app.StudentName,
			EnrollCode:     app.EnrollCode,
			ConfirmKeyword: s.keyword,
		})
}

// SendAttachmentError tells the guardian their reply carried no usable photo.
func (s *NotificationService) SendAttachmentError(app *models.EnrollmentApplication) {
	s.send(tmplAttachmentError, app.GuardianEmail,
		fmt.Sprintf("Hồ sơ %s - ảnh xác nhận không hợp lệ", app.EnrollCode),
		templateData{
			GuardianName:   app.GuardianName,
			StudentName:    app.StudentName,
			EnrollCode:     app.EnrollCode,
			ConfirmKeyword: s.keyword,
		})
}

// SendSuccessNewAccount announces enrollment plus the freshly created account.
func (s *NotificationService) SendSuccessNewAccount(app *models.EnrollmentApplication, student *models.Student, username, password string) {
	s.send(tmplSuccessNewAccount, app.GuardianEmail,
		fmt.Sprintf("Hồ sơ %s - nhập học thành công", app.EnrollCode),
		templateData{
			GuardianName: app.GuardianName,
			StudentName:  app.StudentName,
			EnrollCode:   app.EnrollCode,
			StudentCode:  student.StudentCode,
			Username:     username,
			Password:     password,
		})
}

// SendSuccessExistingAccount announces enrollment under an existing account.
// The password is deliberately omitted.
func (s *NotificationService) SendSuccessExistingAccount(app *models.EnrollmentApplication, student *models.Student, username string) {
	s.send(tmplSuccessExistingAccount, app.GuardianEmail,
		fmt.Sprintf("Hồ sơ %s - nhập học thành công", app.EnrollCode),
		templateData{
			GuardianName: app.GuardianName,
			StudentName:  app.StudentName,
			EnrollCode:   app.EnrollCode,
			StudentCode:  student.StudentCode,
			Username:     username,
		})
}

func (s *NotificationService) send(name, to, subject string, data templateData) {
	var body bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&body, name, data); err != nil {
		s.logger.Sugar().Errorw("render mail template", "template", name, "error", err)
		return
	}

	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: name,
		Payload: mailer.Message{
			To:      []string{to},
			Subject: subject,
			Body:    body.String(),
			HTML:    true,
		},
		Done: func(err error) {
			if err != nil {
				s.logger.Sugar().Errorw("mail delivery failed", "template", name, "to", to, "error", err)
				return
			}
			s.logger.Sugar().Infow("mail delivered", "template", name, "to", to)
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Errorw("enqueue mail", "template", name, "to", to, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveEmail(name)
	}
}
