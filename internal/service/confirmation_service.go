package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hoasen-edu/preschool-api/internal/mail"
	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/pkg/cache"
	appErrors "github.com/hoasen-edu/preschool-api/pkg/errors"
	"github.com/hoasen-edu/preschool-api/pkg/mailer"
)

type confirmationApplicationRepository interface {
	ListEligible(ctx context.Context) ([]models.EnrollmentApplication, error)
	FindByCode(ctx context.Context, enrollCode string) (*models.EnrollmentApplication, error)
	Claim(ctx context.Context, enrollCode string) (bool, error)
	Resolve(ctx context.Context, enrollCode string, state models.ApplicationState, sign models.SignInfo) error
}

type messageReader interface {
	Read(ctx context.Context, fetcher mail.Fetcher, uid imap.UID) (*mail.ReadResult, error)
}

type studentProvisioner interface {
	Provision(ctx context.Context, app *models.EnrollmentApplication, photo mail.Attachment) (*models.Student, error)
}

type attachmentErrorNotifier interface {
	SendAttachmentError(app *models.EnrollmentApplication)
}

// Message outcomes recorded per scan.
const (
	outcomeFinished        = "finished"
	outcomeError           = "error"
	outcomeSkipped         = "skipped"
	outcomeProvisionFailed = "provision_failed"
)

// ConfirmationService drives enrollment applications through their lifecycle
// from inbound confirmation replies. A trigger returns the currently eligible
// applications synchronously and performs the mailbox scan in the background;
// within one scan, messages are handled strictly one at a time over a single
// mailbox session.
type ConfirmationService struct {
	apps        confirmationApplicationRepository
	mailbox     mailer.Mailbox
	reader      messageReader
	provisioner studentProvisioner
	notifier    attachmentErrorNotifier
	lock        *cache.ScanLock
	metrics     *MetricsService
	logger      *zap.Logger

	subjectPattern *regexp.Regexp
}

// NewConfirmationService constructs a ConfirmationService. lock and metrics
// may be nil.
func NewConfirmationService(apps confirmationApplicationRepository, mailbox mailer.Mailbox, reader messageReader, provisioner studentProvisioner, notifier attachmentErrorNotifier, lock *cache.ScanLock, keyword string, metrics *MetricsService, logger *zap.Logger) *ConfirmationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	pattern := regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(keyword) + `\s*-\s*(STUEN-\d{8}-\d{3})\s*$`)
	return &ConfirmationService{
		apps:           apps,
		mailbox:        mailbox,
		reader:         reader,
		provisioner:    provisioner,
		notifier:       notifier,
		lock:           lock,
		metrics:        metrics,
		logger:         logger,
		subjectPattern: pattern,
	}
}

// Trigger acknowledges the caller with the list of eligible applications and
// starts the scan in the background. When nothing is eligible, no mailbox
// session is opened at all.
func (s *ConfirmationService) Trigger(ctx context.Context) ([]models.EnrollmentApplication, error) {
	eligible, err := s.apps.ListEligible(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list eligible applications")
	}
	if len(eligible) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoEligible, "")
	}

	go s.Scan(context.Background())

	return eligible, nil
}

// Scan performs one full mailbox pass. All failures are logged here; nothing
// propagates to the HTTP caller, which has already been acknowledged. The
// guardian's inbox is the only feedback channel for outcomes.
func (s *ConfirmationService) Scan(ctx context.Context) {
	runID := uuid.NewString()
	start := time.Now()
	log := s.logger.Sugar().With("run_id", runID)

	acquired, err := s.lock.Acquire(ctx, runID)
	if err != nil {
		log.Warnw("scan lock unavailable, proceeding unlocked", "error", err)
	} else if !acquired {
		log.Infow("scan already in progress, skipping")
		s.observeScan("skipped", start)
		return
	} else {
		defer func() {
			if err := s.lock.Release(context.Background(), runID); err != nil {
				log.Warnw("release scan lock", "error", err)
			}
		}()
	}

	session, err := s.mailbox.Connect()
	if err != nil {
		log.Errorw("mailbox connect failed", "error", err)
		s.observeScan("aborted", start)
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warnw("mailbox close failed", "error", err)
		}
	}()

	uids, err := session.SearchUnseen()
	if err != nil {
		log.Errorw("mailbox search failed", "error", err)
		s.observeScan("aborted", start)
		return
	}
	log.Infow("scan started", "unseen", len(uids))

	for _, uid := range uids {
		if err := s.processMessage(ctx, session, uid); err != nil {
			// Transport-level failure: abort the run. Outcomes already
			// committed for earlier messages stay committed.
			log.Errorw("message processing aborted run", "uid", uid, "error", err)
			s.observeScan("aborted", start)
			return
		}
	}

	log.Infow("scan finished", "messages", len(uids), "elapsed", time.Since(start))
	s.observeScan("completed", start)
}

// processMessage handles a single inbound message end to end. It returns an
// error only for transport failures that should abort the whole run; domain
// outcomes (skip, error path, success) are committed and the message is
// marked seen exactly once, after its retries are finished.
func (s *ConfirmationService) processMessage(ctx context.Context, session mailer.Session, uid imap.UID) error {
	raw, err := session.Fetch(uid)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	subject, _, err := mail.ParseEnvelope(raw)
	if err != nil {
		s.logger.Sugar().Warnw("unparseable message envelope", "uid", uid, "error", err)
		s.observeMessage(outcomeSkipped)
		return s.markSeen(session, uid)
	}

	enrollCode, ok := s.matchSubject(subject)
	if !ok {
		s.observeMessage(outcomeSkipped)
		return s.markSeen(session, uid)
	}

	app, err := s.apps.FindByCode(ctx, enrollCode)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Sugar().Errorw("application lookup failed", "enroll_code", enrollCode, "error", err)
		}
		s.observeMessage(outcomeSkipped)
		return s.markSeen(session, uid)
	}

	// Claim before any attachment inspection so a concurrent run cannot
	// process the same application. Losing the claim means the application
	// was not eligible or another run got there first.
	claimed, err := s.apps.Claim(ctx, enrollCode)
	if err != nil {
		s.logger.Sugar().Errorw("claim failed", "enroll_code", enrollCode, "error", err)
		s.observeMessage(outcomeSkipped)
		return s.markSeen(session, uid)
	}
	if !claimed {
		s.logger.Sugar().Infow("application not claimable", "enroll_code", enrollCode, "state", app.State)
		s.observeMessage(outcomeSkipped)
		return s.markSeen(session, uid)
	}

	result, err := s.reader.Read(ctx, session, uid)
	if err != nil {
		// The application stays claimed; a transport failure aborts the run
		// without resolving it either way.
		return fmt.Errorf("read: %w", err)
	}

	s.resolve(ctx, app, result)
	return s.markSeen(session, uid)
}

func (s *ConfirmationService) resolve(ctx context.Context, app *models.EnrollmentApplication, result *mail.ReadResult) {
	log := s.logger.Sugar().With("enroll_code", app.EnrollCode)

	photo, hasPhoto := result.Message.FirstImageAttachment()
	if !result.FullyRead || !hasPhoto {
		if err := s.apps.Resolve(ctx, app.EnrollCode, models.StateError, models.SignInfo{}); err != nil {
			log.Errorw("persist error state failed", "error", err)
			return
		}
		s.notifier.SendAttachmentError(app)
		s.observeMessage(outcomeError)
		log.Infow("confirmation rejected, awaiting corrected reply")
		return
	}

	sign := models.SignInfo{
		Received: true,
		At:       time.Now().UTC(),
		By:       app.GuardianName,
		From:     result.Message.From,
	}

	if _, err := s.provisioner.Provision(ctx, app, *photo); err != nil {
		// Not part of the happy path contract: fall back to ERROR so the
		// application stays reachable by a later reply instead of sitting
		// claimed forever.
		log.Errorw("provisioning failed", "error", err)
		if rerr := s.apps.Resolve(ctx, app.EnrollCode, models.StateError, sign); rerr != nil {
			log.Errorw("persist error state failed", "error", rerr)
		}
		s.observeMessage(outcomeProvisionFailed)
		return
	}

	if err := s.apps.Resolve(ctx, app.EnrollCode, models.StateFinished, sign); err != nil {
		log.Errorw("persist finished state failed", "error", err)
		return
	}
	s.observeMessage(outcomeFinished)
	log.Infow("application finished")
}

func (s *ConfirmationService) matchSubject(subject string) (string, bool) {
	m := s.subjectPattern.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (s *ConfirmationService) markSeen(session mailer.Session, uid imap.UID) error {
	if err := session.MarkSeen(uid); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (s *ConfirmationService) observeScan(result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveScan(result, time.Since(start))
	}
}

func (s *ConfirmationService) observeMessage(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveMessage(outcome)
	}
}
