package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/hoasen-edu/preschool-api/pkg/retry"
)

// Attachment is one decoded attachment of an inbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the structured form of an inbound confirmation reply.
type Message struct {
	Subject     string
	From        string
	Attachments []Attachment
}

// FirstImageAttachment returns the first named image attachment, if any.
func (m *Message) FirstImageAttachment() (*Attachment, bool) {
	for i := range m.Attachments {
		att := &m.Attachments[i]
		if att.Filename != "" && isImage(*att) {
			return att, true
		}
	}
	return nil, false
}

// ReadResult carries the best-effort message plus whether the reader got a
// complete, validated read before its retry bound ran out.
type ReadResult struct {
	Message   Message
	FullyRead bool
}

// Fetcher supplies raw message bytes by UID. One fetch is one network
// round-trip; the reader may call it several times for the same UID.
type Fetcher interface {
	Fetch(uid imap.UID) ([]byte, error)
}

var (
	errAttachmentPending = errors.New("attachment metadata not materialized")
	errPayloadTruncated  = errors.New("attachment payload truncated")
)

// Reader turns raw fetched messages into structured form while absorbing two
// transient mailbox inconsistencies: attachment metadata that lags the search
// index, and image payloads that arrive truncated. Both are retried under the
// same bounded fixed-interval policy; any other validation failure surfaces
// immediately.
type Reader struct {
	policy retry.Policy
	logger *zap.Logger
}

// NewReader constructs a Reader with the given retry policy.
func NewReader(policy retry.Policy, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{policy: policy, logger: logger}
}

// Read fetches and parses the message identified by uid. A fetch transport
// failure is returned as a hard error (the caller aborts its run). Parse and
// validation outcomes never error: after the retry bound is spent the
// best-effort message is returned with FullyRead=false.
func (r *Reader) Read(ctx context.Context, fetcher Fetcher, uid imap.UID) (*ReadResult, error) {
	var (
		best     Message
		fetchErr error
	)

	err := r.policy.Do(ctx, func(attempt int) error {
		raw, err := fetcher.Fetch(uid)
		if err != nil {
			fetchErr = err
			return err
		}

		msg, err := parseMessage(raw)
		if err != nil {
			// Treat an unparseable body the same as a truncated payload:
			// the message may not be fully delivered yet.
			r.logger.Sugar().Warnw("message parse failed", "uid", uid, "attempt", attempt, "error", err)
			return retry.Transient(err)
		}
		best = *msg

		if !hasNamedAttachment(msg) {
			r.logger.Sugar().Debugw("attachment not yet visible", "uid", uid, "attempt", attempt)
			return retry.Transient(errAttachmentPending)
		}

		if err := validateAttachments(msg); err != nil {
			if errors.Is(err, errPayloadTruncated) {
				r.logger.Sugar().Warnw("attachment truncated, refetching", "uid", uid, "attempt", attempt, "error", err)
				return retry.Transient(err)
			}
			r.logger.Sugar().Warnw("attachment failed validation", "uid", uid, "error", err)
			return err
		}

		return nil
	})

	switch {
	case err == nil:
		return &ReadResult{Message: best, FullyRead: true}, nil
	case fetchErr != nil && !retry.IsTransient(err) && !errors.Is(err, retry.ErrExhausted):
		return nil, fmt.Errorf("fetch message %d: %w", uid, fetchErr)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		// Retry bound exhausted or validation rejected: hand back what we
		// have and let the caller route it to the error path.
		return &ReadResult{Message: best, FullyRead: false}, nil
	}
}

// ParseEnvelope extracts just the subject and sender address from a raw
// message. The state machine matches and claims applications on the envelope
// alone, before any attachment inspection starts.
func ParseEnvelope(raw []byte) (subject, from string, err error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", "", fmt.Errorf("create mail reader: %w", err)
	}
	if s, serr := reader.Header.Subject(); serr == nil {
		subject = strings.TrimSpace(s)
	}
	if addrs, aerr := reader.Header.AddressList("From"); aerr == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	return subject, from, nil
}

func parseMessage(raw []byte) (*Message, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}

	msg := &Message{}
	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	}
	if addrs, err := reader.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = addrs[0].Address
	}

	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			return nil, fmt.Errorf("read mime part: %w", perr)
		}
		attHeader, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		data, rerr := io.ReadAll(part.Body)
		if rerr != nil {
			return nil, fmt.Errorf("read attachment body: %w", rerr)
		}
		att := Attachment{Data: data}
		if name, nerr := attHeader.Filename(); nerr == nil {
			att.Filename = strings.TrimSpace(name)
		}
		if ctype, _, cerr := attHeader.ContentType(); cerr == nil {
			att.ContentType = ctype
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	return msg, nil
}

// hasNamedAttachment reports whether at least one attachment carries a
// filename. Right after delivery a message can be searchable while its
// attachment list is still empty or unnamed.
func hasNamedAttachment(msg *Message) bool {
	for _, att := range msg.Attachments {
		if att.Filename != "" {
			return true
		}
	}
	return false
}

// validateAttachments structurally checks image attachments. A truncated
// stream maps to errPayloadTruncated (retryable); any other decode failure
// is final.
func validateAttachments(msg *Message) error {
	for _, att := range msg.Attachments {
		if att.Filename == "" || !isImage(att) {
			continue
		}
		_, _, err := image.DecodeConfig(bytes.NewReader(att.Data))
		if err == nil {
			continue
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || strings.Contains(err.Error(), "unexpected EOF") {
			return fmt.Errorf("%w: %s", errPayloadTruncated, att.Filename)
		}
		return fmt.Errorf("attachment %s: %w", att.Filename, err)
	}
	return nil
}

func isImage(att Attachment) bool {
	if strings.HasPrefix(strings.ToLower(att.ContentType), "image/") {
		return true
	}
	name := strings.ToLower(att.Filename)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
