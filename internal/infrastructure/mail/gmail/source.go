// Package gmail adapts the Gmail API to the pipeline's mail source port.
// Authentication uses an OAuth installed-app credential plus a previously
// issued token file; the interactive consent flow is a one-time setup step
// outside this process.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// searchQuery narrows the sweep to mail that can plausibly carry case
// documents: PDF attachment plus at least one pipeline keyword.
const searchQuery = `has:attachment filename:pdf (REQ OR "Request ID" OR "Patient" OR "Test" OR "Medical") newer_than:%dd`

const maxSearchResults = 50

type Source struct {
	svc  *gmailv1.Service
	user string
}

func New(ctx context.Context, credentialsFile, tokenFile, user string) (*Source, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(raw, gmailv1.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail token: %w", err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	if user == "" {
		user = "me"
	}
	return &Source{svc: svc, user: user}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Source) Search(ctx context.Context, days int) ([]string, error) {
	if days < 1 {
		days = 1
	}
	res, err := s.svc.Users.Messages.List(s.user).
		Q(fmt.Sprintf(searchQuery, days)).
		MaxResults(maxSearchResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list messages", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (s *Source) Fetch(ctx context.Context, messageID string) (*domain.MailMessage, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "get message", err)
	}

	out := &domain.MailMessage{ID: msg.Id}
	if msg.InternalDate > 0 {
		out.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				out.Subject = h.Value
			case "From":
				out.Sender = h.Value
			}
		}
		if err := s.collectPDFs(ctx, msg.Id, msg.Payload, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collectPDFs walks the MIME tree and downloads every part whose filename
// ends in .pdf. Small parts carry their data inline; larger ones only an
// attachment ID.
func (s *Source) collectPDFs(ctx context.Context, messageID string, part *gmailv1.MessagePart, out *domain.MailMessage) error {
	if part == nil {
		return nil
	}
	if strings.HasSuffix(strings.ToLower(part.Filename), ".pdf") && part.Body != nil {
		data, err := s.partData(ctx, messageID, part)
		if err != nil {
			return fmt.Errorf("download attachment %s: %w", part.Filename, err)
		}
		if len(data) > 0 {
			out.Attachments = append(out.Attachments, domain.MailAttachment{
				Filename: part.Filename,
				Data:     data,
			})
		}
	}
	for _, sub := range part.Parts {
		if err := s.collectPDFs(ctx, messageID, sub, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) partData(ctx context.Context, messageID string, part *gmailv1.MessagePart) ([]byte, error) {
	if part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	if part.Body.AttachmentId == "" {
		return nil, nil
	}
	att, err := s.svc.Users.Messages.Attachments.Get(s.user, messageID, part.Body.AttachmentId).
		Context(ctx).
		Do()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "get attachment", err)
	}
	return decodeBody(att.Data)
}

// decodeBody handles both padded and unpadded url-safe base64; the API is
// inconsistent about trailing padding.
func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func (s *Source) MarkRead(ctx context.Context, messageID string) error {
	_, err := s.svc.Users.Messages.Modify(s.user, messageID, &gmailv1.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "mark message read", err)
	}
	return nil
}

// Watch registers inbox push notifications on the Pub/Sub topic. The
// registration expires and must be renewed; callers get the expiration.
func (s *Source) Watch(ctx context.Context, topic string) (time.Time, error) {
	if topic == "" {
		return time.Time{}, domain.WrapError(domain.ErrValidation, "watch inbox", fmt.Errorf("empty pubsub topic"))
	}
	res, err := s.svc.Users.Watch(s.user, &gmailv1.WatchRequest{
		LabelIds:  []string{"INBOX"},
		TopicName: topic,
	}).Context(ctx).Do()
	if err != nil {
		return time.Time{}, domain.WrapError(domain.ErrTemporary, "watch inbox", err)
	}
	return time.UnixMilli(res.Expiration).UTC(), nil
}
