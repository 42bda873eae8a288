// Package mail fetches BOL attachments from a mailbox.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/models"
)

// Source yields raw documents for one pipeline run.
type Source interface {
	Fetch(ctx context.Context) ([]models.RawDocument, error)
}

// IMAPConfig selects which messages are scanned.
type IMAPConfig struct {
	Server       string
	Address      string
	Password     string
	Mailbox      string
	SubjectWord  string
	LookbackDays int
	MaxMessages  int
	DialTimeout  time.Duration
}

// IMAPSource reads PDF attachments from messages whose subject contains a keyword.
type IMAPSource struct {
	cfg IMAPConfig
	log zerolog.Logger
	now func() time.Time
}

func NewIMAPSource(cfg IMAPConfig, log zerolog.Logger) *IMAPSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 200
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = 0
	}
	return &IMAPSource{cfg: cfg, log: log, now: time.Now}
}

// Fetch connects, searches and downloads. Messages that fail to parse are skipped.
func (s *IMAPSource) Fetch(ctx context.Context) ([]models.RawDocument, error) {
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	c, err := client.DialWithDialerTLS(dialer, s.cfg.Server, &tls.Config{ServerName: hostOnly(s.cfg.Server)})
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", s.cfg.Server, err)
	}
	defer func() { _ = c.Logout() }()

	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(s.cfg.Address, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", s.cfg.Mailbox, err)
	}

	uids, err := c.UidSearch(SearchCriteria(s.now(), s.cfg.SubjectWord, s.cfg.LookbackDays))
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids = NewestUIDs(uids, s.cfg.MaxMessages)
	s.log.Info().Int("messages", len(uids)).Str("subject_word", s.cfg.SubjectWord).Msg("matched mail messages")
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var docs []models.RawDocument
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		found, err := ExtractPDFAttachments(body)
		if err != nil {
			s.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("skipping unreadable message")
			continue
		}
		docs = append(docs, found...)
	}
	if err := <-done; err != nil {
		return docs, fmt.Errorf("imap fetch: %w", err)
	}
	return docs, nil
}

// SearchCriteria matches messages received from lookbackDays before now through today.
func SearchCriteria(now time.Time, subjectWord string, lookbackDays int) *imap.SearchCriteria {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	criteria := imap.NewSearchCriteria()
	criteria.Since = today.AddDate(0, 0, -lookbackDays)
	criteria.Before = today.AddDate(0, 0, 1)
	if subjectWord != "" {
		criteria.Header = textproto.MIMEHeader{}
		criteria.Header.Add("Subject", subjectWord)
	}
	return criteria
}

// NewestUIDs keeps the max highest UIDs.
func NewestUIDs(uids []uint32, max int) []uint32 {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if max > 0 && len(sorted) > max {
		sorted = sorted[len(sorted)-max:]
	}
	return sorted
}

// ExtractPDFAttachments returns every attachment of a message whose name ends in .pdf.
func ExtractPDFAttachments(r io.Reader) ([]models.RawDocument, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var docs []models.RawDocument
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return docs, fmt.Errorf("read message part: %w", err)
		}
		h, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		name, err := h.Filename()
		if err != nil || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return docs, fmt.Errorf("read attachment %q: %w", name, err)
		}
		docs = append(docs, models.RawDocument{FileName: name, Data: data})
	}
	return docs, nil
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
