package notify

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/cockroachdb/errors"
	"github.com/wneessen/go-mail"

	"github.com/ernop/gpt-webdiff/internal/fsutil"
	"github.com/ernop/gpt-webdiff/internal/logger"
)

// ErrNotConfigured is returned when no recipient is configured.
var ErrNotConfigured = errors.New("email recipient not configured")

const copyStampLayout = "20060102150405"

// Config holds SMTP settings.
type Config struct {
	To       string
	From     string // Defaults to Login
	Login    string
	Password string
	Host     string
	Port     int
	Enabled  bool   // When false, messages are only written to Dir
	Dir      string // Directory receiving the plain-text copies
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Transport hands a built message to the mail server.
type Transport func(ctx context.Context, msg *mail.Msg) error

// Mailer writes a copy of each message to disk, then sends it over SMTP.
type Mailer struct {
	cfg       Config
	log       logger.Logger
	md        *converter.Converter
	transport Transport

	Now func() time.Time
}

// NewMailer creates a Mailer. A nil transport dials cfg.Host with
// STARTTLS and plain authentication.
func NewMailer(cfg Config, log logger.Logger, transport Transport) *Mailer {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Mailer{
		cfg: cfg,
		log: log,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		transport: transport,
		Now:       time.Now,
	}
	if m.transport == nil {
		m.transport = m.dialAndSend
	}
	return m
}

// Send stores the disk copy and transmits msg. The copy is written
// whether or not transmission succeeds.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	log := m.log.With(logger.String("subject", msg.Subject))

	path, err := m.writeCopy(msg)
	if err != nil {
		log.Warn("Could not save email copy", logger.Error(err))
	} else {
		log.Debug("Saved email copy", logger.String("path", path))
	}

	if m.cfg.To == "" {
		return ErrNotConfigured
	}
	if !m.cfg.Enabled {
		log.Info("Email transmission disabled, copy kept on disk")
		return nil
	}

	built, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.transport(ctx, built); err != nil {
		return errors.Wrapf(err, "send email to %s", m.cfg.To)
	}
	log.Info("Sent email", logger.String("to", m.cfg.To))
	return nil
}

func (m *Mailer) build(msg Message) (*mail.Msg, error) {
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Login
	}

	out := mail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, errors.Wrapf(err, "invalid sender %q", from)
	}
	if err := out.To(m.cfg.To); err != nil {
		return nil, errors.Wrapf(err, "invalid recipient %q", m.cfg.To)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	if plain, err := m.plainText(msg.HTMLBody); err == nil {
		out.AddAlternativeString(mail.TypeTextPlain, plain)
	}
	return out, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Login),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return errors.Wrap(err, "create smtp client")
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) plainText(html string) (string, error) {
	return m.md.ConvertString(html)
}

// writeCopy stores "Subject: ..." and the plain-text body under
// Dir/<job>-YYYYMMDDHHMMSS.txt, adding -N when the name is taken.
func (m *Mailer) writeCopy(msg Message) (string, error) {
	if m.cfg.Dir == "" {
		return "", nil
	}
	body, err := m.plainText(msg.HTMLBody)
	if err != nil {
		body = msg.HTMLBody
	}
	data := []byte("Subject: " + msg.Subject + "\n\n" + body + "\n")

	stem := msg.JobName + "-" + m.Now().Format(copyStampLayout)
	path := filepath.Join(m.cfg.Dir, stem+".txt")
	for i := 1; ; i++ {
		err := fsutil.WriteNew(path, data, 0644)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrap(err, "write email copy")
		}
		path = filepath.Join(m.cfg.Dir, stem+"-"+strconv.Itoa(i)+".txt")
	}
}
