package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
)

// outbox keeps the messages handled by the console mock.
var outbox struct {
	messages []core.EmailMessage
	mu       sync.Mutex
}

// consoleService prints messages as MIME previews instead of sending them. Used in debug.
type consoleService struct {
	from            mail.Address
	subjPrefix      string
	frontendBaseURL string
	out             *log.Logger // nil: silent
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		from:            conf.DefaultFromEmail(),
		subjPrefix:      "[" + conf.AppName + "] ",
		frontendBaseURL: conf.FrontendBaseURL,
		out:             log.New(os.Stdout, "EMAIL : ", log.LstdFlags),
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if _, err := svc.deliver(msg); err != nil {
				log.Printf("%+v", err)
			}
		}(msg)
	}
}

// deliver renders msg and prints it. It reports whether msg had anything to send.
func (svc consoleService) deliver(msg *core.EmailMessage) (bool, error) {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		return false, errors.Wrapf(err, "rendering email %q", msg.TemplateName)
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return false, nil
	}
	preview, err := svc.preview(*msg)
	if err != nil {
		return false, errors.Wrapf(err, "previewing email %q", msg.Subject)
	}
	if svc.out != nil {
		svc.out.Println(preview)
	}
	return true, nil
}

// preview formats msg the way an SMTP server would receive it.
func (svc consoleService) preview(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)
	header := func(key, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(body, "%s: %s\r\n", key, value)
		}
	}
	header("From", svc.from.String())
	header("MIME-Version", "1.0")
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Subject", svc.subjPrefix+msg.Subject)
	header("To", joinAddresses(msg.To))
	header("Cc", joinAddresses(msg.Cc))
	header("Bcc", joinAddresses(msg.Bcc))
	header("X-Template", msg.TemplateName)

	altW := multipart.NewWriter(body)
	var mixedW *multipart.Writer
	if msg.HasAttachments() {
		mixedW = multipart.NewWriter(body)
		header("Content-Type", "multipart/mixed; boundary="+mixedW.Boundary())
	} else {
		header("Content-Type", "multipart/alternative; boundary="+altW.Boundary())
	}
	_, _ = fmt.Fprint(body, "\r\n")

	if mixedW != nil {
		ct := "multipart/alternative; boundary=" + altW.Boundary()
		if _, err := mixedW.CreatePart(textproto.MIMEHeader{"Content-Type": {ct}}); err != nil {
			return "", errors.Wrap(err, "creating alternative part")
		}
	}

	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.TextContent},
		{"text/html; charset=utf-8", msg.HTMLContent},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return "", errors.Wrapf(err, "creating %s part", p.contentType)
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", p.content)
	}
	if err := altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing alternative part")
	}

	if mixedW != nil {
		for _, at := range msg.Attachments {
			w, err := mixedW.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {at.ContentType},
				"Content-Transfer-Encoding": {"base64"},
				"Content-Disposition":       {"attachment; filename=" + at.Filename},
			})
			if err != nil {
				return "", errors.Wrapf(err, "creating %s part", at.Filename)
			}
			_, _ = fmt.Fprintf(w, "%s\r\n", at.Content.String())
		}
		if err := mixedW.Close(); err != nil {
			return "", errors.Wrap(err, "closing mixed part")
		}
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock delivers synchronously and silently into an outbox read by tests.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	return &consoleServiceMock{
		consoleService: consoleService{
			from:            conf.DefaultFromEmail(),
			subjPrefix:      "[" + conf.AppName + "] ",
			frontendBaseURL: conf.FrontendBaseURL,
		},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		sent, err := svc.deliver(msg)
		if err != nil {
			log.Printf("%+v", err)
			continue
		}
		if sent {
			outbox.mu.Lock()
			outbox.messages = append(outbox.messages, *msg)
			outbox.mu.Unlock()
		}
	}
}

// ResetSentMessages empties the outbox.
func ResetSentMessages() {
	outbox.mu.Lock()
	outbox.messages = nil
	outbox.mu.Unlock()
}

// SentMessagesTo returns the delivered messages addressed to email.
func SentMessagesTo(email string) []core.EmailMessage {
	outbox.mu.Lock()
	defer outbox.mu.Unlock()
	msgs := make([]core.EmailMessage, 0)
	for _, msg := range outbox.messages {
		for _, to := range msg.To {
			if strings.EqualFold(to.Address, email) {
				msgs = append(msgs, msg)
				break
			}
		}
	}
	return msgs
}
