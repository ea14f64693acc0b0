package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dossier/core"
)

func TestConsoleService_preview(t *testing.T) {
	conf := core.NewConfig()
	conf.AppName = "Masomo"
	svc := NewConsoleService(conf).(*consoleService)
	to := []mail.Address{{Name: "Jane", Address: "jane@test.com"}}

	t.Run("alternative", func(t *testing.T) {
		out, err := svc.preview(core.EmailMessage{To: to, Subject: "Hi", TemplateName: "document_rejected", TextContent: "plain", HTMLContent: "<b>rich</b>"})
		require.NoError(t, err)
		assert.Contains(t, out, "Subject: [Masomo] Hi\r\n")
		assert.Contains(t, out, "X-Template: document_rejected\r\n")
		assert.Contains(t, out, "Content-Type: multipart/alternative; boundary=")
		assert.Contains(t, out, "plain")
		assert.Contains(t, out, "<b>rich</b>")
		assert.NotContains(t, out, "Cc:")
	})

	t.Run("attachments", func(t *testing.T) {
		out, err := svc.preview(core.EmailMessage{
			To: to, Subject: "Files", TextContent: "see attached",
			Attachments: []core.Attachment{{Content: bytes.NewBufferString("ZGF0YQ=="), ContentType: "application/pdf", Filename: "a.pdf"}},
		})
		require.NoError(t, err)
		assert.Contains(t, out, "Content-Type: multipart/mixed; boundary=")
		assert.Contains(t, out, "filename=a.pdf")
		assert.False(t, strings.Contains(out, "text/html"))
	})
}

func TestConsoleServiceMock(t *testing.T) {
	ResetSentMessages()
	defer ResetSentMessages()
	svc := NewConsoleServiceMock(core.NewConfig())

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "Jane@test.com"}}, Subject: "a", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "jane@test.com"}}, Subject: "empty"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "hello"},
	)

	msgs := SentMessagesTo("jane@test.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].TextContent)
}
