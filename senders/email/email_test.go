package email

import (
	"testing"

	"github.com/fiffu/verimail/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Account:           &models.Account{ID: 12, Name: "ada<script>", Email: "ada@example.com"},
		VerifyURL:         "https://example.com/verify/12/100/abc",
		VerifyExtendedURL: "https://example.com/verify/extended/12/100/abc",
		EditURL:           "https://example.com/user/12/edit",
		SiteName:          "Example",
		SiteURL:           "https://example.com",
	}
}

var testTemplates = Templates{
	MailSubject:         "Verify at [site:name]",
	MailBody:            "Hi [user:display-name], go to [user:verify-email]",
	ExtendedMailSubject: "Blocked at [site:name]",
	ExtendedMailBody:    "[user:account-name] <[user:mail]>: [user:verify-email-extended] ([site:url])",
}

func TestCompose(t *testing.T) {
	tests := []struct {
		key         TemplateKey
		wantSubject string
		wantHTML    []string
	}{
		{Verify, "Verify at Example", []string{"Hi ada&lt;script&gt;, go to https://example.com/verify/12/100/abc"}},
		{VerifyExtended, "Blocked at Example", []string{
			"ada&lt;script&gt; <ada@example.com>: https://example.com/verify/extended/12/100/abc (https://example.com)",
		}},
		{StatusCanceled, "Account details for ada<script> at Example (canceled)", []string{"ada@example.com was never verified"}},
		{VerifyBlocked, "A blocked account verified Email.", []string{
			"ID: 12 verified own Email: ada@example.com",
			"<b>ada&lt;script&gt;</b>",
			`<a href="https://example.com/user/12/edit">`,
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			msg, err := Compose(tt.key, testParams(), testTemplates)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, msg.Subject)
			for _, want := range tt.wantHTML {
				assert.Contains(t, msg.HTML, want)
			}
		})
	}
}

func TestCompose_Errors(t *testing.T) {
	_, err := Compose("welcome", testParams(), testTemplates)
	assert.Error(t, err)

	_, err = Compose(Verify, Params{}, testTemplates)
	assert.Error(t, err)
}

func TestCompose_DisplayNameFallsBackToEmail(t *testing.T) {
	p := testParams()
	p.Account.Name = ""
	msg, err := Compose(Verify, p, testTemplates)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Hi ada@example.com,")
}

func TestPlainText(t *testing.T) {
	body := `<p>Hello   Ada,</p>
<p>Please verify:
   <a href="https://example.com/verify/1/2/x">click here</a></p>
<p><a href="https://example.com">https://example.com</a></p>`

	want := "Hello Ada,\n\nPlease verify: click here (https://example.com/verify/1/2/x)\n\nhttps://example.com"
	assert.Equal(t, want, PlainText(body))
	assert.Equal(t, "just text", PlainText("just text"))
}
