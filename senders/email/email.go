package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/fiffu/verimail/lib/models"
)

type TemplateKey string

const (
	Verify         TemplateKey = "verify"
	VerifyBlocked  TemplateKey = "verify_blocked"
	VerifyExtended TemplateKey = "verify_extended"
	StatusCanceled TemplateKey = "status_canceled"
)

var (
	//go:embed verify_blocked.html
	verifyBlockedHTML     string
	verifyBlockedTemplate = template.Must(template.New("verify_blocked.html").Parse(verifyBlockedHTML))
)

const (
	verifyBlockedSubject  = "A blocked account verified Email."
	statusCanceledSubject = "Account details for [user:display-name] at [site:name] (canceled)"
	statusCanceledBody    = `<p>[user:display-name],</p>
<p>Your account on [site:name] has been canceled because the email address [user:mail] was never verified.</p>
<p>-- [site:name] team</p>`
)

// Templates holds the operator supplied subject and body strings.
type Templates struct {
	MailSubject         string
	MailBody            string
	ExtendedMailSubject string
	ExtendedMailBody    string
}

// Params is everything a template may interpolate.
type Params struct {
	Account           *models.Account
	VerifyURL         string
	VerifyExtendedURL string
	EditURL           string
	SiteName          string
	SiteURL           string
}

type Message struct {
	Subject string
	HTML    string
}

func Compose(key TemplateKey, p Params, t Templates) (*Message, error) {
	if p.Account == nil {
		return nil, fmt.Errorf("compose %s: no account", key)
	}

	switch key {
	case Verify:
		return substitute(t.MailSubject, t.MailBody, p), nil
	case VerifyExtended:
		return substitute(t.ExtendedMailSubject, t.ExtendedMailBody, p), nil
	case StatusCanceled:
		return substitute(statusCanceledSubject, statusCanceledBody, p), nil
	case VerifyBlocked:
		body, err := fillTemplate(verifyBlockedTemplate, map[string]any{
			"ID":      p.Account.ID,
			"Name":    p.Account.Name,
			"Email":   p.Account.Email,
			"EditURL": p.EditURL,
		})
		if err != nil {
			return nil, err
		}
		return &Message{Subject: verifyBlockedSubject, HTML: body}, nil
	default:
		return nil, fmt.Errorf("unknown mail template %q", key)
	}
}

func substitute(subject, body string, p Params) *Message {
	return &Message{
		Subject: replacer(p, false).Replace(subject),
		HTML:    replacer(p, true).Replace(body),
	}
}

// replacer maps placeholders to values. Account and site fields are escaped
// when the target is HTML.
func replacer(p Params, html bool) *strings.Replacer {
	displayName := p.Account.Name
	if displayName == "" {
		displayName = p.Account.Email
	}
	esc := func(s string) string { return s }
	if html {
		esc = template.HTMLEscapeString
	}
	return strings.NewReplacer(
		"[user:display-name]", esc(displayName),
		"[user:account-name]", esc(p.Account.Name),
		"[user:mail]", esc(p.Account.Email),
		"[user:verify-email]", p.VerifyURL,
		"[user:verify-email-extended]", p.VerifyExtendedURL,
		"[site:name]", esc(p.SiteName),
		"[site:url]", p.SiteURL,
	)
}

func fillTemplate(tmpl *template.Template, values any) (string, error) {
	buf := new(strings.Builder)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
