package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

var htmlTemplates = template.Must(template.New("mail").Parse(`
{{define "otp"}}<h2>{{.Title}}</h2><p>Your verification code is:</p><p style="font-size:24px;letter-spacing:4px"><b>{{.Code}}</b></p><p>The code expires in {{.Minutes}} minutes.</p>{{end}}
{{define "donation"}}<h2>Thank you, {{.Name}}!</h2><p>Your donation of <b>${{.Amount}}</b> to <b>{{.Campaign}}</b> has been received.</p>{{end}}
{{define "invite"}}<h2>{{.Student}} needs your support</h2><p>You have been invited to back <b>{{.Campaign}}</b>.</p><p><a href="{{.Link}}">Accept the invitation</a></p>{{end}}
{{define "partnership"}}<h2>New partnership request</h2><p><b>{{.Company}}</b> ({{.Email}}) is interested in: {{.Type}}</p><p>{{.Message}}</p>{{end}}
`))

func render(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return buf.String()
}

func OTPMessage(to, code string, purpose lifecycle.OTPPurpose) Message {
	title := "Verify your email"
	if purpose == lifecycle.PurposePasswordReset {
		title = "Reset your password"
	}
	minutes := int(lifecycle.OTPExpiry.Minutes())
	return Message{
		To:      to,
		Subject: title,
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
		HTML: render("otp", map[string]interface{}{
			"Title": title, "Code": code, "Minutes": minutes,
		}),
	}
}

func DonationMessage(to, name, campaign string, amount decimal.Decimal) Message {
	if name == "" {
		name = "friend"
	}
	return Message{
		To:      to,
		Subject: "Thank you for your donation",
		Text:    fmt.Sprintf("Thank you, %s! Your donation of $%s to %q has been received.", name, amount.StringFixed(2), campaign),
		HTML: render("donation", map[string]interface{}{
			"Name": name, "Amount": amount.StringFixed(2), "Campaign": campaign,
		}),
	}
}

func ReferralInviteMessage(to, student, campaign, link string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s invited you to support their campaign", student),
		Text:    fmt.Sprintf("%s invited you to support %q. Accept the invitation: %s", student, campaign, link),
		HTML: render("invite", map[string]interface{}{
			"Student": student, "Campaign": campaign, "Link": link,
		}),
	}
}

func PartnershipRequestMessage(to, company, email, kind, message string) Message {
	return Message{
		To:      to,
		Subject: "Partnership request from " + company,
		Text:    fmt.Sprintf("%s (%s) is interested in %s.\n\n%s", company, email, kind, message),
		HTML: render("partnership", map[string]interface{}{
			"Company": company, "Email": email, "Type": kind, "Message": message,
		}),
	}
}
