package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

const layoutHead = `<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .highlight { color: #1a73e8; font-weight: bold; }
        .code { font-size: 24px; font-weight: bold; letter-spacing: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
`

const layoutFoot = `        <div class="footer"><p>This is an automated message from QzPlatform.</p></div>
    </div>
</body>
</html>
`

var (
	invitationTmpl = template.Must(template.New("invitation").Parse(layoutHead + `
        <h2>You have been invited to take a test</h2>
        <p>You are invited to take <span class="highlight">{{.TestTitle}}</span>.</p>
        {{if .Instruction}}<p>{{.Instruction}}</p>{{end}}
        {{if .AccessCode}}<p>Access code: <span class="code">{{.AccessCode}}</span></p>{{end}}
        <p><a href="{{.Link}}">Start the test</a></p>
` + layoutFoot))

	assignedTmpl = template.Must(template.New("assigned").Parse(layoutHead + `
        <h2>A test has been assigned to you</h2>
        <p>Hello {{.Name}}, <span class="highlight">{{.TestTitle}}</span> is now available in your dashboard.</p>
        {{if .Instruction}}<p>{{.Instruction}}</p>{{end}}
` + layoutFoot))

	credentialsTmpl = template.Must(template.New("credentials").Parse(layoutHead + `
        <h2>Your QzPlatform account</h2>
        <p>An account has been created for you{{if .Context}} ({{.Context}}){{end}}.</p>
        <p>Email: <span class="highlight">{{.Email}}</span></p>
        <p>Temporary password: <span class="code">{{.Password}}</span></p>
        <p>Please <a href="{{.LoginURL}}">sign in</a> and change your password.</p>
` + layoutFoot))
)

type InvitationData struct {
	TestTitle   string
	Instruction string
	AccessCode  string
	Link        string
}

type AssignedData struct {
	Name        string
	TestTitle   string
	Instruction string
}

type CredentialsData struct {
	Email    string
	Password string
	LoginURL string
	// Context says why the account exists, e.g. the group it was added to
	Context string
}

func render(t *template.Template, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", t.Name(), err)
	}
	return body.String(), nil
}

func InvitationMessage(to string, data InvitationData) (Message, error) {
	body, err := render(invitationTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("Invitation: %s", data.TestTitle), HTMLBody: body}, nil
}

func AssignedMessage(to string, data AssignedData) (Message, error) {
	body, err := render(assignedTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("New test assigned: %s", data.TestTitle), HTMLBody: body}, nil
}

func CredentialsMessage(to string, data CredentialsData) (Message, error) {
	body, err := render(credentialsTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your QzPlatform account", HTMLBody: body}, nil
}
