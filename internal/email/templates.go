package email

import "html/template"

const layoutHTML = `
{{define "layout"}}
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .button {
            display: inline-block;
            background-color: #4F46E5;
            color: white !important;
            padding: 12px 30px;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    {{template "body" .}}
</body>
</html>
{{end}}
`

var registrationTemplate = template.Must(template.Must(template.New("registration").Parse(layoutHTML)).Parse(`
{{define "body"}}
    <div class="header">
        <h1>Welcome, {{.Name}}!</h1>
    </div>
    <div class="content">
        <h2>Confirm your email address</h2>
        <p>Thanks for signing up. Click the button below to confirm your email address and activate your account.</p>

        <a href="{{.Link}}" class="button" style="color: white !important;">Confirm Email</a>

        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all; color: #4F46E5;">{{.Link}}</p>

        <p style="margin-top: 30px;">If you didn't create an account, you can safely ignore this email.</p>
    </div>
{{end}}
{{template "layout" .}}
`))

var forgotPasswordTemplate = template.Must(template.Must(template.New("forgotPassword").Parse(layoutHTML)).Parse(`
{{define "body"}}
    <div class="header">
        <h1>Password Reset Request</h1>
    </div>
    <div class="content">
        <h2>Hi {{.Name}},</h2>
        <p>You requested to reset your password. Click the button below to choose a new one.</p>

        <a href="{{.Link}}" class="button" style="color: white !important;">Reset Password</a>

        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all; color: #4F46E5;">{{.Link}}</p>

        <p style="margin-top: 30px;">If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
    <div class="footer">
        <p>This link will expire in 1 hour.</p>
    </div>
{{end}}
{{template "layout" .}}
`))
