package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData is the common view model for every template. It travels through
// the queue as a map (see ToMap) so the worker can localize times in place.
type EmailData struct {
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`
	Role           string `json:"Role"`
	ReferralCode   string `json:"ReferralCode"`

	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	AppName        string `json:"AppName"`

	LogoURL        string `json:"LogoURL"`
	SupportURL     string `json:"SupportURL"`
	PrivacyURL     string `json:"PrivacyURL"`
	UnsubscribeURL string `json:"UnsubscribeURL"`

	ResetURL  string `json:"ResetURL"`
	VerifyURL string `json:"VerifyURL"`

	ExpiresAt     time.Time `json:"ExpiresAt"`
	ExpiresAtText string    `json:"ExpiresAtText"`
	IP            string    `json:"IP"`
	Time          string    `json:"Time"`
	TimeAt        time.Time `json:"TimeAt"`
	UserAgent     string    `json:"UserAgent"`
	Location      string    `json:"Location"`
}

// ToMap converts d into the map carried by EmailJob.Data.
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		zero := reflect.Zero(rv.Type()).Interface()
		if reflect.DeepEqual(value, zero) {
			return fallback
		}
		return value
	}
}

func funcs() map[string]any {
	return map[string]any{
		"now":     func() time.Time { return time.Now().UTC() },
		"default": defaultFn,
	}
}

const (
	Welcome         = "welcome"
	VerifyEmail     = "verify_email"
	ForgotPassword  = "forgot_password"
	PasswordChanged = "password_changed"
	AccountApproved = "account_approved"
)

// Names lists every template shipped in FS. Each has a subject, text and
// html part: <name>.subject.tmpl, <name>.text.tmpl, <name>.html.tmpl.
var Names = []string{Welcome, VerifyEmail, ForgotPassword, PasswordChanged, AccountApproved}

// Parsed once; a broken template fails at startup rather than per email.
var (
	textSet = texttpl.Must(texttpl.New("").Funcs(texttpl.FuncMap(funcs())).ParseFS(FS, "*.subject.tmpl", "*.text.tmpl"))
	htmlSet = htmpl.Must(htmpl.New("").Funcs(htmpl.FuncMap(funcs())).ParseFS(FS, "*.html.tmpl"))
)

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(t executor, file string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", file, err)
	}
	return buf.String(), nil
}

// Render produces the subject, text and html bodies for name.
func Render(name string, data any) (subject, text, html string, err error) {
	st := textSet.Lookup(name + ".subject.tmpl")
	tt := textSet.Lookup(name + ".text.tmpl")
	ht := htmlSet.Lookup(name + ".html.tmpl")
	if st == nil || tt == nil || ht == nil {
		return "", "", "", fmt.Errorf("unknown template %q", name)
	}
	if subject, err = execute(st, name+".subject.tmpl", data); err != nil {
		return "", "", "", err
	}
	if text, err = execute(tt, name+".text.tmpl", data); err != nil {
		return "", "", "", err
	}
	if html, err = execute(ht, name+".html.tmpl", data); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject), text, html, nil
}
