package mailer

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jhillyerd/enmime"
)

func vars(companies ...Company) Vars {
	return Vars{
		RecipientName: "Jane Smith",
		Firm:          "IP Firm LLP",
		Companies:     companies,
		SenderName:    "Sam Buyer",
		SenderCompany: "Acquisitions Ltd",
		SenderPhone:   "020 7946 0000",
		SenderEmail:   "sam@acquisitions.co.uk",
	}
}

func TestRenderSubjects(t *testing.T) {
	tmpl, err := NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}

	acme := Company{Name: "Acme Widgets Ltd", Number: "01234567", Category: "Administration"}
	bolt := Company{Name: "Bolt Foods Ltd", Category: "Creditors' Voluntary Liquidation"}
	crane := Company{Name: "Crane Hire Ltd", Category: "Winding-Up Order"}

	tests := []struct {
		name string
		id   TemplateID
		v    Vars
		want string
	}{
		{"single", InitialSingle, vars(acme), "Expression of Interest - Acme Widgets Ltd"},
		{"two companies", InitialMulti, vars(acme, bolt), "Expression of Interest - Acme Widgets Ltd & Bolt Foods Ltd"},
		{"three companies", InitialMulti, vars(acme, bolt, crane), "Expression of Interest - Acme Widgets Ltd & 2 others"},
		{"first follow-up", FollowUp1, vars(acme), "Re: Expression of Interest - Acme Widgets Ltd"},
		{"final follow-up", FollowUp2, vars(acme, bolt), "Re: Expression of Interest - Acme Widgets Ltd & Bolt Foods Ltd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body, err := tmpl.Render(tt.id, tt.v)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, subject); diff != "" {
				t.Errorf("subject mismatch (-want +got):\n%s", diff)
			}
			if !strings.HasPrefix(body, "Dear Jane,") {
				t.Errorf("body does not greet by first name:\n%s", body)
			}
			if !strings.Contains(body, "Sam Buyer") {
				t.Errorf("body missing sender:\n%s", body)
			}
		})
	}
}

func TestRenderListsEveryCompany(t *testing.T) {
	tmpl, err := NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}
	_, body, err := tmpl.Render(InitialMulti, vars(
		Company{Name: "Acme Widgets Ltd", Number: "01234567", Category: "Administration"},
		Company{Name: "Bolt Foods Ltd", Category: "Creditors' Voluntary Liquidation"},
	))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{
		"- Acme Widgets Ltd (01234567), Administration",
		"- Bolt Foods Ltd, Creditors' Voluntary Liquidation",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderErrors(t *testing.T) {
	tmpl, err := NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}
	if _, _, err := tmpl.Render(InitialSingle, Vars{}); err == nil {
		t.Error("Render() without companies succeeded")
	}
	if _, _, err := tmpl.Render("nope", vars(Company{Name: "X"})); err == nil {
		t.Error("Render() with unknown template succeeded")
	}
}

func TestFirstName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jane Smith", "Jane"},
		{"Mr. John Brown", "Mr. John"},
		{"Dr Alice", "Dr Alice"},
		{"", "Sir or Madam"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, firstName(tt.in)); diff != "" {
			t.Errorf("firstName(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestBuildThreadsFollowUps(t *testing.T) {
	raw, err := Build(Message{
		FromName:  "Sam Buyer",
		From:      "sam@acquisitions.co.uk",
		ToName:    "Jane Smith",
		To:        "jane@ipfirm.co.uk",
		Subject:   "Re: Expression of Interest - Acme Widgets Ltd",
		Body:      "Dear Jane,\n",
		MessageID: "<2.abc@acquisitions.co.uk>",
		InReplyTo: "<1.abc@acquisitions.co.uk>",
		Date:      time.Date(2026, 3, 25, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	got := map[string]string{
		"Message-ID":  env.GetHeader("Message-ID"),
		"In-Reply-To": env.GetHeader("In-Reply-To"),
		"References":  env.GetHeader("References"),
		"Subject":     env.GetHeader("Subject"),
	}
	want := map[string]string{
		"Message-ID":  "<2.abc@acquisitions.co.uk>",
		"In-Reply-To": "<1.abc@acquisitions.co.uk>",
		"References":  "<1.abc@acquisitions.co.uk>",
		"Subject":     "Re: Expression of Interest - Acme Widgets Ltd",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Dear Jane,", strings.TrimSpace(env.Text)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestNewMessageID(t *testing.T) {
	a := NewMessageID("acquisitions.co.uk")
	b := NewMessageID("acquisitions.co.uk")
	if a == b {
		t.Fatalf("NewMessageID() returned %q twice", a)
	}
	if !strings.HasPrefix(a, "<") || !strings.HasSuffix(a, "@acquisitions.co.uk>") {
		t.Errorf("NewMessageID() = %q, want <...@acquisitions.co.uk>", a)
	}
}

func TestClassify(t *testing.T) {
	reply := func(code int) error { return &textproto.Error{Code: code, Msg: "x"} }

	tests := []struct {
		name  string
		stage stage
		err   error
		want  Outcome
	}{
		{"connection refused", stageConnect, errors.New("connection refused"), OutcomeFailed},
		{"auth rejected", stageConnect, reply(535), OutcomeFailed},
		{"mailbox unknown", stageEnvelope, reply(550), OutcomeBounced},
		{"greylisted", stageEnvelope, reply(451), OutcomeFailed},
		{"data refused", stageData, reply(554), OutcomeBounced},
		{"rejected after body", stageCommit, reply(550), OutcomeBounced},
		{"deferred after body", stageCommit, reply(421), OutcomeFailed},
		{"connection lost after body", stageCommit, io.ErrUnexpectedEOF, OutcomeUncertain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.stage, tt.err)
			if diff := cmp.Diff(tt.want, got.Outcome); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}
			if got.Outcome == OutcomeFailed && !errors.Is(got.Err, ErrTransient) {
				t.Errorf("failed outcome error %v does not wrap ErrTransient", got.Err)
			}
		})
	}
}

func TestDryRunSkips(t *testing.T) {
	d := NewDryRun(slog.New(slog.NewTextHandler(io.Discard, nil)))
	res := d.Send(t.Context(), Message{To: "jane@ipfirm.co.uk"})
	if diff := cmp.Diff(OutcomeSkipped, res.Outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}
