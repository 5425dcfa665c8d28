package output

import (
	"bytes"
	"strings"
	"testing"

	"dsf/internal/domain"
	"dsf/internal/rpc"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"YAML", FormatYAML},
		{"yml", FormatYAML},
		{"q", FormatQuiet},
		{"table", FormatTable},
		{"bogus", FormatTable},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseFormat(tt.in); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func testServices() rpc.ServicesResponse {
	var a, b domain.ID
	a[0], b[0] = 1, 2
	return rpc.ServicesResponse{Services: []domain.ServiceInfo{
		{ID: a, Index: 0, ApplicationID: 7, State: domain.ServiceStateCreated, Origin: true},
		{ID: b, Index: 1, State: domain.ServiceStateCreated},
	}}
}

func render(t *testing.T, format Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(format).WithOutput(&buf)
	if err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.String()
}

func TestWriter_Formats(t *testing.T) {
	resp := FromResponse(testServices())
	ids := testServices().Services

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatTable, []string{"INDEX", "APP", ids[0].ID.String(), "yes"}},
		{FormatJSON, []string{`"services"`, `"application_id": 7`, ids[1].ID.String()}},
		{FormatYAML, []string{"services:", "application_id: 7", "origin: true"}},
		{FormatQuiet, []string{ids[0].ID.String() + "\n" + ids[1].ID.String() + "\n"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out := render(t, tt.format, resp)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestWriter_EmptyTable(t *testing.T) {
	out := render(t, FormatTable, FromResponse(rpc.PeersResponse{}))
	if strings.TrimSpace(out) != "no peers" {
		t.Errorf("got %q", out)
	}
}

func TestWriter_NotStyledOffTerminal(t *testing.T) {
	out := render(t, FormatTable, FromResponse(testServices()))
	if strings.Contains(out, "\x1b[") {
		t.Errorf("escape codes in non-terminal output: %q", out)
	}
}

func TestFormatBody(t *testing.T) {
	tests := []struct {
		name string
		body domain.Body
		want string
	}{
		{"empty", domain.Cleartext(nil), "-"},
		{"text", domain.Cleartext([]byte("hello")), "hello"},
		{"binary", domain.Cleartext([]byte{0, 1, 2}), "<3 bytes>"},
		{"encrypted", domain.Encrypted([]byte{1, 2, 3, 4}), "<encrypted, 4 bytes>"},
		{"long", domain.Cleartext([]byte(strings.Repeat("a", 60))), strings.Repeat("a", maxBodyCell-1) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatBody(tt.body); got != tt.want {
				t.Errorf("formatBody = %q, want %q", got, tt.want)
			}
		})
	}
}
