package leads_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nemo-admissions/nemo-relay/internal/leads"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func validLead() leads.Lead {
	return leads.Lead{
		FirstName:         "Maria",
		LastName:          "Santos",
		Email:             "maria@example.com",
		CellPhone:         "+639171234567",
		Headquarters:      "makati",
		ProgramType:       "senior-high",
		DataAuthorization: true,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validLead().Validate())

	lead := validLead()
	lead.Email = "not-an-email"
	lead.FirstName = "  "
	lead.DataAuthorization = false

	err := lead.Validate()
	var fieldErrs leads.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Equal(t, leads.FieldErrors{
		"email":             "Please enter a valid email",
		"firstName":         "First name is required",
		"dataAuthorization": "You must authorize data processing",
	}, fieldErrs)
	require.True(t, strings.HasPrefix(err.Error(), "invalid lead: dataAuthorization:"))
}

func TestSystemMessage(t *testing.T) {
	msg := validLead().SystemMessage()

	require.True(t, strings.HasPrefix(msg, "This is a system generated message."))
	require.Contains(t, msg, "- Name: Maria Santos\n")
	require.Contains(t, msg, "- Phone: +639171234567\n")
	require.Contains(t, msg, "- Campus Interest: Makati\n")
	require.Contains(t, msg, "- Program Type: Senior High School\n")

	lead := validLead()
	lead.Headquarters = "cebu"
	require.Contains(t, lead.SystemMessage(), "- Campus Interest: cebu\n")
}

func TestSubmit(t *testing.T) {
	var gotPath string
	var got leads.Lead
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"leadId":"00Q5g00000ABC"}`))
	}))
	defer srv.Close()

	res := leads.NewClient(srv.URL+"/prod/", nil, discard).Submit(context.Background(), validLead())

	require.True(t, res.Success)
	require.Equal(t, "Form submitted successfully", res.Message)
	require.JSONEq(t, `{"leadId":"00Q5g00000ABC"}`, string(res.Data))
	require.Equal(t, "/prod/createFormLead", gotPath)
	require.Equal(t, validLead(), got)
}

func TestSubmitFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "salesforce unavailable", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	res := leads.NewClient(failing.URL, nil, discard).Submit(context.Background(), validLead())
	require.False(t, res.Success)
	require.Equal(t, "HTTP error! status: 503", res.Message)

	res = leads.NewClient("", nil, discard).Submit(context.Background(), validLead())
	require.False(t, res.Success)
	require.Equal(t, leads.ErrNotConfigured.Error(), res.Message)
}
