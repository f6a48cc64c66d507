package cli

import (
	"errors"
	"time"

	"todo-cli/internal/api"
	"todo-cli/internal/session"
	"todo-cli/internal/store"

	"github.com/spf13/cobra"
)

func newDoctorCmd(app *App) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check local state and the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Default()
			if err != nil {
				return writeErr(cmd, err)
			}
			report := st.Doctor(cmd.Context())

			authenticated := false
			if !report.HasErrors() {
				rt, err := runtimeFor(cmd, app)
				if err != nil {
					report.Add(store.DoctorIssueLevelError, "session_unreadable", err.Error(), "")
				} else {
					authenticated = checkSession(cmd, rt, &report)
				}
			}

			meta := map[string]any{
				"issues":        len(report.Issues),
				"hasErrors":     report.HasErrors(),
				"authenticated": authenticated,
				"apiUrl":        app.APIURL,
			}
			if err := writeOut(cmd, app, map[string]any{
				"data": report,
				"meta": meta,
			}); err != nil {
				return err
			}
			if fail && report.HasErrors() {
				return store.ErrDoctorIssuesFound
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with non-zero status if errors are found")
	return cmd
}

// checkSession inspects the stored token and asks the server about it
// without touching the stored session.
func checkSession(cmd *cobra.Command, rt *runtime, report *store.DoctorReport) bool {
	snap := rt.session.Snapshot()
	if !snap.IsAuthenticated() {
		return false
	}
	if snap.User == nil {
		report.Add(store.DoctorIssueLevelWarn, "session_user_missing", "token stored without a user; the next command signs you out", "")
	}
	if c, err := session.InspectToken(snap.Token); err == nil && c.HasExpiry() && c.Expired(time.Now()) {
		report.Add(store.DoctorIssueLevelWarn, "token_expired", "stored token expired at "+c.ExpiresAt.UTC().Format(time.RFC3339), "")
	}

	if _, err := rt.client.VerifyToken(cmd.Context(), snap.Token); err != nil {
		var tErr *api.TransportError
		if errors.As(err, &tErr) {
			report.Add(store.DoctorIssueLevelError, "api_unreachable", tErr.Error(), rt.client.BaseURL())
		} else {
			report.Add(store.DoctorIssueLevelWarn, "token_rejected", api.UserMessage(err, "token rejected"), rt.client.BaseURL())
		}
		return false
	}
	return true
}
