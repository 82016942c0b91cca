package loginbridge

import "time"

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

const shortAttemptTimeout = 5 * time.Second

// Lint reports settings that are valid but likely unintended. It assumes
// Validate has passed.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	switch {
	case c.Login.AttemptTimeout == 0:
		ws = append(ws, LintWarning{
			Code:    "attempt_timeout_disabled",
			Message: "an attempt that never completes blocks every later login until Cancel",
		})
	case c.Login.AttemptTimeout < shortAttemptTimeout:
		ws = append(ws, LintWarning{
			Code:    "attempt_timeout_short",
			Message: "attempt timeout below 5s may expire interactive portal logins",
		})
	}

	if len(c.Login.AlreadyLoggedInErrors) == 0 {
		ws = append(ws, LintWarning{
			Code:    "already_logged_in_unset",
			Message: "existing backend sessions will be reported as failed logins",
		})
	}

	def := defaultConfig().Credentials
	if c.Credentials.Developer == def.Developer {
		ws = append(ws, LintWarning{
			Code:    "developer_placeholder_credentials",
			Message: "developer credentials are the built-in placeholders",
		})
	}
	if c.Credentials.Portal == def.Portal {
		ws = append(ws, LintWarning{
			Code:    "portal_placeholder_credentials",
			Message: "portal credentials are the built-in placeholders",
		})
	}

	if c.Audit.Enabled && c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_drop_if_full",
			Message: "audit events are dropped when the dispatcher buffer is full",
		})
	}

	if !c.Metrics.Enabled {
		ws = append(ws, LintWarning{
			Code:    "metrics_disabled",
			Message: "metrics snapshots and exporters will report nothing",
		})
	}

	return ws
}
