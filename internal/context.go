package internal

import "context"

type ctxKey string

const ContextSubjectKey ctxKey = "admin_subject"

// SubjectFromContext returns the admin subject set by the auth middleware,
// or "" outside an admin request.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(ContextSubjectKey).(string)
	return subject
}

func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextSubjectKey, subject)
}
