package guard

// Kind discriminates validation outcomes
type Kind string

const (
	KindAccepted       Kind = "accepted"
	KindRejected       Kind = "rejected"
	KindRetryRequested Kind = "retry_requested"
)

// Verdict is the guard's tagged outcome. SQL is set only when accepted;
// Reason only when not.
type Verdict struct {
	Kind   Kind
	SQL    string
	Reason string
}

// Accepted builds the passing verdict carrying the validated SQL
func Accepted(sql string) Verdict {
	return Verdict{Kind: KindAccepted, SQL: sql}
}

// Rejected builds a terminal failure; the pipeline will not retry it
func Rejected(reason string) Verdict {
	return Verdict{Kind: KindRejected, Reason: reason}
}

// RetryRequested builds a recoverable failure; the reason is fed back to the
// generator on the next attempt.
func RetryRequested(reason string) Verdict {
	return Verdict{Kind: KindRetryRequested, Reason: reason}
}

func (v Verdict) IsAccepted() bool { return v.Kind == KindAccepted }
func (v Verdict) IsRejected() bool { return v.Kind == KindRejected }
func (v Verdict) IsRetry() bool    { return v.Kind == KindRetryRequested }
