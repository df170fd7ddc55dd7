package failure

// Action is how a classified error is handled.
type Action string

const (
	ActionRetry               Action = "retry"
	ActionDegrade             Action = "degrade"
	ActionFail                Action = "fail"
	ActionEscalate            Action = "escalate"
	ActionHandleBusinessLogic Action = "handle_business_logic"
	ActionCircuitBreak        Action = "circuit_break"
)

// decide applies the strategy rules in priority order. consecutive is the
// number of counted failures recorded for the operation, including this one.
// Input-driven failures never break the circuit.
func decide(c Classification, ectx Context, consecutive, threshold int) Action {
	switch {
	case counts(c) && threshold > 0 && consecutive >= threshold, c.Subkind == SubCircuitOpen:
		return ActionCircuitBreak
	case c.Kind == KindAPI && !ectx.Critical:
		return ActionDegrade
	case c.Kind == KindAPI && retryableAPI(c.Subkind):
		return ActionRetry
	case c.Subkind == SubConstraintViolation:
		return ActionFail
	case c.Kind == KindDatabase && ectx.Critical:
		return ActionEscalate
	case c.Kind == KindDatabase && transientDatabase(c.Subkind):
		return ActionRetry
	case c.Kind == KindValidation:
		return ActionFail
	case c.Kind == KindBusiness:
		return ActionHandleBusinessLogic
	case c.Subkind == SubCancelled:
		return ActionFail
	}
	return ActionEscalate
}

// counts reports whether c is charged against the operation's consecutive
// failure count. Bad input and business conflicts say nothing about the
// health of a dependency.
func counts(c Classification) bool {
	switch {
	case c.Kind == KindValidation, c.Kind == KindBusiness, c.Subkind == SubCancelled:
		return false
	}
	return true
}

func retryableAPI(s Subkind) bool {
	switch s {
	case SubTimeout, SubConnectionRefused, SubTransport, SubRateLimited:
		return true
	}
	return false
}

func transientDatabase(s Subkind) bool {
	return s == SubTimeout || s == SubConnectionClosed
}

// alerts reports whether an action notifies operators. Degraded calls and
// cancellations are silent.
func alerts(c Classification, a Action) bool {
	return a != ActionDegrade && c.Subkind != SubCancelled
}

// DependencyFailure reports whether err says something about the health of
// an upstream API or the database. Constraint violations, rate limiting and
// open circuits do not. It is the failure predicate for dependency breakers.
func DependencyFailure(err error) bool {
	if err == nil {
		return false
	}
	c := Classify(err, Context{})
	if c.Kind != KindAPI && c.Kind != KindDatabase {
		return false
	}
	switch c.Subkind {
	case SubConstraintViolation, SubRateLimited, SubCircuitOpen, SubCancelled:
		return false
	}
	return true
}

// Retryable reports whether err is a transient API or database failure.
// Timeouts without a layer count as API timeouts.
func Retryable(err error) bool {
	return err != nil && transient(Classify(err, Context{}))
}
