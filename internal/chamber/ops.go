package chamber

// Op names an engine operation. The same names appear as the audit event
// action, the dispatcher key and the enumerated operation field of the
// guardian control surface.
type Op string

const (
	OpCreateVault             Op = "create-vault"
	OpCreateIncremental       Op = "create-incremental-chamber"
	OpCreateTimelocked        Op = "create-timelocked-vault"
	OpFinalize                Op = "finalize"
	OpReturn                  Op = "return"
	OpNullify                 Op = "nullify"
	OpChallenge               Op = "challenge"
	OpCancelChallenge         Op = "cancel-challenge"
	OpMediate                 Op = "mediate"
	OpLock                    Op = "lock"
	OpCollectExpired          Op = "collect-expired"
	OpProlong                 Op = "prolong"
	OpTransferControl         Op = "transfer-control"
	OpRequestRetrieval        Op = "request-delayed-retrieval"
	OpProcessRetrieval        Op = "process-delayed-retrieval"
	OpFragment                Op = "fragment"
	OpMerge                   Op = "merge"
	OpAdjustFee               Op = "adjust-fee"
	OpDisclose                Op = "disclose"
	OpVerifySignature         Op = "verify-signature-claim"
	OpSetPanicMode            Op = "set-panic-mode"
	OpTripCircuitBreaker      Op = "trip-circuit-breaker"
	OpResetCircuitBreaker     Op = "reset-circuit-breaker"
	OpConfigureFrequencyLimit Op = "configure-frequency-limit"
	OpScheduleOperation       Op = "schedule-operation"
)

// LifecycleOps are the operations that create or transition chambers.
// Circuit breakers and frequency limits may only name one of these.
var LifecycleOps = []Op{
	OpCreateVault,
	OpCreateIncremental,
	OpCreateTimelocked,
	OpFinalize,
	OpReturn,
	OpNullify,
	OpChallenge,
	OpCancelChallenge,
	OpMediate,
	OpLock,
	OpCollectExpired,
	OpProlong,
	OpTransferControl,
	OpRequestRetrieval,
	OpProcessRetrieval,
	OpFragment,
	OpMerge,
	OpAdjustFee,
}

// IsLifecycleOp reports whether op is one of LifecycleOps.
func IsLifecycleOp(op Op) bool {
	for _, known := range LifecycleOps {
		if op == known {
			return true
		}
	}
	return false
}
