package evherr

// Taxonomy names surfaced on Error.Name.
const (
    MessagingEntityNotFoundError   = "MessagingEntityNotFoundError"
    QuotaExceededError             = "QuotaExceededError"
    MessageTooLargeError           = "MessageTooLargeError"
    ServerBusyError                = "ServerBusyError"
    SenderBusyError                = "SenderBusyError"
    ReceiverDisconnectedError      = "ReceiverDisconnectedError"
    ArgumentError                  = "ArgumentError"
    ArgumentOutOfRangeError        = "ArgumentOutOfRangeError"
    ServiceUnavailableError        = "ServiceUnavailableError"
    ServiceCommunicationError      = "ServiceCommunicationError"
    UnauthorizedError              = "UnauthorizedError"
    InternalServerError            = "InternalServerError"
    DetachForcedError              = "DetachForcedError"
    ConnectionForcedError          = "ConnectionForcedError"
    LinkRedirectError              = "LinkRedirectError"
    NotImplementedError            = "NotImplementedError"
    OperationCancelledError        = "OperationCancelledError"
    PreconditionFailedError        = "PreconditionFailedError"
    MessagingError                 = "MessagingError"
)

// AMQP and service specific error conditions.
const (
    condNotFound              = "amqp:not-found"
    condResourceLimitExceeded = "amqp:resource-limit-exceeded"
    condMessageSizeExceeded   = "amqp:link:message-size-exceeded"
    condServerBusy            = "com.microsoft:server-busy"
    condLinkStolen            = "amqp:link:stolen"
    condArgumentError         = "com.microsoft:argument-error"
    condArgumentOutOfRange    = "com.microsoft:argument-out-of-range"
    condTimeout               = "com.microsoft:timeout"
    condUnauthorizedAccess    = "amqp:unauthorized-access"
    condInternalError         = "amqp:internal-error"
    condDetachForced          = "amqp:link:detach-forced"
    condConnectionForced      = "amqp:connection:forced"
    condLinkRedirect          = "amqp:link:redirect"
    condNotImplemented        = "amqp:not-implemented"
    condOperationCancelled    = "com.microsoft:operation-cancelled"
    condPreconditionFailed    = "amqp:precondition-failed"
)

type errorKind struct {
    name      string
    retryable bool
}

var conditionKinds = map[ string ]errorKind {
    condNotFound              : { MessagingEntityNotFoundError, false },
    condResourceLimitExceeded : { QuotaExceededError, false },
    condMessageSizeExceeded   : { MessageTooLargeError, false },
    condServerBusy            : { ServerBusyError, true },
    condLinkStolen            : { ReceiverDisconnectedError, false },
    condArgumentError         : { ArgumentError, false },
    condArgumentOutOfRange    : { ArgumentOutOfRangeError, false },
    condTimeout               : { ServiceUnavailableError, true },
    condUnauthorizedAccess    : { UnauthorizedError, false },
    condInternalError         : { InternalServerError, true },
    condDetachForced          : { DetachForcedError, true },
    condConnectionForced      : { ConnectionForcedError, true },
    condLinkRedirect          : { LinkRedirectError, false },
    condNotImplemented        : { NotImplementedError, false },
    condOperationCancelled    : { OperationCancelledError, false },
    condPreconditionFailed    : { PreconditionFailedError, false },
}

// Status codes returned by the $cbs and $management request/response links.
var statusKinds = map[ int ]errorKind {
    400 : { ArgumentError, false },
    401 : { UnauthorizedError, false },
    403 : { QuotaExceededError, false },
    404 : { MessagingEntityNotFoundError, false },
    408 : { ServiceUnavailableError, true },
    410 : { MessagingEntityNotFoundError, false },
    412 : { PreconditionFailedError, false },
    500 : { InternalServerError, true },
    503 : { ServerBusyError, true },
}

// Error is the translated form of every failure surfaced by the client.
type Error struct {
    Name        string
    Message     string
    Condition   string
    Info        map[ string ]interface{ }
    Retryable   bool

    wrapped     error
}
