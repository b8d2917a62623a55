// Package flex holds the operation codes carried by Flex command messages.
package flex

import "fmt"

// Operation codes. Two pairs share a value: the data services and messaging
// namespaces assigned 7 and 10 independently.
const (
	SUBSCRIBE_OPERATION               = 0
	UNSUBSCRIBE_OPERATION             = 1
	POLL_OPERATION                    = 2
	DATA_OPERATION_UPDATE_ATTRIBUTES  = 3
	CLIENT_SYNC_OPERATION             = 4
	CLIENT_PING_OPERATION             = 5
	DATA_OPERATION_UPDATE             = 7
	CLUSTER_REQUEST_OPERATION         = 7
	LOGIN_OPERATION                   = 8
	LOGOUT_OPERATION                  = 9
	DATA_OPERATION_SET                = 10
	SUBSCRIPTION_INVALIDATE_OPERATION = 10
	MULTI_SUBSCRIBE_OPERATION         = 11
	UNKNOWN_OPERATION                 = 10000
)

// CommandMessageClass is the class name of a Flex command message.
const CommandMessageClass = "flex.messaging.messages.CommandMessage"

// Namespace selects the meaning of the shared operation codes.
type Namespace int

const (
	Messaging Namespace = iota
	DataServices
)

func (n Namespace) String() string {
	switch n {
	case Messaging:
		return "messaging"
	case DataServices:
		return "data"
	default:
		return fmt.Sprintf("namespace(%d)", int(n))
	}
}

var operationNames = map[int]string{
	SUBSCRIBE_OPERATION:              "subscribe",
	UNSUBSCRIBE_OPERATION:            "unsubscribe",
	POLL_OPERATION:                   "poll",
	DATA_OPERATION_UPDATE_ATTRIBUTES: "update attributes",
	CLIENT_SYNC_OPERATION:            "client sync",
	CLIENT_PING_OPERATION:            "client ping",
	LOGIN_OPERATION:                  "login",
	LOGOUT_OPERATION:                 "logout",
	MULTI_SUBSCRIBE_OPERATION:        "multi subscribe",
	UNKNOWN_OPERATION:                "unknown",
}

// OperationName returns a readable name for op. Codes 7 and 10 resolve by namespace.
func OperationName(op int, ns Namespace) string {
	switch op {
	case DATA_OPERATION_UPDATE:
		if ns == DataServices {
			return "update"
		}
		return "cluster request"
	case DATA_OPERATION_SET:
		if ns == DataServices {
			return "set"
		}
		return "subscription invalidate"
	}
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", op)
}
