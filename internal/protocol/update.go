package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceKey selects the protocol an update is addressed to.
const ServiceKey = "service"

// ParseUpdate turns an update record, as sent by the application layer, into
// commands for the protocol with the given service type. The record must carry
// a "service" entry naming that service type (case-insensitively); every other
// entry becomes a command, in key order.
func ParseUpdate(serviceType string, values map[string]any) ([]Command, error) {
	svc, ok := values[ServiceKey]
	if !ok {
		return nil, fmt.Errorf("%w: update has no %q entry", ErrServiceMismatch, ServiceKey)
	}
	if !strings.EqualFold(fmt.Sprint(svc), serviceType) {
		return nil, fmt.Errorf("%w: update addressed to %q, protocol is %q", ErrServiceMismatch, svc, serviceType)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != ServiceKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	cmds := make([]Command, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, Command{Name: k, Arg: fmt.Sprint(values[k])})
	}
	return cmds, nil
}

// ParseCommand parses a single "name=arg" token.
func ParseCommand(s string) (Command, error) {
	name, arg, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Command{}, fmt.Errorf("%w: expected name=value, got %q", ErrInvalidArgument, s)
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}, nil
}
