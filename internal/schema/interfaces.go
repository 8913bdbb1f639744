package schema

import (
	"context"
	"fmt"
	"net"

	"github.com/devghori1264/quads/internal/models"
)

// Interfaces validates a network interface on a host, keyed by its name.
type Interfaces struct {
	lookup Lookup
}

func (s *Interfaces) PrepareItem(ctx context.Context, in models.Fields) ([]string, Item, error) {
	var errs problems
	for _, u := range unknown(in, "host", "name", "mac", "ip", "switch", "port") {
		errs.add(u)
	}

	host, msg := required(in, "host")
	errs.add(msg)
	if host != "" {
		_, msg, err := mustExist(ctx, s.lookup, models.Hosts, host)
		if err != nil {
			return nil, Item{}, err
		}
		errs.add(msg)
	}

	name, msg := required(in, "name")
	errs.add(msg)

	entry := map[string]any{"name": name}
	if v, ok := in["ip"]; ok {
		if net.ParseIP(v) == nil {
			errs.add(fmt.Sprintf("invalid ip: %q", v))
		}
		entry["ip"] = v
	}
	if v, ok := in["mac"]; ok {
		if _, err := net.ParseMAC(v); err != nil {
			errs.add(fmt.Sprintf("invalid mac: %q", v))
		}
		entry["mac"] = v
	}
	for _, f := range []string{"switch", "port"} {
		if v, ok := in[f]; ok {
			entry[f] = v
		}
	}

	if len(errs) > 0 {
		return errs, Item{}, nil
	}
	return nil, fixedItem(host, name, models.Update{Set: map[string]any{"interfaces." + name: entry}}), nil
}
