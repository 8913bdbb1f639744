package schema

import (
	"context"

	"github.com/devghori1264/quads/internal/models"
)

// Cloud field defaults.
const (
	DefaultOwner  = "nobody"
	DefaultTicket = "000000"
)

// Cloud validates cloud reservation documents.
type Cloud struct{}

func (Cloud) Prepare(_ context.Context, in models.Fields) ([]string, Prepared, error) {
	var errs problems
	for _, u := range unknown(in, "cloud", "description", "owner", "ticket", "ccuser", "qinq", "wipe") {
		errs.add(u)
	}

	p := Prepared{
		Fields: models.Document{},
		Defaults: models.Document{
			"owner":  DefaultOwner,
			"ticket": DefaultTicket,
			"ccuser": []any{},
			"qinq":   false,
			"wipe":   true,
		},
	}

	name, msg := required(in, "cloud")
	errs.add(msg)
	p.Fields["cloud"] = name

	for _, f := range []string{"description", "owner", "ticket"} {
		if v, ok := in[f]; ok {
			p.Fields[f] = v
			delete(p.Defaults, f)
		}
	}
	if v, ok := in["ccuser"]; ok {
		p.Fields["ccuser"] = splitList(v)
		delete(p.Defaults, "ccuser")
	}
	for _, f := range []string{"qinq", "wipe"} {
		v, ok := in[f]
		if !ok {
			continue
		}
		b, msg := parseBool(f, v)
		errs.add(msg)
		p.Fields[f] = b
		delete(p.Defaults, f)
	}

	if len(errs) > 0 {
		return errs, Prepared{}, nil
	}
	return nil, p, nil
}
