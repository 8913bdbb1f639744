package schema

import (
	"context"

	"github.com/devghori1264/quads/internal/models"
)

const DefaultHostType = "baremetal"

// Host validates host inventory documents. The cloud a host belongs to must
// already exist.
type Host struct {
	lookup Lookup
}

func NewHost(l Lookup) *Host {
	return &Host{lookup: l}
}

func (h *Host) Prepare(ctx context.Context, in models.Fields) ([]string, Prepared, error) {
	var errs problems
	for _, u := range unknown(in, "host", "cloud", "host_type", "model") {
		errs.add(u)
	}

	p := Prepared{
		Fields:   models.Document{},
		Defaults: models.Document{"host_type": DefaultHostType},
	}

	name, msg := required(in, "host")
	errs.add(msg)
	p.Fields["host"] = name

	cloud, msg := required(in, "cloud")
	errs.add(msg)
	if cloud != "" {
		_, msg, err := mustExist(ctx, h.lookup, models.Clouds, cloud)
		if err != nil {
			return nil, Prepared{}, err
		}
		errs.add(msg)
	}
	p.Fields["cloud"] = cloud

	if v, ok := in["host_type"]; ok {
		p.Fields["host_type"] = v
		delete(p.Defaults, "host_type")
	}
	if v, ok := in["model"]; ok {
		p.Fields["model"] = v
	}

	if len(errs) > 0 {
		return errs, Prepared{}, nil
	}
	return nil, p, nil
}
